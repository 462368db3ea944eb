package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"anymusic/internal/client"
	"anymusic/internal/tools"
)

func newQRCodeCmd(a *app) *cobra.Command {
	var (
		out     string
		dataURI bool
	)
	cmd := &cobra.Command{
		Use:   "qrcode TEXT",
		Short: "Render TEXT as a PNG QR code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !dataURI {
				return a.runTransform(cmd.Context(), out, func(ctx context.Context, c *client.Client) (*client.File, error) {
					return c.QRCode(ctx, args[0])
				})
			}
			c, err := a.newClient()
			if err != nil {
				return err
			}
			uri, err := c.QRCodeDataURI(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, uri)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: output dir and backend file name)")
	cmd.Flags().BoolVar(&dataURI, "data-uri", false, "print a data: URI instead of writing a file")
	return cmd
}

func newShortenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shorten URL",
		Short: "Create a short alias for URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.newClient()
			if err != nil {
				return err
			}
			res, err := c.ShortenURL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, res.Short)
			return nil
		},
	}
}

func newRemoveBGCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "remove-bg IMAGE",
		Short: "Remove the background of an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTransform(cmd.Context(), out, func(ctx context.Context, c *client.Client) (*client.File, error) {
				return c.RemoveBackground(ctx, args[0])
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: output dir and backend file name)")
	return cmd
}

func newMaskCmd(a *app) *cobra.Command {
	var (
		req    tools.MaskRequest
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "mask [TEXT|-]",
		Short: "Hide e-mail addresses, phone, ID and card numbers in TEXT (stdin when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := optionalArg(args, 0)
			if text == "" || text == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = strings.TrimRight(string(b), "\n")
			}
			req.Text = text

			c, err := a.newClient()
			if err != nil {
				return err
			}
			res, err := c.MaskText(cmd.Context(), req)
			if err != nil {
				return err
			}
			if asJSON {
				b, err := json.MarshalIndent(res, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(a.out, string(b))
				return nil
			}
			fmt.Fprintln(a.out, res.Masked)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&req.Patterns, "patterns", "p", nil, "rules to apply: "+strings.Join(tools.PatternNames(), ",")+" (default all)")
	cmd.Flags().StringVar(&req.MaskChar, "char", tools.DefaultMaskChar, "replacement character")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response with the masked items")
	return cmd
}
