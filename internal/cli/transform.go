package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"anymusic/internal/client"
)

type transformFunc func(ctx context.Context, c *client.Client) (*client.File, error)

// runTransform calls fn and writes the returned file to out, or into the
// output directory under the backend-supplied name when out is empty.
func (a *app) runTransform(ctx context.Context, out string, fn transformFunc) error {
	c, err := a.newClient()
	if err != nil {
		return err
	}
	start := time.Now()
	f, err := fn(ctx, c)
	if err != nil {
		return err
	}
	defer f.Body.Close()

	if out == "" {
		if err := os.MkdirAll(a.cfg.AbsOutputDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		out = filepath.Join(a.cfg.AbsOutputDir, f.Name)
	}
	dst, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	n, err := io.Copy(dst, f.Body)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(out)
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(a.out, "wrote %s (%s in %s)\n", out, humanize.Bytes(uint64(n)), time.Since(start).Round(time.Millisecond))
	return nil
}

func newPDFCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "pdf",
		Short: "Merge, split, rotate or delete pages of PDF files",
	}
	cmd.PersistentFlags().StringVarP(&out, "out", "o", "", "output file (default: output dir and backend file name)")

	cmd.AddCommand(&cobra.Command{
		Use:   "merge FILE FILE...",
		Short: "Merge PDFs in the given order",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTransform(cmd.Context(), out, func(ctx context.Context, c *client.Client) (*client.File, error) {
				return c.MergePDFs(ctx, args)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "split FILE [PAGES]",
		Short: "Extract page ranges such as 1-3,5 (all pages when omitted)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pages := optionalArg(args, 1)
			return a.runTransform(cmd.Context(), out, func(ctx context.Context, c *client.Client) (*client.File, error) {
				return c.SplitPDF(ctx, args[0], pages)
			})
		},
	})

	rotate := &cobra.Command{
		Use:   "rotate FILE [PAGES]",
		Short: "Rotate pages clockwise (all pages when omitted)",
		Args:  cobra.RangeArgs(1, 2),
	}
	degrees := rotate.Flags().IntP("degrees", "d", 90, "rotation: 90, 180 or 270")
	rotate.RunE = func(cmd *cobra.Command, args []string) error {
		pages := optionalArg(args, 1)
		return a.runTransform(cmd.Context(), out, func(ctx context.Context, c *client.Client) (*client.File, error) {
			return c.RotatePDF(ctx, args[0], *degrees, pages)
		})
	}
	cmd.AddCommand(rotate)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete FILE PAGES",
		Short: "Remove the listed pages, e.g. 2,4",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTransform(cmd.Context(), out, func(ctx context.Context, c *client.Client) (*client.File, error) {
				return c.DeletePDFPages(ctx, args[0], args[1])
			})
		},
	})
	return cmd
}

func newTrimCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "trim FILE START END",
		Short: "Cut an audio file to START..END (seconds, mm:ss or hh:mm:ss)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := client.ParseClock(args[1])
			if err != nil {
				return err
			}
			end, err := client.ParseClock(args[2])
			if err != nil {
				return err
			}
			return a.runTransform(cmd.Context(), out, func(ctx context.Context, c *client.Client) (*client.File, error) {
				return c.TrimAudio(ctx, args[0], start, end)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: output dir and backend file name)")
	return cmd
}

func newConvertCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "convert FILE",
		Short: "Convert an audio file to MP3",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTransform(cmd.Context(), out, func(ctx context.Context, c *client.Client) (*client.File, error) {
				return c.ConvertToMP3(ctx, args[0], a.cfg.Bitrate)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: output dir and backend file name)")
	cmd.Flags().String("bitrate", "192", "MP3 bitrate in kbps: "+strings.Join(client.Bitrates, "|"))
	return cmd
}

func optionalArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
