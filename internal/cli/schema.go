package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"anymusic/internal/task"
	"anymusic/internal/tools"
)

// wireTypes are the JSON bodies exchanged with the backend.
var wireTypes = map[string]any{
	"snapshot":        &task.Snapshot{},
	"submit-request":  &task.SubmitRequest{},
	"submit-response": &task.SubmitResponse{},
	"qrcode-request":  &tools.QRCodeRequest{},
	"shorten-request": &tools.ShortenRequest{},
	"mask-request":    &tools.MaskRequest{},
	"mask-response":   &tools.MaskResponse{},
}

func wireTypeNames() []string {
	names := make([]string, 0, len(wireTypes))
	for n := range wireTypes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func newSchemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "schema [" + strings.Join(wireTypeNames(), "|") + "]",
		Short:     "Print the JSON schema of a backend message",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: wireTypeNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "snapshot"
			if len(args) > 0 {
				name = args[0]
			}
			v, ok := wireTypes[name]
			if !ok {
				return fmt.Errorf("unknown message %q (want one of %s)", name, strings.Join(wireTypeNames(), ", "))
			}
			r := &jsonschema.Reflector{DoNotReference: true}
			b, err := json.MarshalIndent(r.Reflect(v), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, string(b))
			return nil
		},
	}
}
