package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newGenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <namespace>",
		Short: "Generate configuration artifacts for a namespace",
		Long: `Generate configuration artifacts for a namespace.

Generation is gated on validation: a namespace with validation errors
produces no files. Artifacts are staged and moved into place so an
aborted run leaves no partial output.`,
		Example: `  # Generate artifacts into the configured output directory
  lamina generate shop`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			namespace := args[0]
			rt, err := buildRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.service.Generate(cmd.Context(), namespace)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			fmt.Printf("wrote %d file(s) to %s (environments: %s)\n",
				result.FilesGenerated, result.OutputDir, strings.Join(result.Environments, ", "))
			return nil
		},
	}

	return cmd
}
