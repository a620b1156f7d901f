package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	var environment string

	cmd := &cobra.Command{
		Use:   "validate <namespace>",
		Short: "Validate a configuration namespace",
		Long: `Validate a configuration namespace.

The sweep is best-effort: every entity is checked and all findings are
reported together. The command exits non-zero when errors are found;
warnings alone do not fail it.`,
		Example: `  # Validate the whole namespace
  lamina validate shop

  # Validate one environment's override layer
  lamina validate shop --environment prod`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			namespace := args[0]
			rt, err := buildRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.service.ValidateNamespace(cmd.Context(), namespace, environment)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				for _, msg := range result.ErrorMessages() {
					fmt.Printf("error: %s\n", msg)
				}
				for _, msg := range result.WarningMessages() {
					fmt.Printf("warning: %s\n", msg)
				}
				fmt.Printf("%d error(s), %d warning(s)\n", len(result.Errors), len(result.Warnings))
			}

			if !result.Valid {
				return fmt.Errorf("namespace %s is invalid", namespace)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "restrict override checks to one environment")

	return cmd
}
