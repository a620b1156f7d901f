package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lamina",
		Short: "Lamina - Configuration Composition Engine",
		Long: `Lamina composes typed configuration entities through inheritance and
per-environment overrides, validates whole namespaces, and emits
deterministic configuration artifacts.

Features:
  - Typed entities from a declarative catalog
  - Multiple inheritance with fixed precedence
  - Per-environment override layers
  - Best-effort namespace validation
  - Validation-gated artifact generation`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newGenerateCommand())
	rootCmd.AddCommand(newEntitiesCommand())

	return rootCmd
}
