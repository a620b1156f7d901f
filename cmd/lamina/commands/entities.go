package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/laminacfg/lamina/pkg/engine"
)

func newEntitiesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entities",
		Short: "Manage configuration entities",
	}

	cmd.AddCommand(newEntitiesListCommand())
	cmd.AddCommand(newEntitiesCreateCommand())
	cmd.AddCommand(newEntitiesDeleteCommand())
	cmd.AddCommand(newEntitiesResolveCommand())

	return cmd
}

func newEntitiesListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <namespace>",
		Short: "List a namespace's entities in creation order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			entities, err := rt.service.ListEntities(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entities)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tNAME\tENABLED\tINHERITS")
			for _, e := range entities {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
					e.ID, e.EntityType, e.Name, e.Enabled, strings.Join(e.Inherit, ","))
			}
			return w.Flush()
		},
	}

	return cmd
}

func newEntitiesCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <namespace> <type> <name>",
		Short: "Create an entity",
		Example: `  # Create a cache entity in the shop namespace
  lamina entities create shop caches sessions`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			e, err := rt.service.CreateEntity(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(e)
			}
			fmt.Printf("created %s/%s %q (%s)\n", e.Namespace, e.EntityType, e.Name, e.ID)
			return nil
		},
	}

	return cmd
}

func newEntitiesDeleteCommand() *cobra.Command {
	var cascade bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an entity",
		Long: `Delete an entity.

Deletion is refused while other entities inherit from the target unless
--cascade is given, which removes the inherit edge from every dependent
first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			updated, err := rt.service.DeleteEntity(cmd.Context(), args[0], cascade)
			if err != nil {
				if engine.IsKind(err, engine.KindReferencedByOthers) {
					return fmt.Errorf("%w (use --cascade to remove the inherit edges)", err)
				}
				return err
			}

			fmt.Printf("deleted %s\n", args[0])
			for _, dep := range updated {
				fmt.Printf("updated dependent %s (%s)\n", dep.Name, dep.ID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&cascade, "cascade", false, "remove inherit edges from dependents before deleting")

	return cmd
}

func newEntitiesResolveCommand() *cobra.Command {
	var environment string

	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Show an entity's effective configuration",
		Example: `  # Resolve for the base environment
  lamina entities resolve 1b4e28ba-2fa1-11d2-883f-0016d3cca427

  # Resolve for prod
  lamina entities resolve 1b4e28ba-2fa1-11d2-883f-0016d3cca427 -e prod`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			resolved, err := rt.service.Resolve(cmd.Context(), args[0], environment)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(resolved)
		},
	}

	cmd.Flags().StringVarP(&environment, "environment", "e", "", "environment to resolve for (default base)")

	return cmd
}
