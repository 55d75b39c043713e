package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/waffletower/InvokeAI/internal/usecase"
)

func validateCmd() *cobra.Command {
	var workspace string
	var graphArg string
	var env string
	var sets []string

	c := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a graph without running it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := loadWorkspace(workspace)
			if err != nil {
				return err
			}

			graphPath, err := resolveGraphPath(ws, graphArg)
			if err != nil {
				return err
			}

			overrides, err := parseSet(sets)
			if err != nil {
				return err
			}

			uc := usecase.NewValidateGraph(ws.graphs, ws.envs)
			loaded, err := uc.Execute(cmd.Context(), usecase.RunInput{
				GraphPath: graphPath,
				Env:       resolveEnvironmentArg(ws, env),
				Overrides: overrides,
			})
			if err != nil {
				return err
			}

			fmt.Printf("OK: %s (%d nodes, %d edges)\n", loaded.Name, len(loaded.Graph.Nodes), len(loaded.Graph.Edges))
			return nil
		},
	}

	c.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (optional; autodetected if omitted)")
	c.Flags().StringVarP(&graphArg, "graph", "g", "", "Graph name or path (required)")
	c.Flags().StringVarP(&env, "env", "e", "", "Environment name or path (optional; defaults to workspace default env)")
	c.Flags().StringArrayVar(&sets, "set", nil, "Override a variable (key=value, repeatable)")

	_ = c.MarkFlagRequired("graph")
	return c
}
