package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/waffletower/InvokeAI/internal/app/engine"
	"github.com/waffletower/InvokeAI/internal/domain"
	"github.com/waffletower/InvokeAI/internal/graph"
)

func sessionsCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect stored sessions",
	}

	c.AddCommand(sessionsListCmd(), sessionsShowCmd())
	return c
}

func sessionsListCmd() *cobra.Command {
	var workspace string
	var query string
	var page, perPage int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := loadWorkspace(workspace)
			if err != nil {
				return err
			}

			store, err := engine.OpenStore(ws.root, ws.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var res domain.PaginatedResults[*graph.ExecutionState]
			if query != "" {
				res, err = store.Search(cmd.Context(), query, page, perPage)
			} else {
				res, err = store.List(cmd.Context(), page, perPage)
			}
			if err != nil {
				return err
			}

			printSessions(os.Stdout, res)
			return nil
		},
	}

	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (optional; autodetected if omitted)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Only sessions whose stored JSON contains this text")
	cmd.Flags().IntVar(&page, "page", 0, "Zero-based page")
	cmd.Flags().IntVar(&perPage, "per-page", 10, "Sessions per page")
	return cmd
}

func sessionsShowCmd() *cobra.Command {
	var workspace string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a session as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := loadWorkspace(workspace)
			if err != nil {
				return err
			}

			store, err := engine.OpenStore(ws.root, ws.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			state, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(state)
		},
	}

	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (optional; autodetected if omitted)")
	return cmd
}

func printSessions(w io.Writer, res domain.PaginatedResults[*graph.ExecutionState]) {
	if res.Total == 0 {
		fmt.Fprintln(w, "(no sessions found)")
		return
	}

	fmt.Fprintf(w, "Page %d/%d (%d total)\n\n", res.Page+1, res.Pages, res.Total)
	for _, s := range res.Items {
		fmt.Fprintf(w, "- %s  %s  nodes=%d executed=%d errors=%d\n",
			s.ID, sessionStatus(s), len(s.Graph.Nodes), len(s.ExecutedHistory), len(s.Errors))
	}
}

func sessionStatus(s *graph.ExecutionState) string {
	switch {
	case s.HasError():
		return "failed"
	case s.IsComplete():
		return "complete"
	case len(s.ExecutedHistory) == 0:
		return "pending"
	default:
		return "running"
	}
}
