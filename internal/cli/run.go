package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/waffletower/InvokeAI/internal/app/engine"
	"github.com/waffletower/InvokeAI/internal/domain"
	"github.com/waffletower/InvokeAI/internal/usecase"
)

func runCmd() *cobra.Command {
	var workspace string
	var graphArg string
	var env string
	var sets []string
	var noSave bool
	var format string
	var timeout time.Duration

	c := &cobra.Command{
		Use:   "run",
		Short: "Run every node of a graph from an invoke workspace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "pretty" && format != "json" && format != "" {
				return fmt.Errorf("unsupported format %q (expected pretty|json)", format)
			}

			ws, err := loadWorkspace(workspace)
			if err != nil {
				return err
			}

			cleanup := startLogging(ws.root, debugFlag(cmd), false)
			defer cleanup()

			graphPath, err := resolveGraphPath(ws, graphArg)
			if err != nil {
				return err
			}

			overrides, err := parseSet(sets)
			if err != nil {
				return err
			}

			opts := engine.Options{}
			if noSave {
				opts.Backend = domain.StorageMemory
			}
			eng, err := ws.open(opts)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			var runOpts []usecase.RunOption
			if format != "json" {
				runOpts = append(runOpts, usecase.WithEventHandler(func(ev domain.Event) {
					printEvent(os.Stderr, ev)
				}))
			}

			report, err := eng.RunGraph(runOpts...).Execute(ctx, usecase.RunInput{
				GraphPath: graphPath,
				Env:       resolveEnvironmentArg(ws, env),
				Overrides: overrides,
			})
			if err != nil {
				// A cancelled or timed out run still has a partial report.
				if report.SessionID != "" {
					_ = printRun(os.Stdout, report, format)
				}
				return err
			}

			if err := printRun(os.Stdout, report, format); err != nil {
				return err
			}

			if fails := report.Failures(); fails > 0 {
				return fmt.Errorf("run failed (%d failed node(s))", fails)
			}
			return nil
		},
	}

	c.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (optional; autodetected if omitted)")
	c.Flags().StringVarP(&graphArg, "graph", "g", "", "Graph name or path (required)")
	c.Flags().StringVarP(&env, "env", "e", "", "Environment name or path (optional; defaults to workspace default env)")
	c.Flags().StringArrayVar(&sets, "set", nil, "Override a variable (key=value, repeatable)")
	c.Flags().BoolVar(&noSave, "no-save", false, "Keep the session in memory instead of the workspace store")
	c.Flags().StringVar(&format, "format", "pretty", "Output format: pretty|json")
	c.Flags().DurationVar(&timeout, "timeout", 0, "Abort the run after this long (0 waits forever)")

	_ = c.MarkFlagRequired("graph")
	return c
}

func printRun(w io.Writer, report domain.RunReport, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "pretty", "":
		printPrettyRun(w, report)
		return nil
	default:
		return fmt.Errorf("unsupported format %q (expected pretty|json)", format)
	}
}

func printPrettyRun(w io.Writer, report domain.RunReport) {
	env := report.EnvironmentName
	if env == "" {
		env = "(none)"
	}
	status := "complete"
	if !report.Complete {
		status = "incomplete"
	}

	fmt.Fprintf(w, "Graph:      %s\n", report.GraphName)
	fmt.Fprintf(w, "Env:        %s\n", env)
	fmt.Fprintf(w, "Started:    %s\n", report.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Ended:      %s\n", report.EndedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Duration:   %s\n", report.Duration())
	if report.SessionID != "" {
		fmt.Fprintf(w, "Session:    %s\n", report.SessionID)
	}
	fmt.Fprintf(w, "Status:     %s (%d nodes, %d failed)\n", status, len(report.Nodes), report.Failures())
	fmt.Fprintln(w)

	for _, n := range report.Nodes {
		mark := "OK"
		if n.Failed() {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "- [%s] %s (%s)\n", mark, n.SourceNodeID, n.Type)

		if n.Failed() {
			fmt.Fprintf(w, "  error: %s\n", n.Error)
			continue
		}
		for _, k := range sortedKeys(n.Values) {
			fmt.Fprintf(w, "    %s = %s\n", k, formatValue(n.Values[k]))
		}
	}
}

// printEvent writes one progress line per event.
func printEvent(w io.Writer, ev domain.Event) {
	switch ev.Type {
	case domain.EventInvocationStarted:
		fmt.Fprintf(w, "  ... %s\n", ev.SourceNodeID)
	case domain.EventInvocationComplete:
		fmt.Fprintf(w, "  ok  %s\n", ev.SourceNodeID)
	case domain.EventInvocationError:
		fmt.Fprintf(w, "  err %s: %s\n", ev.SourceNodeID, ev.Error)
	case domain.EventSessionComplete:
		fmt.Fprintf(w, "  done %s\n", ev.GraphExecutionStateID)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
