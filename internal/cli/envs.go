package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/waffletower/InvokeAI/internal/domain"
)

const maskValue = "********"

func envsCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "envs",
		Short: "Inspect environments in a workspace",
	}

	c.AddCommand(envsListCmd(), envsShowCmd())
	return c
}

func envsListCmd() *cobra.Command {
	var workspace string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List environments",
		RunE: func(_ *cobra.Command, _ []string) error {
			ws, err := loadWorkspace(workspace)
			if err != nil {
				return err
			}

			refs, err := ws.envs.ListEnvironments(ws.root)
			if err != nil {
				return err
			}

			printEnvironments(os.Stdout, ws.root, ws.cfg.Defaults.Environment, refs)
			return nil
		},
	}

	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (optional; autodetected if omitted)")
	return cmd
}

func envsShowCmd() *cobra.Command {
	var workspace string
	var reveal bool

	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Print the variables of an environment, secrets overlay included",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ws, err := loadWorkspace(workspace)
			if err != nil {
				return err
			}

			env, err := ws.envs.LoadEnvironment(resolveEnvironmentArg(ws, args[0]))
			if err != nil {
				return err
			}

			printEnvironment(os.Stdout, env, !reveal)
			return nil
		},
	}

	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "Workspace root (optional; autodetected if omitted)")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print sensitive values instead of masking them")
	return cmd
}

func printEnvironments(w io.Writer, root, def string, refs []domain.EnvironmentRef) {
	if len(refs) == 0 {
		fmt.Fprintln(w, "(no environments found)")
		return
	}

	fmt.Fprintf(w, "Workspace: %s\n\n", root)
	for _, r := range refs {
		rel, err := filepath.Rel(root, r.Path)
		if err != nil {
			rel = r.Path
		}
		marker := " "
		if r.Name == def {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s  (%s)\n", marker, r.Name, rel)
	}
}

func printEnvironment(w io.Writer, env domain.Environment, mask bool) {
	fmt.Fprintf(w, "Environment: %s\n", env.Name)
	if len(env.Vars) == 0 {
		fmt.Fprintln(w, "(no vars)")
		return
	}
	for _, k := range sortedKeys(env.Vars) {
		v := env.Vars[k]
		if mask && isSensitiveKey(k) {
			v = maskValue
		}
		fmt.Fprintf(w, "  %s = %s\n", k, v)
	}
}

func isSensitiveKey(k string) bool {
	kk := strings.ToLower(k)
	for _, s := range []string{"token", "secret", "password", "api_key", "apikey"} {
		if strings.Contains(kk, s) {
			return true
		}
	}
	return false
}
