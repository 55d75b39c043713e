package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/waffletower/InvokeAI/internal/infra/fsworkspace"
	"github.com/waffletower/InvokeAI/internal/infra/logger"
	"github.com/waffletower/InvokeAI/internal/infra/workspacefinder"
	"github.com/waffletower/InvokeAI/internal/ui/tui"
)

func Execute() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:          "invoke",
		Short:        "invoke: run graphs of typed invocations",
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			wd, err := os.Getwd()
			if err != nil {
				wd = "."
			}
			wd, _ = filepath.Abs(wd)

			finder := workspacefinder.NewFinder()

			logRoot := wd
			if root, ferr := finder.FindRoot(wd); ferr == nil && root != "" {
				logRoot = root
			}

			cleanup := startLogging(logRoot, debug, false)
			defer cleanup()

			deps := tui.Deps{
				WorkspaceLocator:     finder,
				WorkspaceInitializer: fsworkspace.NewInitializer(),
				Logger:               logger.L(),
				Debug:                debug,
			}

			return tui.Run(deps)
		},
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable verbose logging to .invoke/logs/invoke.log")

	cmd.AddCommand(
		initCmd(),
		graphsCmd(),
		envsCmd(),
		validateCmd(),
		runCmd(),
		sessionsCmd(),
		serveCmd(),
		versionCmd(),
	)
	return cmd
}

// startLogging never fails the command: without a log file the process
// logger keeps discarding.
func startLogging(root string, debug, stderr bool) func() {
	cleanup, err := logger.Setup(logger.Config{
		Root:   root,
		Debug:  debug,
		Stderr: stderr,
	})
	if err != nil || cleanup == nil {
		return func() {}
	}
	return func() { _ = cleanup() }
}

func debugFlag(c *cobra.Command) bool {
	v, _ := c.Flags().GetBool("debug")
	return v
}
