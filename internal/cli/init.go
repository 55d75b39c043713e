package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/waffletower/InvokeAI/internal/infra/fsworkspace"
	"github.com/waffletower/InvokeAI/internal/usecase"
)

func initCmd() *cobra.Command {
	var path string
	var force bool

	c := &cobra.Command{
		Use:   "init",
		Short: "Create an invoke workspace with example graphs and environments",
		RunE: func(_ *cobra.Command, _ []string) error {
			uc := usecase.NewInitWorkspace(fsworkspace.NewInitializer())
			root, err := uc.Execute(path, force)
			if err != nil {
				return err
			}
			fmt.Printf("Workspace ready: %s\n", root)
			fmt.Println("Next: invoke run -g example")
			return nil
		},
	}

	c.Flags().StringVar(&path, "path", ".", "Directory to initialize")
	c.Flags().BoolVar(&force, "force", false, "Overwrite existing template files")
	return c
}
