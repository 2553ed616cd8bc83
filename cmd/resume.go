package cmd

import (
	"github.com/spf13/cobra"

	"github.com/litterbox-sh/litterbox/internal/name"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [name]",
	Short: "Resume a paused sandbox",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	sandboxName, err := app.requireName(ctx, args, "resume")
	if err != nil {
		return err
	}
	slug, err := name.SlugifyName(sandboxName)
	if err != nil {
		return err
	}

	if err := app.manager.Resume(ctx, slug); err != nil {
		return err
	}

	logSuccess("Sandbox %s resumed", slug)
	return nil
}
