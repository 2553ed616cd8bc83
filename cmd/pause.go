package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/litterbox-sh/litterbox/internal/name"
)

var (
	pauseAllEnvs  bool
	pauseAllRepos bool
)

var pauseCmd = &cobra.Command{
	Use:   "pause [name]",
	Short: "Pause a sandbox (or all of them)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPause,
}

func init() {
	pauseCmd.Flags().BoolVar(&pauseAllEnvs, "all-envs", false, "Pause every sandbox of this repository")
	pauseCmd.Flags().BoolVar(&pauseAllRepos, "all-repos", false, "Pause every litterbox container on this host")
	rootCmd.AddCommand(pauseCmd)
}

func runPause(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	switch {
	case pauseAllRepos:
		return pauseEveryRepo(ctx, app)
	case pauseAllEnvs:
		return pauseCurrentRepo(ctx, app)
	default:
		sandboxName, err := app.requireName(ctx, args, "pause")
		if err != nil {
			return err
		}
		slug, err := name.SlugifyName(sandboxName)
		if err != nil {
			return err
		}
		if err := app.manager.Pause(ctx, slug); err != nil {
			return err
		}
		logSuccess("Sandbox %s paused", slug)
		return nil
	}
}

// pauseCurrentRepo pauses every sandbox recorded in this repository's
// branch namespace.
func pauseCurrentRepo(ctx context.Context, app *app) error {
	records, err := app.loadSandboxes(ctx)
	if err != nil {
		return err
	}

	for _, record := range records {
		if err := app.manager.Pause(ctx, record.Slug); err != nil {
			logWarning("failed to pause %s: %v", record.Slug, err)
			continue
		}
		logSuccess("Sandbox %s paused", record.Slug)
	}
	return nil
}

// pauseEveryRepo pauses every litterbox container on the host, whatever
// repository it belongs to.
func pauseEveryRepo(ctx context.Context, app *app) error {
	containers, err := app.daemon.ListContainers(ctx, "litterbox-")
	if err != nil {
		return err
	}

	for _, info := range containers {
		if err := app.daemon.Pause(ctx, info.ID); err != nil {
			logWarning("failed to pause %s: %v", info.Name, err)
			continue
		}
		logSuccess("Container %s paused", info.Name)
	}
	return nil
}
