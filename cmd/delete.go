package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	lberrors "github.com/litterbox-sh/litterbox/internal/errors"
	"github.com/litterbox-sh/litterbox/internal/name"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a sandbox, its container, and its branch",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Treat a missing sandbox as success")
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	sandboxName, err := app.requireName(ctx, args, "delete")
	if err != nil {
		return err
	}
	slug, err := name.SlugifyName(sandboxName)
	if err != nil {
		return err
	}

	if err := app.manager.Delete(ctx, slug); err != nil {
		if deleteForce && errors.Is(err, lberrors.ErrNotFound) {
			logInfo("Sandbox %s already gone", slug)
			return nil
		}
		return err
	}

	logSuccess("Sandbox %s deleted", slug)
	return nil
}
