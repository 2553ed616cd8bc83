package cmd

import (
	"fmt"
	"os"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"

	lberrors "github.com/litterbox-sh/litterbox/internal/errors"
	"github.com/litterbox-sh/litterbox/internal/name"
)

var shellCmd = &cobra.Command{
	Use:   "shell <name> -- <command...>",
	Short: "Run a command inside a sandbox",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) error {
	sandboxName := args[0]
	command := args[1:]
	if len(command) == 0 {
		return lberrors.New(lberrors.ExitGeneralError,
			"usage: litterbox shell <name> -- <command...>")
	}

	app, err := buildApp()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	slug, err := name.SlugifyName(sandboxName)
	if err != nil {
		return err
	}

	// Join the argv into one shell string with every argument quoted, so
	// each argument reaches the command as one literal word; shell
	// operators among the arguments are quoted too and not interpreted.
	argv := []string{"sh", "-c", shellquote.Join(command...)}

	result, err := app.manager.Shell(ctx, slug, argv, "", 0)
	if err != nil {
		return err
	}

	fmt.Fprint(os.Stdout, result.Stdout)
	fmt.Fprint(os.Stderr, result.Stderr)

	if result.ExitCode != 0 {
		return lberrors.New(result.ExitCode,
			fmt.Sprintf("command exited with status %d", result.ExitCode))
	}
	return nil
}
