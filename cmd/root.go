package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/litterbox-sh/litterbox/internal/compute"
	"github.com/litterbox-sh/litterbox/internal/config"
	"github.com/litterbox-sh/litterbox/internal/errors"
	"github.com/litterbox-sh/litterbox/internal/logging"
	"github.com/litterbox-sh/litterbox/internal/sandbox"
	"github.com/litterbox-sh/litterbox/internal/scm"
)

var (
	verbose    bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "litterbox",
	Short: "Disposable, snapshot-backed sandboxes for coding agents",
	Long: `litterbox gives coding agents isolated execution environments seeded
from the current repository HEAD.

Each sandbox pairs a container with a dedicated branch (litterbox/<name>);
every filesystem mutation an agent makes is captured as a commit on that
branch for human review before merging.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(verbose, jsonOutput, os.Stderr)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		logging.UserError("%v", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output logs in JSON format")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Helper aliases for user-facing output (delegates to logging package)
var (
	logInfo    = logging.UserInfo
	logSuccess = logging.UserSuccess
	logWarning = logging.UserWarning
)

// app bundles the process-scoped singletons handed to every subcommand.
type app struct {
	cfg     *config.Config
	repo    *scm.GitScm
	daemon  *compute.DockerCompute
	manager *sandbox.Manager
}

// buildApp wires the adapters for the repository in the working directory.
func buildApp() (*app, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, err
	}

	repo, err := scm.Open(".", cfg.Project.Slug)
	if err != nil {
		return nil, err
	}

	daemon, err := compute.NewDockerCompute()
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		repo:    repo,
		daemon:  daemon,
		manager: sandbox.NewManager(repo, daemon),
	}, nil
}

// loadSandboxes populates the manager from the branch namespace.
func (a *app) loadSandboxes(ctx context.Context) ([]*sandbox.Record, error) {
	if err := a.manager.LoadState(ctx); err != nil {
		return nil, err
	}
	return a.manager.List(), nil
}

// requireName extracts the sandbox name from args or, when none is given,
// runs the interactive picker over the known sandboxes. It does not check
// whether the terminal is interactive.
func (a *app) requireName(ctx context.Context, args []string, action string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}

	records, err := a.loadSandboxes(ctx)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", errors.New(errors.ExitSandboxNotFound, "no sandboxes found")
	}

	return pickSandbox(records, action)
}
