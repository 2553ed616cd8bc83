package cmd

import (
	"github.com/spf13/cobra"

	"github.com/litterbox-sh/litterbox/internal/mcp"
)

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve the agent tool surface over stdio",
	Long: `stdio runs the JSON-RPC 2.0 server that exposes the sandbox tools
(sandbox-create, sandbox-ports, read, write, patch, shell, ls, glob, grep) to a coding
agent over newline-delimited stdin/stdout.

Structured logs go to stderr so they never corrupt the protocol stream.`,
	Args: cobra.NoArgs,
	RunE: runStdio,
}

func init() {
	rootCmd.AddCommand(stdioCmd)
}

func runStdio(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}

	coordinator := mcp.NewCoordinator(app.manager, app.repo)
	server := mcp.NewServer(app.manager, coordinator, app.cfg)
	return server.Serve()
}
