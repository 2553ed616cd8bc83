package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/litterbox-sh/litterbox/internal/sandbox"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all sandboxes of this repository",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}

	records, err := app.loadSandboxes(cmd.Context())
	if err != nil {
		return err
	}

	if len(records) == 0 {
		logInfo("No sandboxes found. Agents create them with the sandbox-create tool.")
		return nil
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Slug < records[j].Slug })

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tBRANCH\tCONTAINER\tSTATUS\tPORTS")
	fmt.Fprintln(w, "----\t------\t---------\t------\t-----")

	for _, record := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			record.Slug,
			record.BranchName,
			record.ContainerName,
			formatStatus(record),
			formatPorts(record),
		)
	}

	return w.Flush()
}

func formatStatus(record *sandbox.Record) string {
	switch record.Status {
	case sandbox.StatusActive:
		return "✓ active"
	case sandbox.StatusPaused:
		return "● paused"
	case sandbox.StatusError:
		return "✗ " + record.StatusMessage
	default:
		return string(record.Status)
	}
}

func formatPorts(record *sandbox.Record) string {
	if len(record.ForwardedPorts) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(record.ForwardedPorts))
	for _, fwd := range record.ForwardedPorts {
		parts = append(parts, fmt.Sprintf("%s:%d->%d", fwd.Service, fwd.HostPort, fwd.Target))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
