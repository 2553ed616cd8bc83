package cmd

import (
	"sort"

	"github.com/litterbox-sh/litterbox/internal/errors"
	"github.com/litterbox-sh/litterbox/internal/sandbox"
	"github.com/litterbox-sh/litterbox/internal/tui"
)

// pickSandbox runs the interactive picker when a subcommand was invoked
// without a sandbox name.
func pickSandbox(records []*sandbox.Record, action string) (string, error) {
	sort.Slice(records, func(i, j int) bool { return records[i].Slug < records[j].Slug })

	record, err := tui.Pick(records, action)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", errors.New(errors.ExitGeneralError, "no sandbox selected")
	}
	return record.Slug, nil
}
