package main

import (
	"os"

	"github.com/litterbox-sh/litterbox/cmd"
	"github.com/litterbox-sh/litterbox/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(errors.GetExitCode(err))
	}
}
