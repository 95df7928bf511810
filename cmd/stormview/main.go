package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(reportError(os.Stderr, err))
	}
}

// reportError prints err and returns the process exit code. Errors carrying
// an exit code (a failed app or preprocess run) pass that code through.
func reportError(w io.Writer, err error) int {
	if !errors.Is(err, context.Canceled) {
		fmt.Fprintln(w, err)
	}
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		if code := coded.ExitCode(); code > 0 {
			return code
		}
	}
	return 1
}
