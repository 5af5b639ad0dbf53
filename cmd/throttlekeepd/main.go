// Package main provides the throttlekeepd entrypoint: track, inspect,
// stats, and serve subcommands over a single tracker engine instance.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	tkcli "github.com/justapithecus/throttlekeep/cli"
)

// commit is set via -ldflags at build time.
var commit = "unknown"

func main() {
	app := tkcli.NewApp()
	app.Version = fmt.Sprintf("%s (commit: %s)", tkcli.Version, commit)
	app.ExitErrHandler = exitErrHandler

	if err := app.Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
