// Package main provides the vision worker CLI entrypoint.
//
// Usage:
//
//	vision <command> [options]
//
// Commands:
//   - serve: run the worker, speaking the msgpack message protocol
//     over stdin/stdout with 4-byte length-prefixed frames
//   - infer: load a model, run one frame through it, print the result
//   - inspect: print a model's declared inputs and outputs
//   - version: show version information
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const version = "0.1.0"

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:    "vision",
		Usage:   "Background vision inference worker",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Commands: []*cli.Command{
			serveCommand(),
			inferCommand(),
			inspectCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
