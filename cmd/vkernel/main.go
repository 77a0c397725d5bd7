// Package main is the vkernel entrypoint: a notebook kernel for the V
// language.
//
// Usage:
//
//	vkernel [--config FILE] <connection_file>
//	vkernel run <connection_file>
//	vkernel install [--dir D] [--name v]
//	vkernel journal <journal file | scratch dir> [--format F] [--tui]
//	vkernel version
//
// Exit codes: 0 after a clean shutdown, 1 on bootstrap or usage failure.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/vkernel/cli/cmd"
	"github.com/justapithecus/vkernel/types"
)

// commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "vkernel",
		Usage:          "Notebook kernel for the V language",
		ArgsUsage:      "<connection_file>",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Flags:          cmd.KernelFlags(),
		Action:         cmd.RunAction,
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.RunCommand(),
			cmd.InstallCommand(),
			cmd.JournalCommand(),
			cmd.VersionCommand(commit),
		},
	}
}

func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	code, msg := exitStatus(err)
	if msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}

// exitStatus maps err to a process exit code and the message to print.
// cli.Exit codes pass through, even when wrapped. Anything else is 1.
func exitStatus(err error) (int, string) {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		// cli.Exit("", N) reports "exit status N"; nothing to print.
		if msg == fmt.Sprintf("exit status %d", code) {
			msg = ""
		}
		return code, msg
	}
	return 1, fmt.Sprintf("Error: %v", err)
}
