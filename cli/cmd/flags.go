// Package cmd provides the CLI commands of the vkernel binary.
package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/vkernel/cli/config"
)

// exitFailure is the exit code for bootstrap and usage failures.
const exitFailure = 1

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// TUIFlag enables the Bubble Tea viewer. Only `journal` supports it.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (journal only)",
	}
)

// ReadOnlyFlags returns the shared flags for read-only commands.
// --tui is accepted everywhere so unsupported commands can reject it
// with a clear message instead of "flag provided but not defined".
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{FormatFlag, TUIFlag}
}

// KernelFlags are accepted by the root action and `run`. Flags override
// the config file.
func KernelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to kernel config file (YAML)",
			EnvVars: []string{config.EnvConfigPath},
		},
		&cli.StringFlag{
			Name:  "toolchain",
			Usage: "V toolchain binary (default: v on PATH)",
		},
		&cli.StringFlag{
			Name:  "scratch-root",
			Usage: "Parent directory for the session scratch directory",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Kill the toolchain after this long (0 = no limit)",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
	}
}
