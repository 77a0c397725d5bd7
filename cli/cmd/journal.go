package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/vkernel/cli/render"
	"github.com/justapithecus/vkernel/cli/tui"
	"github.com/justapithecus/vkernel/journal"
	"github.com/justapithecus/vkernel/session"
)

// JournalCommand returns the journal command, which decodes a session's
// execution journal.
func JournalCommand() *cli.Command {
	return &cli.Command{
		Name:      "journal",
		Usage:     "Show the execution journal of a kernel session",
		ArgsUsage: "<journal file | scratch dir>",
		Flags:     ReadOnlyFlags(),
		Action:    journalAction,
	}
}

func journalAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("journal path is required", exitFailure)
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, session.JournalFileName)
	}

	records, err := journal.ReadFile(path)
	if err != nil {
		// A live kernel may be mid-write; show the complete frames.
		if !journal.IsTruncated(err) {
			return cli.Exit(err.Error(), exitFailure)
		}
		fmt.Fprintf(c.App.ErrWriter, "warning: %v\n", err)
	}

	if c.Bool("tui") {
		values := make([]journal.Record, len(records))
		for i, r := range records {
			values[i] = *r
		}
		return tui.RunJournal(values)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	if records == nil {
		records = []*journal.Record{}
	}
	return r.Render(records)
}
