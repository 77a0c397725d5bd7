package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/vkernel/cli/render"
	"github.com/justapithecus/vkernel/types"
)

// VersionResponse is the output of `vkernel version`.
type VersionResponse struct {
	Version         string `json:"version" yaml:"version"`
	Commit          string `json:"commit" yaml:"commit"`
	ProtocolVersion string `json:"protocol_version" yaml:"protocol_version"`
	Implementation  string `json:"implementation" yaml:"implementation"`
}

// VersionCommand returns the version command. It never touches the
// toolchain or the network.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", exitFailure)
		}
		r, err := render.NewRenderer(c)
		if err != nil {
			return cli.Exit(err.Error(), exitFailure)
		}
		return r.Render(VersionResponse{
			Version:         types.Version,
			Commit:          commit,
			ProtocolVersion: types.ProtocolVersion,
			Implementation:  types.Implementation,
		})
	}
}
