package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/urfave/cli/v2"
)

// DefaultKernelName is the kernelspec directory name.
const DefaultKernelName = "v"

// KernelSpec is the kernel.json document notebook front-ends read to
// launch the kernel.
type KernelSpec struct {
	Argv          []string `json:"argv"`
	DisplayName   string   `json:"display_name"`
	Language      string   `json:"language"`
	InterruptMode string   `json:"interrupt_mode"`
}

// NewKernelSpec builds the spec for exe. configPath is passed through
// as --config when non-empty.
func NewKernelSpec(exe, configPath string) KernelSpec {
	argv := []string{exe}
	if configPath != "" {
		argv = append(argv, "--config", configPath)
	}
	argv = append(argv, "{connection_file}")
	return KernelSpec{
		Argv:          argv,
		DisplayName:   "V",
		Language:      "v",
		InterruptMode: "message",
	}
}

// WriteKernelSpec writes <dir>/<name>/kernel.json and returns its path.
func WriteKernelSpec(dir, name string, spec KernelSpec) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid kernel name %q", name)
	}
	target := filepath.Join(dir, name)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("cannot create %s: %w", target, err)
	}

	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(target, "kernel.json")
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("cannot write %s: %w", path, err)
	}
	return path, nil
}

// DefaultKernelsDir returns the per-user Jupyter kernels directory.
func DefaultKernelsDir() (string, error) {
	if d := os.Getenv("JUPYTER_DATA_DIR"); d != "" {
		return filepath.Join(d, "kernels"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Jupyter", "kernels"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA is not set")
		}
		return filepath.Join(appData, "jupyter", "kernels"), nil
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "jupyter", "kernels"), nil
		}
		return filepath.Join(home, ".local", "share", "jupyter", "kernels"), nil
	}
}

// InstallCommand returns the install command.
func InstallCommand() *cli.Command {
	return &cli.Command{
		Name:  "install",
		Usage: "Install the kernelspec so notebook front-ends can launch the kernel",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Kernels directory (default: per-user Jupyter data dir)",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Kernelspec name",
				Value: DefaultKernelName,
			},
			&cli.StringFlag{
				Name:  "executable",
				Usage: "Kernel binary recorded in argv (default: this binary)",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Kernel config file passed to every launch",
			},
		},
		Action: installAction,
	}
}

func installAction(c *cli.Context) error {
	dir := c.String("dir")
	if dir == "" {
		d, err := DefaultKernelsDir()
		if err != nil {
			return cli.Exit(fmt.Sprintf("cannot locate kernels directory: %v", err), exitFailure)
		}
		dir = d
	}

	exe := c.String("executable")
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return cli.Exit(fmt.Sprintf("cannot locate kernel binary: %v", err), exitFailure)
		}
		exe = self
	}

	configPath := c.String("config")
	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return cli.Exit(err.Error(), exitFailure)
		}
		configPath = abs
	}

	path, err := WriteKernelSpec(dir, c.String("name"), NewKernelSpec(exe, configPath))
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	fmt.Fprintf(c.App.Writer, "Installed kernelspec %s in %s\n", c.String("name"), filepath.Dir(path))
	return nil
}
