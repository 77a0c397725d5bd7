package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/justapithecus/vkernel/types"
)

// EnvConfigPath names the environment variable that points at the kernel
// config file when --config is not given.
const EnvConfigPath = "VKERNEL_CONFIG"

// Load reads a YAML kernel config, expands ${VAR} references and rejects
// unknown keys. An empty file yields the zero config.
func Load(path string) (*KernelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	dec := yaml.NewDecoder(strings.NewReader(ExpandEnv(string(data))))
	dec.KnownFields(true)

	var cfg KernelConfig
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadConnection reads and validates a connection file.
func LoadConnection(path string) (*types.ConnectionSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read connection file %q: %w", path, err)
	}

	var conn types.ConnectionSpec
	if err := json.Unmarshal(data, &conn); err != nil {
		return nil, fmt.Errorf("invalid connection file %s: %w", path, err)
	}
	if err := conn.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connection file %s: %w", path, err)
	}
	return &conn, nil
}
