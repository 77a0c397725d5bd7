// Package types defines core domain types for the V kernel.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
)

// SignatureScheme is the only message signing scheme the kernel implements.
const SignatureScheme = "hmac-sha256"

// ConnectionSpec is the parsed connection file handed to the kernel at startup.
// It is read once and never mutated.
type ConnectionSpec struct {
	IP              string `json:"ip"`
	Transport       string `json:"transport"`
	ShellPort       int    `json:"shell_port"`
	IOPubPort       int    `json:"iopub_port"`
	StdinPort       int    `json:"stdin_port"`
	ControlPort     int    `json:"control_port"`
	HBPort          int    `json:"hb_port"`
	Key             string `json:"key"`
	SignatureScheme string `json:"signature_scheme"`
	KernelName      string `json:"kernel_name,omitempty"`
}

// Endpoint returns the bind address for a port, e.g. tcp://127.0.0.1:5555.
func (c *ConnectionSpec) Endpoint(port int) string {
	return fmt.Sprintf("%s://%s:%d", c.Transport, c.IP, port)
}

// Validate checks that every required field is present and that the
// signing scheme, when given, is one the kernel can verify.
func (c *ConnectionSpec) Validate() error {
	var errs []error
	if c.IP == "" {
		errs = append(errs, errors.New("ip is required"))
	}
	if c.Transport == "" {
		errs = append(errs, errors.New("transport is required"))
	}
	ports := []struct {
		name string
		port int
	}{
		{"shell_port", c.ShellPort},
		{"iopub_port", c.IOPubPort},
		{"stdin_port", c.StdinPort},
		{"control_port", c.ControlPort},
		{"hb_port", c.HBPort},
	}
	for _, p := range ports {
		if p.port <= 0 || p.port > 65535 {
			errs = append(errs, fmt.Errorf("%s must be a port number, got %d", p.name, p.port))
		}
	}
	if c.SignatureScheme != "" && c.SignatureScheme != SignatureScheme {
		errs = append(errs, fmt.Errorf("signature_scheme must be %q, got %q", SignatureScheme, c.SignatureScheme))
	}
	return errors.Join(errs...)
}

// KeyBytes returns the authentication key as bytes.
// An empty key selects unauthenticated mode.
func (c *ConnectionSpec) KeyBytes() []byte {
	return []byte(c.Key)
}
