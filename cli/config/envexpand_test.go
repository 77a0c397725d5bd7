package config

import "testing"

func TestExpandEnv(t *testing.T) {
	t.Setenv("VK_SET", "value")
	t.Setenv("VK_EMPTY", "")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"set", "${VK_SET}", "value"},
		{"set with default", "${VK_SET:-other}", "value"},
		{"unset", "${VK_UNSET_XYZ}", ""},
		{"unset with default", "${VK_UNSET_XYZ:-fallback}", "fallback"},
		{"empty takes default", "${VK_EMPTY:-fallback}", "fallback"},
		{"empty default", "${VK_UNSET_XYZ:-}", ""},
		{"bare dollar untouched", "println('$VK_SET')", "println('$VK_SET')"},
		{"embedded", "redis://${VK_SET}:6379/0", "redis://value:6379/0"},
		{"multiple", "${VK_SET}-${VK_UNSET_XYZ:-d}", "value-d"},
		{"no vars", "plain text", "plain text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandEnv(tt.input); got != tt.want {
				t.Errorf("ExpandEnv(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
