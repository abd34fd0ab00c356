package tui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func envOf(kv map[string]string) func(string) string {
	return func(k string) string { return kv[k] }
}

func TestModeFor(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		tty  bool
		want Mode
	}{
		{"terminal without overrides", nil, true, ModeInteractive},
		{"no terminal", nil, false, ModeNonInteractive},
		{"explicit opt out", map[string]string{"FANLOAD_NON_INTERACTIVE": "1"}, true, ModeNonInteractive},
		{"opt out needs exactly 1", map[string]string{"FANLOAD_NON_INTERACTIVE": "yes"}, true, ModeInteractive},
		{"ci job", map[string]string{"CI": "true"}, true, ModeNonInteractive},
		{"no color", map[string]string{"NO_COLOR": "1"}, true, ModeNonInteractive},
		{"empty ci is ignored", map[string]string{"CI": ""}, true, ModeInteractive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, modeFor(envOf(tt.env), tt.tty))
		})
	}
}

func TestIsInteractive_FalseUnderGoTest(t *testing.T) {
	t.Setenv("FANLOAD_NON_INTERACTIVE", "")
	t.Setenv("CI", "")
	t.Setenv("NO_COLOR", "")

	assert.False(t, IsInteractive())
}

func TestIsTerminal_NonFileWriter(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))
}
