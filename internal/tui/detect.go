// Package tui renders terminal output for interactive operators: run progress
// and the final summary.
package tui

import (
	"io"
	"os"

	"golang.org/x/term"
)

// Mode tells whether a human is expected at the terminal.
type Mode int

const (
	// ModeNonInteractive covers scripts, pipelines and CI jobs.
	ModeNonInteractive Mode = iota
	// ModeInteractive means prompts can be answered.
	ModeInteractive
)

// automationVars force non-interactive mode when set to a non-empty value.
var automationVars = []string{"CI", "NO_COLOR"}

// DetectMode reports ModeInteractive only when both stdin and stderr are
// terminals and neither FANLOAD_NON_INTERACTIVE=1 nor any automation variable
// is set.
func DetectMode() Mode {
	return modeFor(os.Getenv, isTerminal(os.Stdin) && isTerminal(os.Stderr))
}

func modeFor(getenv func(string) string, tty bool) Mode {
	if getenv("FANLOAD_NON_INTERACTIVE") == "1" {
		return ModeNonInteractive
	}
	for _, v := range automationVars {
		if getenv(v) != "" {
			return ModeNonInteractive
		}
	}
	if !tty {
		return ModeNonInteractive
	}
	return ModeInteractive
}

// IsInteractive reports whether DetectMode returns ModeInteractive.
func IsInteractive() bool {
	return DetectMode() == ModeInteractive
}

// isTerminal reports whether w is a terminal file.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
