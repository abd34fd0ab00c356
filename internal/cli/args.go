package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vvka-141/fanload/pkg/fanload"
)

// OptionalCorpusDir accepts zero or one <corpus_dir> argument.
func OptionalCorpusDir(cmd *cobra.Command, args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("accepts at most 1 arg(s), received %d", len(args))
	}
	return nil
}

// resolveCorpusDir returns the argument when given, else the configured corpus dir.
// Returns a helpful error with usage and examples when neither is set.
func resolveCorpusDir(cmd *cobra.Command, args []string, configured string) (string, error) {
	if len(args) == 1 && args[0] != "" {
		return args[0], nil
	}
	if configured != "" {
		return configured, nil
	}
	return "", fmt.Errorf(`missing required argument: <corpus_dir>

Usage: %s

Example:
  %s /data/ghcnd_all -d climate

Or set corpus.dir in fanload.yaml: %w`, cmd.UseLine(), cmd.CommandPath(), fanload.ErrInvalidConfig)
}
