package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vvka-141/fanload/internal/services"
	"github.com/vvka-141/fanload/internal/tui"
	"github.com/vvka-141/fanload/internal/ui"
	"github.com/vvka-141/fanload/pkg/fanload"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Rewind every ledger row to PENDING",
	Long: `Reset sets every ledger row back to PENDING and clears its counts and error
detail, so the whole corpus is loaded again by the next run. Loaded rows in the
destination table are not touched, so a reload inserts them again. Each
reloaded file is verified against the rows that load adds.

You are asked to type the ledger table name to confirm. With --force a short
countdown replaces the prompt. Without a terminal --force is required.

Examples:
  fanload reset -d climate
  fanload reset -d climate --force`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

type resetFlagValues struct {
	conn  connectionFlags
	force bool
}

var resetFlags resetFlagValues

func init() {
	rootCmd.AddCommand(resetCmd)
	addConnectionFlags(resetCmd, &resetFlags.conn)

	resetCmd.Flags().BoolVar(&resetFlags.force, "force", false,
		"Skip the confirmation prompt (a countdown still gives a chance to abort)")
}

// selectApprover picks the approver for the current terminal.
func selectApprover(force, interactive, verbose bool) (fanload.Approver, error) {
	if force {
		return ui.NewForcedApprover(verbose), nil
	}
	if !interactive {
		return nil, fmt.Errorf("reset needs confirmation but no terminal is attached; use --force: %w", fanload.ErrInvalidConfig)
	}
	return ui.NewInteractiveApprover(verbose), nil
}

func runReset(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)
	ctx, stop := commandContext(cmd)
	defer stop()

	approver, err := selectApprover(resetFlags.force, tui.IsInteractive(), getVerboseFlag(cmd))
	if err != nil {
		return err
	}
	cfg, err := loadProjectConfig(&resetFlags.conn)
	if err != nil {
		return err
	}
	sess, err := openSession(ctx, &resetFlags.conn, cfg, 0, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	n, err := services.Reset(ctx, sess.ledger, sess.ledger.Table(), approver, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%d rows reset to PENDING\n", n)
	return nil
}
