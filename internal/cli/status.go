package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vvka-141/fanload/internal/tui"
	"github.com/vvka-141/fanload/pkg/fanload"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ledger counts per status",
	Long: `Status prints how many ledger rows are PENDING, COMPLETED and FAILED.
With --failed it also lists every FAILED file with its error detail.

Examples:
  fanload status -d climate
  fanload status -d climate --failed`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

type statusFlagValues struct {
	conn   connectionFlags
	failed bool
}

var statusFlags statusFlagValues

func init() {
	rootCmd.AddCommand(statusCmd)
	addConnectionFlags(statusCmd, &statusFlags.conn)

	statusCmd.Flags().BoolVar(&statusFlags.failed, "failed", false,
		"List FAILED files with their error detail")
}

func runStatus(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)
	ctx, stop := commandContext(cmd)
	defer stop()

	cfg, err := loadProjectConfig(&statusFlags.conn)
	if err != nil {
		return err
	}
	sess, err := openSession(ctx, &statusFlags.conn, cfg, 0, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	summary, err := sess.ledger.Summary(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, tui.RenderLedger(sess.ledger.Table(), summary))

	if statusFlags.failed {
		items, err := sess.ledger.Items(ctx, fanload.StatusFailed)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, tui.TitleStyle.Render("Failed files"))
		fmt.Fprintln(os.Stdout, tui.RenderItems(items))
	}
	return nil
}
