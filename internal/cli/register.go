package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vvka-141/fanload/internal/services"
)

var registerCmd = &cobra.Command{
	Use:   "register [corpus_dir]",
	Short: "Add corpus files to the work ledger as PENDING",
	Long: `Register scans a directory for input files and inserts one PENDING ledger
row per file. The ledger table is created if it does not exist. Files that are
already registered keep their status, so registering again after new files
arrive is safe.

Arguments:
  corpus_dir    Directory to scan (default: corpus.dir from fanload.yaml)

Examples:
  fanload register /data/ghcnd_all -d climate
  fanload register /data/ghcnd_all -d climate --pattern '*.csv.gz' --recursive`,
	Args:              OptionalCorpusDir,
	ValidArgsFunction: completeDirectories,
	RunE:              runRegister,
}

type registerFlagValues struct {
	conn      connectionFlags
	pattern   string
	recursive bool
}

var registerFlags registerFlagValues

func init() {
	rootCmd.AddCommand(registerCmd)
	addConnectionFlags(registerCmd, &registerFlags.conn)

	registerCmd.Flags().StringVar(&registerFlags.pattern, "pattern", "",
		"Glob matched against file names (default *.csv)")
	registerCmd.Flags().BoolVar(&registerFlags.recursive, "recursive", false,
		"Descend into subdirectories")
}

func runRegister(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)
	ctx, stop := commandContext(cmd)
	defer stop()

	cfg, err := loadProjectConfig(&registerFlags.conn)
	if err != nil {
		return err
	}
	dir, err := resolveCorpusDir(cmd, args, cfg.Corpus.Dir)
	if err != nil {
		return err
	}
	pattern := cfg.Corpus.Pattern
	if registerFlags.pattern != "" {
		pattern = registerFlags.pattern
	}
	recursive := cfg.Corpus.Recursive || registerFlags.recursive

	sess, err := openSession(ctx, &registerFlags.conn, cfg, 0, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	res, err := services.Register(ctx, sess.ledger, dir, pattern, recursive, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Registered %d new of %d files found in %s\n", res.Inserted, res.Found, dir)
	return nil
}
