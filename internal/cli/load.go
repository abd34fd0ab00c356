package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/vvka-141/fanload/internal/config"
	"github.com/vvka-141/fanload/internal/db"
	"github.com/vvka-141/fanload/internal/distributor"
	"github.com/vvka-141/fanload/internal/fleet"
	"github.com/vvka-141/fanload/internal/loader"
	"github.com/vvka-141/fanload/internal/logging"
	"github.com/vvka-141/fanload/internal/metrics"
	"github.com/vvka-141/fanload/internal/services"
	"github.com/vvka-141/fanload/internal/tui"
	"github.com/vvka-141/fanload/pkg/fanload"
	"gopkg.in/natefinch/lumberjack.v2"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Claim PENDING files from the ledger and load them",
	Long: `Load starts a fleet of fast-load servers, then runs one worker per server.
Each worker claims PENDING files with FOR UPDATE SKIP LOCKED, serves them from
its own directory, inserts them through a transient external table, verifies
the inserted row count and records the outcome in the claim transaction.

A failed file is recorded as FAILED and never stops the run. Interrupting a
run rolls back in-flight claims, so those files stay PENDING. Several load
processes may share one ledger.

Modes:
  external  one external table per file (default)
  batch     one external table over the whole fleet per batch (--batch)
  copy      COPY FROM STDIN per file, no fleet; reads .csv.gz directly

Examples:
  # Load 500 files with 4 gpfdist servers
  fanload load -d climate -n 500 -g 4

  # Batch mode, 2000 files per batch, with a progress bar
  fanload load -d climate --batch --batch-size 2000 --progress

  # Plain PostgreSQL without gpfdist
  fanload load -d climate --mode copy -g 8

  # Expose Prometheus metrics during the run
  fanload load -d climate -g 8 --metrics-addr :9108`,
	Args: cobra.NoArgs,
	RunE: runLoad,
}

type loadFlagValues struct {
	conn connectionFlags

	maxFiles          int
	concurrency       int
	batch             bool
	batchSize         int
	claimSize         int
	mode              string
	mismatchPolicy    string
	displayDefinition bool
	progress          bool
	workDir           string
	linkMode          string
	basePort          int
	metricsAddr       string
	timeout           time.Duration
}

var loadFlags loadFlagValues

func init() {
	rootCmd.AddCommand(loadCmd)
	addConnectionFlags(loadCmd, &loadFlags.conn)

	f := loadCmd.Flags()
	f.IntVarP(&loadFlags.maxFiles, "files", "n", 0,
		"Maximum number of files to process in this run (0 = until the ledger is exhausted)")
	f.IntVarP(&loadFlags.concurrency, "servers", "g", 0,
		"Number of fast-load servers and parallel workers (default from fanload.yaml fleet.size)")
	f.BoolVarP(&loadFlags.batch, "batch", "b", false,
		"Load files in batches through one external table spanning the fleet")
	f.IntVar(&loadFlags.batchSize, "batch-size", 0,
		"Files per batch in batch mode (default 1000)")
	f.IntVar(&loadFlags.claimSize, "claim-size", 0,
		"Files claimed per worker cycle (default 1)")
	f.StringVar(&loadFlags.mode, "mode", "",
		"Loader mode: external|batch|copy (default external)")
	f.StringVar(&loadFlags.mismatchPolicy, "on-mismatch", "",
		"Status for files whose inserted count differs from their record count: warn|fail (default warn)")
	f.BoolVar(&loadFlags.displayDefinition, "display-definition", false,
		"Log the generated external table definition")
	f.BoolVar(&loadFlags.progress, "progress", false,
		"Display a progress bar")
	f.StringVar(&loadFlags.workDir, "work-dir", "",
		"Directory holding the served per-server directories and the fleet log")
	f.StringVar(&loadFlags.linkMode, "link-mode", "",
		"How files are placed into served directories: symlink|copy (default symlink)")
	f.IntVar(&loadFlags.basePort, "base-port", 0,
		"Port of the first fast-load server; server i listens on base+i (default 8081)")
	f.StringVar(&loadFlags.metricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address during the run (e.g. :9108)")
	f.DurationVar(&loadFlags.timeout, "timeout", 0,
		"Abort the run after this duration (0 = no limit)\n"+
			"In-flight claims are rolled back and their files stay PENDING")

	_ = loadCmd.RegisterFlagCompletionFunc("mode", completeLoaderModes)
	_ = loadCmd.RegisterFlagCompletionFunc("on-mismatch", completeMismatchPolicies)
	_ = loadCmd.RegisterFlagCompletionFunc("link-mode", completeLinkModes)
}

// applyLoadFlags overrides config values with the flags the user set.
func applyLoadFlags(cmd *cobra.Command, flags *loadFlagValues, cfg *config.ProjectConfig) {
	changed := cmd.Flags().Changed
	if changed("files") {
		cfg.Load.MaxFiles = flags.maxFiles
	}
	if changed("servers") {
		cfg.Fleet.Size = flags.concurrency
	}
	if changed("batch-size") {
		cfg.Load.BatchSize = flags.batchSize
	}
	if changed("claim-size") {
		cfg.Load.ClaimSize = flags.claimSize
	}
	if changed("mode") {
		cfg.Load.Mode = flags.mode
	}
	if flags.batch {
		cfg.Load.Mode = string(fanload.ModeBatch)
	}
	if changed("on-mismatch") {
		cfg.Load.MismatchPolicy = flags.mismatchPolicy
	}
	if changed("work-dir") {
		cfg.Fleet.WorkDir = flags.workDir
	}
	if changed("link-mode") {
		cfg.Fleet.LinkMode = flags.linkMode
	}
	if changed("base-port") {
		cfg.Fleet.BasePort = flags.basePort
	}
	if changed("metrics-addr") {
		cfg.Load.MetricsAddr = flags.metricsAddr
	}
	if changed("timeout") {
		cfg.Load.Timeout = flags.timeout
	}
}

// buildRunConfig derives the run knobs from the project config and cmd's flags.
func buildRunConfig(cmd *cobra.Command, cfg *config.ProjectConfig) (fanload.RunConfig, error) {
	debug := getDebugFlag(cmd)
	rc := fanload.RunConfig{
		MaxFiles:          cfg.Load.MaxFiles,
		Concurrency:       cfg.Fleet.Size,
		BatchSize:         cfg.Load.BatchSize,
		ClaimSize:         cfg.Load.ClaimSize,
		Mode:              fanload.LoaderMode(cfg.Load.Mode),
		MismatchPolicy:    fanload.MismatchPolicy(cfg.Load.MismatchPolicy),
		DisplayDefinition: loadFlags.displayDefinition,
		WorkDir:           cfg.Fleet.WorkDir,
		Timeout:           cfg.Load.Timeout,
		Verbose:           getVerboseFlag(cmd) || debug,
		Debug:             debug,
		Progress:          loadFlags.progress,
	}
	if err := rc.Validate(); err != nil {
		return fanload.RunConfig{}, err
	}
	return rc, nil
}

// destinationFromConfig maps the destination section onto the loader's view.
func destinationFromConfig(dc config.DestinationConfig) loader.Destination {
	cols := make([]loader.Column, len(dc.Columns))
	for i, c := range dc.Columns {
		cols[i] = loader.Column{Name: c.Name, Type: c.Type}
	}
	return loader.Destination{
		Table:              dc.Table,
		Columns:            cols,
		KeyColumn:          dc.KeyColumn,
		Distinct:           dc.Distinct,
		RejectLimitPercent: dc.RejectLimitPercent,
	}
}

// fleetOptions maps the fleet section onto manager options.
func fleetOptions(fc config.FleetConfig, out io.Writer) fleet.Options {
	return fleet.Options{
		Command:     fc.Command,
		Args:        fc.Args,
		Host:        fc.Host,
		Scheme:      fc.Scheme,
		LogPath:     filepath.Join(fc.WorkDir, fanload.FleetLogFileName),
		Output:      out,
		StartGrace:  fc.StartGrace,
		StopTimeout: fc.StopTimeout,
		Probe:       fc.Probe,
	}
}

// The fleet log is appended to by every run and rotated by size.
const (
	fleetLogMaxSizeMB  = 50
	fleetLogMaxBackups = 3
)

// fleetOutput returns where server output goes: the verbose log, or the fleet log file.
func fleetOutput(workDir string, verbose bool, logger *logging.ConsoleLogger) (io.WriteCloser, error) {
	if verbose {
		return logger.Writer(), nil
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir %s: %w", workDir, err)
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(workDir, fanload.FleetLogFileName),
		MaxSize:    fleetLogMaxSizeMB,
		MaxBackups: fleetLogMaxBackups,
	}, nil
}

func newFleetStarter(m *fleet.Manager, workDir string, basePort int) services.FleetStarter {
	return func(ctx context.Context, size int) (fanload.Fleet, error) {
		f, err := fleet.StartFleet(ctx, m, size, workDir, basePort)
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}

func runLoad(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)
	ctx, stop := commandContext(cmd)
	defer stop()

	cfg, err := loadProjectConfig(&loadFlags.conn)
	if err != nil {
		return err
	}
	applyLoadFlags(cmd, &loadFlags, cfg)

	runCfg, err := buildRunConfig(cmd, cfg)
	if err != nil {
		return err
	}
	dest := destinationFromConfig(cfg.Destination)
	ld, err := loader.New(runCfg.Mode, dest, runCfg.DisplayDefinition, logger)
	if err != nil {
		return err
	}
	linkMode, err := distributor.ParseMode(cfg.Fleet.LinkMode)
	if err != nil {
		return err
	}

	// One connection per worker transaction plus one each for recovery and the final count.
	sess, err := openSession(ctx, &loadFlags.conn, cfg, int32(2*runCfg.Concurrency+2), logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	if cfg.Destination.Create {
		ddl, err := dest.CreateSQL()
		if err != nil {
			return err
		}
		if runCfg.DisplayDefinition {
			logger.Info("Destination table definition:\n%s", ddl)
		}
		if _, err := sess.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create destination %s: %w", dest.Table, err)
		}
	}

	var starter services.FleetStarter
	if ld.RequiresFleet() {
		out, err := fleetOutput(runCfg.WorkDir, runCfg.Verbose, logger)
		if err != nil {
			return err
		}
		defer out.Close()
		mgr := fleet.NewManager(fleetOptions(cfg.Fleet, out), logger)
		starter = newFleetStarter(mgr, runCfg.WorkDir, cfg.Fleet.BasePort)
	}

	svc := services.NewLoadService(sess.ledger, ld, distributor.New(linkMode), db.NewPoolAdapter(sess.pool), starter, logger)

	if cfg.Load.MetricsAddr != "" {
		m := metrics.New()
		srv, err := metrics.Serve(cfg.Load.MetricsAddr, m)
		if err != nil {
			return fmt.Errorf("metrics endpoint %s: %w", cfg.Load.MetricsAddr, err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("Metrics endpoint shutdown: %v", err)
			}
		}()
		logger.Info("Serving metrics on http://%s/metrics", srv.Addr())
		svc.WithMetrics(m)
	}

	if runCfg.Progress {
		total, err := progressTotal(ctx, sess.ledger, runCfg.MaxFiles)
		if err != nil {
			return err
		}
		svc.WithProgress(tui.NewProgress(os.Stderr, total))
	}

	logger.Info("Loading into %s from ledger %s (mode %s, %d workers)", dest.Table, sess.ledger.Table(), runCfg.Mode, runCfg.Concurrency)
	summary, err := svc.Run(ctx, runCfg)
	fmt.Fprintln(os.Stdout, tui.RenderSummary(summary))
	return err
}

// progressTotal is the number of files the run can reach: PENDING rows capped by the quota.
func progressTotal(ctx context.Context, l fanload.Ledger, maxFiles int) (int, error) {
	s, err := l.Summary(ctx)
	if err != nil {
		return 0, err
	}
	total := int(s.Pending)
	if maxFiles > 0 && maxFiles < total {
		total = maxFiles
	}
	return total, nil
}
