package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vvka-141/fanload/internal/corpus"
	"github.com/vvka-141/fanload/internal/metrics"
	"github.com/vvka-141/fanload/pkg/fanload"
	"golang.org/x/sync/errgroup"
)

// teardownTimeout bounds fleet shutdown after the run context is gone.
const teardownTimeout = 30 * time.Second

// FleetStarter brings up a fleet of the requested size for one run.
type FleetStarter func(ctx context.Context, size int) (fanload.Fleet, error)

// ProgressReporter is told about every recorded file.
type ProgressReporter interface {
	Advance(status fanload.Status)
	Finish()
}

// LoadService runs the claim, distribute, ingest, verify, record loop.
// Thread-Safety: concurrent Run calls on one instance are safe; each run owns
// its own fleet and counters.
type LoadService struct {
	ledger      fanload.Ledger
	loader      fanload.Loader
	distributor fanload.Distributor
	conn        fanload.DBConnection
	startFleet  FleetStarter
	logger      fanload.Logger

	metrics      *metrics.Metrics
	progress     ProgressReporter
	countRecords func(path string) (int64, error)
}

// NewLoadService creates a LoadService. Panics on nil dependencies; startFleet
// and distributor may be nil only when the loader does not read through a fleet.
func NewLoadService(
	ledger fanload.Ledger,
	loader fanload.Loader,
	distributor fanload.Distributor,
	conn fanload.DBConnection,
	startFleet FleetStarter,
	logger fanload.Logger,
) *LoadService {
	if ledger == nil {
		panic("ledger cannot be nil")
	}
	if loader == nil {
		panic("loader cannot be nil")
	}
	if conn == nil {
		panic("conn cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	if loader.RequiresFleet() && (startFleet == nil || distributor == nil) {
		panic("loader " + string(loader.Mode()) + " requires startFleet and distributor")
	}
	return &LoadService{
		ledger:       ledger,
		loader:       loader,
		distributor:  distributor,
		conn:         conn,
		startFleet:   startFleet,
		logger:       logger,
		countRecords: corpus.CountRecords,
	}
}

// WithMetrics records run metrics into m.
func (s *LoadService) WithMetrics(m *metrics.Metrics) *LoadService {
	s.metrics = m
	return s
}

// WithProgress reports each recorded file to p.
func (s *LoadService) WithProgress(p ProgressReporter) *LoadService {
	s.progress = p
	return s
}

// Run processes PENDING files until the quota is met or the ledger is
// exhausted. File-level failures are recorded in the ledger and never abort
// the run; fleet start failure, ledger errors and cancellation do. The fleet
// is torn down on every path.
func (s *LoadService) Run(ctx context.Context, cfg fanload.RunConfig) (fanload.RunSummary, error) {
	if err := cfg.Validate(); err != nil {
		return fanload.RunSummary{}, err
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	r := &run{id: uuid.NewString(), started: time.Now(), logger: s.logger, metrics: s.metrics}
	s.logger.Verbose("Starting run %s: mode=%s concurrency=%d quota=%d", r.id, cfg.Mode, cfg.Concurrency, cfg.MaxFiles)

	err := s.execute(ctx, r, cfg)
	if s.progress != nil {
		s.progress.Finish()
	}

	if r.currentState() != fanload.StateFailedStart {
		r.setState(fanload.StateStopped)
	}

	totalRows, totalErr := s.loader.TotalRows(context.WithoutCancel(ctx), s.conn)
	if totalErr != nil {
		s.logger.Error("Cannot count destination rows: %v", totalErr)
	}
	return r.summary(totalRows), err
}

func (s *LoadService) execute(ctx context.Context, r *run, cfg fanload.RunConfig) error {
	var fleet fanload.Fleet
	if s.loader.RequiresFleet() {
		r.setState(fanload.StateStartingFleet)
		f, err := s.startFleet(ctx, cfg.Concurrency)
		if err != nil {
			r.setState(fanload.StateFailedStart)
			return err
		}
		fleet = f
		defer s.teardown(ctx, fleet)
		if s.metrics != nil {
			s.metrics.SetFleetMembers(fleet.Size())
		}
	}

	r.setState(fanload.StateRunning)
	var err error
	if cfg.Mode == fanload.ModeBatch {
		err = s.runBatches(ctx, r, fleet, cfg)
	} else {
		err = s.runWorkers(ctx, r, fleet, cfg)
	}
	r.setState(fanload.StateDraining)
	return err
}

// teardown closes the fleet. Errors are logged so they never mask the run result.
func (s *LoadService) teardown(ctx context.Context, fleet fanload.Fleet) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()
	if err := fleet.Close(ctx); err != nil {
		s.logger.Error("Fleet teardown: %v", err)
	}
	if s.metrics != nil {
		s.metrics.SetFleetMembers(0)
	}
}

// runWorkers starts one worker per fleet slot, or Concurrency workers when no
// fleet is used. A worker error cancels the others.
func (s *LoadService) runWorkers(ctx context.Context, r *run, fleet fanload.Fleet, cfg fanload.RunConfig) error {
	n := cfg.Concurrency
	if fleet != nil {
		n = fleet.Size()
	}
	q := newQuota(cfg.MaxFiles)

	g, gctx := errgroup.WithContext(ctx)
	for slot := 0; slot < n; slot++ {
		g.Go(func() error {
			return s.worker(gctx, r, q, fleet, slot, cfg)
		})
	}
	return g.Wait()
}

func (s *LoadService) worker(ctx context.Context, r *run, q *quota, fleet fanload.Fleet, slot int, cfg fanload.RunConfig) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		claim, ok, err := s.claim(ctx, r, q, cfg.ClaimSize)
		if err != nil || !ok {
			return err
		}
		if err := s.processClaim(ctx, r, claim, fleet, slot, cfg); err != nil {
			return err
		}
	}
}

// claim reserves quota and claims up to want files. ok is false when there is
// nothing left to do.
func (s *LoadService) claim(ctx context.Context, r *run, q *quota, want int) (fanload.Claim, bool, error) {
	want = q.reserve(want)
	if want == 0 {
		r.drain("file quota reached")
		return nil, false, nil
	}
	claim, err := s.ledger.Claim(ctx, want)
	if err != nil {
		q.release(want)
		s.recordClaim("error")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		return nil, false, err
	}
	got := len(claim.Paths())
	q.release(want - got)
	if got == 0 {
		s.recordClaim("empty")
		if err := claim.Rollback(ctx); err != nil {
			s.logger.Verbose("Release empty claim: %v", err)
		}
		r.drain("ledger exhausted")
		return nil, false, nil
	}
	s.recordClaim("claimed")
	return claim, true, nil
}

func (s *LoadService) recordClaim(result string) {
	if s.metrics != nil {
		s.metrics.RecordClaim(result)
	}
}

// processClaim ingests each claimed file, records every outcome in the claim
// transaction and commits. Cancellation rolls the claim back so its files stay PENDING.
func (s *LoadService) processClaim(ctx context.Context, r *run, claim fanload.Claim, fleet fanload.Fleet, slot int, cfg fanload.RunConfig) error {
	defer s.rollback(ctx, claim)

	if s.metrics != nil {
		s.metrics.WorkerStarted()
		defer s.metrics.WorkerFinished()
	}

	var results []fileResult
	for _, path := range claim.Paths() {
		res := s.processFile(ctx, claim, fleet, slot, path, cfg)
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := claim.UpdateStatus(ctx, res.outcome); err != nil {
			return err
		}
		results = append(results, res)
	}
	return s.commit(ctx, r, claim, results)
}

func (s *LoadService) commit(ctx context.Context, r *run, claim fanload.Claim, results []fileResult) error {
	if err := claim.Commit(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	for _, res := range results {
		r.record(res)
		if s.progress != nil {
			s.progress.Advance(res.outcome.Status)
		}
	}
	return nil
}

func (s *LoadService) rollback(ctx context.Context, claim fanload.Claim) {
	if err := claim.Rollback(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error("Release claim: %v", err)
	}
}

// processFile loads one file through slot's served directory (when a fleet is
// used) and reconciles the counts.
func (s *LoadService) processFile(ctx context.Context, claim fanload.Claim, fleet fanload.Fleet, slot int, path string, cfg fanload.RunConfig) fileResult {
	s.logger.Verbose("Processing %s", path)

	expected, err := s.countRecords(path)
	if err != nil {
		return s.failed(ctx, path, fmt.Errorf("count records: %w", err))
	}
	s.logger.Debug("%s: %d records (excluding header)", path, expected)

	req := s.loader.Prepare(fanload.IngestRequest{Key: corpus.SourceKey(path), Paths: []string{path}})
	if fleet != nil {
		dir := fleet.Dir(slot)
		placed, err := s.distributor.Distribute([]string{path}, []string{dir})
		if err != nil {
			return s.failed(ctx, path, err)
		}
		defer s.clear([]string{dir})
		req.Locations = []string{fleet.Location(slot, placed[dir][0])}
	}

	res, err := s.ingest(ctx, claim, req)
	if err != nil {
		return s.failed(ctx, path, err)
	}
	return s.reconcile(path, expected, res.Inserted, cfg.MismatchPolicy)
}

// ingest runs the loader in a savepoint. On failure the transient relation is
// dropped on a separate connection.
func (s *LoadService) ingest(ctx context.Context, claim fanload.Claim, req fanload.IngestRequest) (fanload.IngestResult, error) {
	start := time.Now()
	var res fanload.IngestResult
	err := claim.WithinItem(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		res, err = s.loader.Ingest(ctx, tx, req)
		return err
	})
	if s.metrics != nil {
		s.metrics.ObserveIngest(time.Since(start))
	}
	if err != nil && req.Relation != "" {
		if rerr := s.loader.Recover(context.WithoutCancel(ctx), s.conn, req); rerr != nil {
			s.logger.Verbose("Recover %s: %v", req.Relation, rerr)
		}
	}
	return res, err
}

func (s *LoadService) failed(ctx context.Context, path string, err error) fileResult {
	if ctx.Err() != nil {
		s.logger.Verbose("Interrupted while processing %s: %v", path, err)
	} else {
		s.logger.Error("Error processing file %s: %v", path, err)
	}
	return fileResult{outcome: fanload.Failed(path, err)}
}

// reconcile compares counts. A mismatch is COMPLETED with a warning, or FAILED
// with the same detail under MismatchFail.
func (s *LoadService) reconcile(path string, expected, inserted int64, policy fanload.MismatchPolicy) fileResult {
	if inserted == expected {
		s.logger.Verbose("Processed %d rows for file: %s", inserted, path)
		return fileResult{outcome: fanload.Completed(path, &expected, &inserted, ""), inserted: inserted}
	}

	detail := fanload.MismatchDetail(inserted, expected)
	s.logger.Info("%s: %s", path, detail)
	o := fanload.Completed(path, &expected, &inserted, detail)
	if policy == fanload.MismatchFail {
		o.Status = fanload.StatusFailed
	}
	return fileResult{outcome: o, mismatch: true, inserted: inserted}
}

func (s *LoadService) clear(dirs []string) {
	if err := s.distributor.Clear(dirs); err != nil {
		s.logger.Error("Clear served directories: %v", err)
	}
}
