package services

import (
	"context"
	"fmt"

	"github.com/vvka-141/fanload/internal/corpus"
	"github.com/vvka-141/fanload/pkg/fanload"
)

// batchGlob matches every file of the current batch; served directories hold
// nothing else while a batch is loaded.
const batchGlob = "*"

// runBatches claims up to BatchSize files at a time and loads each batch
// through one external relation spanning the whole fleet.
func (s *LoadService) runBatches(ctx context.Context, r *run, fleet fanload.Fleet, cfg fanload.RunConfig) error {
	q := newQuota(cfg.MaxFiles)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		claim, ok, err := s.claim(ctx, r, q, cfg.BatchSize)
		if err != nil || !ok {
			return err
		}
		if err := s.processBatch(ctx, r, claim, fleet, cfg); err != nil {
			return err
		}
	}
}

func (s *LoadService) processBatch(ctx context.Context, r *run, claim fanload.Claim, fleet fanload.Fleet, cfg fanload.RunConfig) error {
	defer s.rollback(ctx, claim)
	if s.metrics != nil {
		s.metrics.WorkerStarted()
		defer s.metrics.WorkerFinished()
	}

	results := s.ingestBatch(ctx, claim, fleet, claim.Paths(), cfg)
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, res := range results {
		if err := claim.UpdateStatus(ctx, res.outcome); err != nil {
			return err
		}
	}
	return s.commit(ctx, r, claim, results)
}

// batchLocations returns the glob location of every member that received files,
// in slot order. A member serving an empty directory fails the whole scan.
func batchLocations(fleet fanload.Fleet, placed map[string][]string) []string {
	var out []string
	for slot, dir := range fleet.Dirs() {
		if len(placed[dir]) > 0 {
			out = append(out, fleet.Location(slot, batchGlob))
		}
	}
	return out
}

// ingestBatch returns one result per path. Only an aggregate count exists, so
// items carry no per-file counts; a mismatch puts the aggregate detail on every item.
func (s *LoadService) ingestBatch(ctx context.Context, claim fanload.Claim, fleet fanload.Fleet, paths []string, cfg fanload.RunConfig) []fileResult {
	s.logger.Verbose("Processing batch of %d files", len(paths))

	failAll := func(err error) []fileResult {
		s.logger.Error("Error processing batch of %d files: %v", len(paths), err)
		out := make([]fileResult, len(paths))
		for i, p := range paths {
			out[i] = fileResult{outcome: fanload.Failed(p, err)}
		}
		return out
	}

	counts, err := corpus.CountAllFunc(ctx, paths, cfg.Concurrency, s.countRecords)
	if err != nil {
		return failAll(fmt.Errorf("count records: %w", err))
	}
	var expected int64
	for _, n := range counts {
		expected += n
	}

	dirs := fleet.Dirs()
	placed, err := s.distributor.Distribute(paths, dirs)
	if err != nil {
		return failAll(err)
	}
	defer s.clear(dirs)

	req := s.loader.Prepare(fanload.IngestRequest{
		Key:       "batch",
		Paths:     paths,
		Locations: batchLocations(fleet, placed),
	})
	res, err := s.ingest(ctx, claim, req)
	if err != nil {
		return failAll(err)
	}

	detail := ""
	if res.Inserted != expected {
		detail = fanload.MismatchDetail(res.Inserted, expected)
		s.logger.Info("Batch of %d files: %s", len(paths), detail)
	} else {
		s.logger.Verbose("Inserted %d rows from %d files", res.Inserted, len(paths))
	}

	out := make([]fileResult, len(paths))
	for i, p := range paths {
		o := fanload.Completed(p, nil, nil, detail)
		if detail != "" && cfg.MismatchPolicy == fanload.MismatchFail {
			o.Status = fanload.StatusFailed
		}
		out[i] = fileResult{outcome: o, mismatch: detail != ""}
	}
	// Attribute the aggregate row count once per batch.
	out[0].inserted = res.Inserted
	return out
}
