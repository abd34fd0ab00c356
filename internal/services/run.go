package services

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/vvka-141/fanload/internal/metrics"
	"github.com/vvka-141/fanload/pkg/fanload"
)

// quota hands out file reservations against an optional cap. Zero limit
// means unlimited.
type quota struct {
	limit int64
	used  atomic.Int64
}

func newQuota(limit int) *quota {
	return &quota{limit: int64(limit)}
}

// reserve takes up to n files from the remaining quota and returns how many it got.
func (q *quota) reserve(n int) int {
	if q.limit == 0 {
		return n
	}
	for {
		cur := q.used.Load()
		left := q.limit - cur
		if left <= 0 {
			return 0
		}
		take := min(int64(n), left)
		if q.used.CompareAndSwap(cur, cur+take) {
			return int(take)
		}
	}
}

// release returns unused reservations.
func (q *quota) release(n int) {
	if q.limit == 0 || n <= 0 {
		return
	}
	q.used.Add(-int64(n))
}

// fileResult is a recorded outcome plus what the summary needs from it.
type fileResult struct {
	outcome  fanload.ItemOutcome
	mismatch bool
	inserted int64
}

// run tracks the state and counters of one Run call.
type run struct {
	id      string
	started time.Time
	logger  fanload.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	state      fanload.RunState
	processed  int
	completed  int
	failed     int
	mismatched int
}

func (r *run) setState(s fanload.RunState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setStateLocked(s)
}

func (r *run) setStateLocked(s fanload.RunState) {
	if r.state == s {
		return
	}
	if r.state == "" {
		r.logger.Verbose("Run %s: %s", r.id, s)
	} else {
		r.logger.Verbose("Run %s: %s -> %s", r.id, r.state, s)
	}
	r.state = s
	if r.metrics != nil {
		r.metrics.SetState(s)
	}
}

// drain moves RUNNING to DRAINING once the first worker runs out of work.
func (r *run) drain(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == fanload.StateRunning {
		r.logger.Verbose("No more work: %s", reason)
		r.setStateLocked(fanload.StateDraining)
	}
}

func (r *run) currentState() fanload.RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *run) record(res fileResult) {
	r.mu.Lock()
	r.processed++
	switch res.outcome.Status {
	case fanload.StatusCompleted:
		r.completed++
	case fanload.StatusFailed:
		r.failed++
	}
	if res.mismatch {
		r.mismatched++
	}
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordFile(res.outcome.Status, res.mismatch, res.inserted)
	}
}

func (r *run) summary(totalRows int64) fanload.RunSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fanload.RunSummary{
		RunID:      r.id,
		Processed:  r.processed,
		Completed:  r.completed,
		Failed:     r.failed,
		Mismatched: r.mismatched,
		TotalRows:  totalRows,
		Elapsed:    time.Since(r.started),
		State:      r.state,
	}
}
