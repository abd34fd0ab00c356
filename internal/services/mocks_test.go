package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vvka-141/fanload/pkg/fanload"
)

// memLedger is an in-memory ledger whose claims lock rows until commit or rollback.
type memLedger struct {
	mu       sync.Mutex
	items    map[string]*fanload.WorkItem
	locked   map[string]bool
	claimErr error
	claims   int
	resets   int
}

func newMemLedger(paths ...string) *memLedger {
	l := &memLedger{items: map[string]*fanload.WorkItem{}, locked: map[string]bool{}}
	_, _ = l.Register(context.Background(), paths)
	return l
}

func (l *memLedger) EnsureSchema(context.Context) error { return nil }

func (l *memLedger) Register(_ context.Context, paths []string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, p := range paths {
		if _, ok := l.items[p]; !ok {
			l.items[p] = &fanload.WorkItem{FilePath: p, Status: fanload.StatusPending}
			n++
		}
	}
	return n, nil
}

func (l *memLedger) Claim(ctx context.Context, limit int) (fanload.Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.claimErr != nil {
		return nil, l.claimErr
	}
	l.claims++

	var pending []string
	for p, it := range l.items {
		if it.Status == fanload.StatusPending && !l.locked[p] {
			pending = append(pending, p)
		}
	}
	sort.Strings(pending)
	if len(pending) > limit {
		pending = pending[:limit]
	}
	for _, p := range pending {
		l.locked[p] = true
	}
	return &memClaim{ledger: l, paths: pending}, nil
}

func (l *memLedger) ResetAll(context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resets++
	for _, it := range l.items {
		*it = fanload.WorkItem{FilePath: it.FilePath, Status: fanload.StatusPending}
	}
	return int64(len(l.items)), nil
}

func (l *memLedger) Summary(context.Context) (fanload.LedgerSummary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var s fanload.LedgerSummary
	for _, it := range l.items {
		switch it.Status {
		case fanload.StatusPending:
			s.Pending++
		case fanload.StatusCompleted:
			s.Completed++
		case fanload.StatusFailed:
			s.Failed++
		}
	}
	return s, nil
}

func (l *memLedger) Items(_ context.Context, status fanload.Status) ([]fanload.WorkItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []fanload.WorkItem
	for _, it := range l.items {
		if status == "" || it.Status == status {
			out = append(out, *it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FilePath < out[j].FilePath })
	return out, nil
}

func (l *memLedger) item(path string) fanload.WorkItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.items[path]
}

func (l *memLedger) lockedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, v := range l.locked {
		if v {
			n++
		}
	}
	return n
}

type memClaim struct {
	ledger  *memLedger
	paths   []string
	updates []fanload.ItemOutcome
	closed  bool
}

func (c *memClaim) Paths() []string { return append([]string(nil), c.paths...) }

func (c *memClaim) WithinItem(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	if c.closed {
		return fmt.Errorf("%w: closed", fanload.ErrLedger)
	}
	return fn(ctx, nil)
}

func (c *memClaim) UpdateStatus(ctx context.Context, o fanload.ItemOutcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, p := range c.paths {
		if p == o.Path {
			c.updates = append(c.updates, o)
			return nil
		}
	}
	return fmt.Errorf("%w: %s not held", fanload.ErrLedger, o.Path)
}

func (c *memClaim) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.ledger.mu.Lock()
	defer c.ledger.mu.Unlock()
	for _, o := range c.updates {
		it := c.ledger.items[o.Path]
		it.Status = o.Status
		it.ExpectedRecordCount = o.Expected
		it.InsertedRecordCount = o.Inserted
		it.ErrorDetail = o.Detail
	}
	c.release()
	return nil
}

func (c *memClaim) Rollback(context.Context) error {
	c.ledger.mu.Lock()
	defer c.ledger.mu.Unlock()
	c.release()
	return nil
}

func (c *memClaim) release() {
	if c.closed {
		return
	}
	c.closed = true
	for _, p := range c.paths {
		delete(c.ledger.locked, p)
	}
}

// fakeLoader reports rows from a per-key table; keys listed in fail return an error.
type fakeLoader struct {
	mode     fanload.LoaderMode
	fleet    bool
	rows     map[string]int64
	fail     map[string]error
	total    int64
	block    chan struct{}
	started  chan struct{}
	mu       sync.Mutex
	requests []fanload.IngestRequest
	recovers []string
}

func (f *fakeLoader) Mode() fanload.LoaderMode { return f.mode }
func (f *fakeLoader) RequiresFleet() bool      { return f.fleet }

func (f *fakeLoader) Prepare(req fanload.IngestRequest) fanload.IngestRequest {
	req.Relation = "rel_" + req.Key
	return req
}

func (f *fakeLoader) Ingest(ctx context.Context, _ pgx.Tx, req fanload.IngestRequest) (fanload.IngestResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.block != nil {
		if f.started != nil {
			f.started <- struct{}{}
		}
		select {
		case <-f.block:
		case <-ctx.Done():
			return fanload.IngestResult{}, ctx.Err()
		}
	}
	if err := f.fail[req.Key]; err != nil {
		return fanload.IngestResult{}, err
	}
	if n, ok := f.rows[req.Key]; ok {
		return fanload.IngestResult{Inserted: n}, nil
	}
	return fanload.IngestResult{Inserted: 10}, nil
}

func (f *fakeLoader) Recover(_ context.Context, _ fanload.DBConnection, req fanload.IngestRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recovers = append(f.recovers, req.Relation)
	return nil
}

func (f *fakeLoader) TotalRows(context.Context, fanload.DBConnection) (int64, error) {
	return f.total, nil
}

func (f *fakeLoader) ingested() []fanload.IngestRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fanload.IngestRequest(nil), f.requests...)
}

type fakeFleet struct {
	dirs   []string
	mu     sync.Mutex
	closes int
}

func newFakeFleet(root string, size int) *fakeFleet {
	f := &fakeFleet{}
	for i := 0; i < size; i++ {
		f.dirs = append(f.dirs, filepath.Join(root, fmt.Sprintf("fanload_%d", i)))
	}
	return f
}

func (f *fakeFleet) Size() int           { return len(f.dirs) }
func (f *fakeFleet) Dir(slot int) string { return f.dirs[slot] }
func (f *fakeFleet) Dirs() []string      { return f.dirs }

func (f *fakeFleet) Location(slot int, name string) string {
	return fmt.Sprintf("gpfdist://localhost:%d/%s", 8081+slot, name)
}

func (f *fakeFleet) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeFleet) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// fakeDistributor records placements; paths in collide fail with ErrNameCollision.
type fakeDistributor struct {
	mu      sync.Mutex
	collide map[string]bool
	placed  map[string][]string
	clears  int
}

func newFakeDistributor() *fakeDistributor {
	return &fakeDistributor{collide: map[string]bool{}, placed: map[string][]string{}}
}

func (d *fakeDistributor) Distribute(paths []string, dirs []string) (map[string][]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := map[string][]string{}
	for i, p := range paths {
		if d.collide[p] {
			return nil, fmt.Errorf("%w: %s", fanload.ErrNameCollision, p)
		}
		dir := dirs[i%len(dirs)]
		out[dir] = append(out[dir], filepath.Base(p))
		d.placed[dir] = append(d.placed[dir], p)
	}
	return out, nil
}

func (d *fakeDistributor) Clear([]string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clears++
	return nil
}

type fakeConn struct{}

func (fakeConn) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (fakeConn) QueryRow(context.Context, string, ...any) fanload.Row {
	return errRow{}
}

func (fakeConn) Acquire(context.Context) (fanload.PooledConnection, error) {
	return nil, errors.New("not supported")
}

type errRow struct{}

func (errRow) Scan(...any) error { return errors.New("not supported") }

type mockApprover struct {
	approved bool
	err      error
	asked    int64
}

func (m *mockApprover) RequestApproval(_ context.Context, _ string, rowCount int64) (bool, error) {
	m.asked = rowCount
	return m.approved, m.err
}

type countingProgress struct {
	mu       sync.Mutex
	advanced int
	finished bool
}

func (p *countingProgress) Advance(fanload.Status) {
	p.mu.Lock()
	p.advanced++
	p.mu.Unlock()
}

func (p *countingProgress) Finish() { p.finished = true }
