package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vvka-141/fanload/internal/ledger"
	"github.com/vvka-141/fanload/internal/logging"
	testhelpers "github.com/vvka-141/fanload/internal/testing"
	"github.com/vvka-141/fanload/pkg/fanload"
)

func newLedger(t *testing.T, paths ...string) (*ledger.PostgresLedger, *pgxpool.Pool) {
	t.Helper()
	pool := testhelpers.NewTestPool(t, 20)
	l, err := ledger.New(pool, "load_control", logging.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, l.EnsureSchema(context.Background()))
	if len(paths) > 0 {
		_, err := l.Register(context.Background(), paths)
		require.NoError(t, err)
	}
	return l, pool
}

func filePaths(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("/data/f%03d.csv", i)
	}
	return out
}

func statusOf(t *testing.T, pool *pgxpool.Pool, path string) string {
	t.Helper()
	var s string
	require.NoError(t, pool.QueryRow(context.Background(), "SELECT status FROM load_control WHERE file_path = $1", path).Scan(&s))
	return s
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	l, _ := newLedger(t)
	require.NoError(t, l.EnsureSchema(context.Background()))
}

func TestRegister_Idempotent(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	n, err := l.Register(ctx, []string{"/b.csv", "/a.csv", "/a.csv"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = l.Register(ctx, []string{"/a.csv", "/c.csv"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	s, err := l.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, fanload.LedgerSummary{Pending: 3}, s)
}

func TestRegister_Chunked(t *testing.T) {
	l, _ := newLedger(t)
	n, err := l.Register(context.Background(), filePaths(fanload.RegisterChunkSize+7))
	require.NoError(t, err)
	assert.Equal(t, int64(fanload.RegisterChunkSize+7), n)
}

func TestRegister_DoesNotTouchExistingStatus(t *testing.T) {
	l, pool := newLedger(t, "/a.csv")
	ctx := context.Background()

	claim, err := l.Claim(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, claim.UpdateStatus(ctx, fanload.Failed("/a.csv", errors.New("bad"))))
	require.NoError(t, claim.Commit(ctx))

	_, err = l.Register(ctx, []string{"/a.csv"})
	require.NoError(t, err)
	assert.Equal(t, "FAILED", statusOf(t, pool, "/a.csv"))
}

func TestClaim_InvalidLimit(t *testing.T) {
	l, _ := newLedger(t)
	_, err := l.Claim(context.Background(), 0)
	assert.ErrorIs(t, err, fanload.ErrInvalidConfig)
}

func TestClaim_OrderedAndEmpty(t *testing.T) {
	l, _ := newLedger(t, "/c.csv", "/a.csv", "/b.csv")
	ctx := context.Background()

	claim, err := l.Claim(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a.csv", "/b.csv"}, claim.Paths())

	other, err := l.Claim(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"/c.csv"}, other.Paths(), "locked rows are skipped")

	empty, err := l.Claim(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, empty.Paths())

	require.NoError(t, empty.Rollback(ctx))
	require.NoError(t, other.Rollback(ctx))
	require.NoError(t, claim.Rollback(ctx))
}

func TestClaim_ConcurrentClaimsAreDisjoint(t *testing.T) {
	paths := filePaths(60)
	l, _ := newLedger(t, paths...)
	ctx := context.Background()

	var mu sync.Mutex
	seen := map[string]int{}
	var wg sync.WaitGroup
	for w := 0; w < 6; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claim, err := l.Claim(ctx, 3)
				if !assert.NoError(t, err) {
					return
				}
				if len(claim.Paths()) == 0 {
					assert.NoError(t, claim.Rollback(ctx))
					return
				}
				for _, p := range claim.Paths() {
					mu.Lock()
					seen[p]++
					mu.Unlock()
					one := int64(1)
					assert.NoError(t, claim.UpdateStatus(ctx, fanload.Completed(p, &one, &one, "")))
				}
				assert.NoError(t, claim.Commit(ctx))
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, len(paths))
	for p, n := range seen {
		assert.Equal(t, 1, n, "path %s processed more than once", p)
	}
	s, err := l.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(60), s.Completed)
	assert.Zero(t, s.Pending)
}

func TestClaim_RollbackReturnsRowsToPending(t *testing.T) {
	l, pool := newLedger(t, "/a.csv")
	ctx := context.Background()

	claim, err := l.Claim(ctx, 1)
	require.NoError(t, err)
	one := int64(1)
	require.NoError(t, claim.UpdateStatus(ctx, fanload.Completed("/a.csv", &one, &one, "")))
	require.NoError(t, claim.Rollback(ctx))
	require.NoError(t, claim.Rollback(ctx), "second rollback is a no-op")

	assert.Equal(t, "PENDING", statusOf(t, pool, "/a.csv"))
}

func TestClaim_LostConnectionReleasesRows(t *testing.T) {
	l, pool := newLedger(t, "/a.csv")
	ctx := context.Background()

	claim, err := l.Claim(ctx, 1)
	require.NoError(t, err)

	var pid int
	require.NoError(t, claim.WithinItem(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return tx.QueryRow(ctx, "SELECT pg_backend_pid()").Scan(&pid)
	}))
	_, err = pool.Exec(ctx, "SELECT pg_terminate_backend($1)", pid)
	require.NoError(t, err)

	assert.Error(t, claim.Commit(ctx))

	again, err := l.Claim(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a.csv"}, again.Paths())
	require.NoError(t, again.Rollback(ctx))
}

func TestUpdateStatus_RecordsOutcome(t *testing.T) {
	l, _ := newLedger(t, "/a.csv", "/b.csv")
	ctx := context.Background()

	claim, err := l.Claim(ctx, 2)
	require.NoError(t, err)

	expected, inserted := int64(10), int64(8)
	require.NoError(t, claim.UpdateStatus(ctx, fanload.Completed("/a.csv", &expected, &inserted, fanload.MismatchDetail(8, 10))))
	require.NoError(t, claim.UpdateStatus(ctx, fanload.Failed("/b.csv", errors.New("relation does not exist"))))
	require.NoError(t, claim.Commit(ctx))

	items, err := l.Items(ctx, "")
	require.NoError(t, err)
	require.Len(t, items, 2)

	a := items[0]
	assert.Equal(t, fanload.StatusCompleted, a.Status)
	require.NotNil(t, a.ExpectedRecordCount)
	require.NotNil(t, a.InsertedRecordCount)
	assert.Equal(t, int64(10), *a.ExpectedRecordCount)
	assert.Equal(t, int64(8), *a.InsertedRecordCount)
	require.NotNil(t, a.ErrorDetail)
	assert.Equal(t, "rows inserted: 8 (expected 10)", *a.ErrorDetail)
	assert.False(t, a.LastUpdated.IsZero())

	b := items[1]
	assert.Equal(t, fanload.StatusFailed, b.Status)
	assert.Nil(t, b.ExpectedRecordCount)
	assert.Nil(t, b.InsertedRecordCount)
	require.NotNil(t, b.ErrorDetail)
	assert.Equal(t, "relation does not exist", *b.ErrorDetail)

	failed, err := l.Items(ctx, fanload.StatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "/b.csv", failed[0].FilePath)
}

func TestUpdateStatus_RejectsUnheldPath(t *testing.T) {
	l, _ := newLedger(t, "/a.csv", "/b.csv")
	ctx := context.Background()

	claim, err := l.Claim(ctx, 1)
	require.NoError(t, err)
	defer claim.Rollback(ctx) //nolint:errcheck

	err = claim.UpdateStatus(ctx, fanload.Failed("/b.csv", errors.New("x")))
	assert.ErrorIs(t, err, fanload.ErrLedger)

	err = claim.UpdateStatus(ctx, fanload.ItemOutcome{Path: "/a.csv", Status: fanload.StatusPending})
	assert.ErrorIs(t, err, fanload.ErrLedger)
}

func TestWithinItem_SavepointDiscardsFailedWork(t *testing.T) {
	l, pool := newLedger(t, "/a.csv", "/b.csv")
	ctx := context.Background()
	_, err := pool.Exec(ctx, "CREATE TABLE dest (v INT)")
	require.NoError(t, err)

	claim, err := l.Claim(ctx, 2)
	require.NoError(t, err)

	ingestErr := errors.New("reject limit reached")
	err = claim.WithinItem(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "INSERT INTO dest VALUES (1), (2)"); err != nil {
			return err
		}
		return ingestErr
	})
	assert.ErrorIs(t, err, ingestErr)
	assert.NotErrorIs(t, err, fanload.ErrLedger)
	require.NoError(t, claim.UpdateStatus(ctx, fanload.Failed("/a.csv", err)))

	require.NoError(t, claim.WithinItem(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, "INSERT INTO dest VALUES (3)")
		return err
	}))
	one := int64(1)
	require.NoError(t, claim.UpdateStatus(ctx, fanload.Completed("/b.csv", &one, &one, "")))
	require.NoError(t, claim.Commit(ctx))

	var total int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM dest").Scan(&total))
	assert.Equal(t, 1, total)
	assert.Equal(t, "FAILED", statusOf(t, pool, "/a.csv"))
	assert.Equal(t, "COMPLETED", statusOf(t, pool, "/b.csv"))
}

func TestWithinItem_SQLErrorKeepsClaimUsable(t *testing.T) {
	l, pool := newLedger(t, "/a.csv")
	ctx := context.Background()

	claim, err := l.Claim(ctx, 1)
	require.NoError(t, err)

	err = claim.WithinItem(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, "SELECT * FROM no_such_table")
		return err
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, fanload.ErrLedger)

	require.NoError(t, claim.UpdateStatus(ctx, fanload.Failed("/a.csv", err)))
	require.NoError(t, claim.Commit(ctx))
	assert.Equal(t, "FAILED", statusOf(t, pool, "/a.csv"))
}

func TestResetAll(t *testing.T) {
	l, _ := newLedger(t, "/a.csv", "/b.csv")
	ctx := context.Background()

	claim, err := l.Claim(ctx, 2)
	require.NoError(t, err)
	require.NoError(t, claim.UpdateStatus(ctx, fanload.Failed("/a.csv", errors.New("x"))))
	require.NoError(t, claim.UpdateStatus(ctx, fanload.Completed("/b.csv", nil, nil, "")))
	require.NoError(t, claim.Commit(ctx))

	n, err := l.ResetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	items, err := l.Items(ctx, fanload.StatusPending)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, it := range items {
		assert.Nil(t, it.ErrorDetail)
		assert.Nil(t, it.ExpectedRecordCount)
	}
}

func TestSchemaQualifiedTable(t *testing.T) {
	pool := testhelpers.NewTestPool(t, 5)
	ctx := context.Background()
	_, err := pool.Exec(ctx, "CREATE SCHEMA staging")
	require.NoError(t, err)

	l, err := ledger.New(pool, "staging.load_control", logging.NewNullLogger())
	require.NoError(t, err)
	require.NoError(t, l.EnsureSchema(ctx))

	n, err := l.Register(ctx, []string{"/a.csv"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, "staging.load_control", l.Table())
}
