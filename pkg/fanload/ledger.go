package fanload

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Ledger is the durable, database-resident record of every input file and its status.
// It is the single source of truth for what remains to be done.
type Ledger interface {
	// EnsureSchema creates the ledger table if it does not exist.
	EnsureSchema(ctx context.Context) error

	// Register adds new PENDING rows; paths already present are left untouched.
	// Returns the number of rows actually inserted.
	Register(ctx context.Context, paths []string) (int64, error)

	// Claim opens a transaction and locks up to limit PENDING rows, skipping rows
	// locked by other claimers. An empty claim still holds an open transaction.
	Claim(ctx context.Context, limit int) (Claim, error)

	// ResetAll returns every row to PENDING with counts and error cleared.
	ResetAll(ctx context.Context) (int64, error)

	// Summary counts rows per status.
	Summary(ctx context.Context) (LedgerSummary, error)

	// Items lists rows, optionally filtered by status, ordered by path.
	Items(ctx context.Context, status Status) ([]WorkItem, error)
}

// Claim is a set of exclusively locked PENDING rows plus the open transaction
// holding the locks. Row locks are released only by Commit or Rollback.
type Claim interface {
	// Paths returns the claimed file paths in ledger order.
	Paths() []string

	// WithinItem runs fn in a savepoint of the claim transaction. If fn fails the
	// savepoint is rolled back so none of its writes become visible, while the
	// claim (and its locks) stays usable.
	WithinItem(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error

	// UpdateStatus records the outcome of one claimed file inside the claim transaction.
	UpdateStatus(ctx context.Context, outcome ItemOutcome) error

	// Commit makes all recorded outcomes and ingested rows durable and releases the locks.
	Commit(ctx context.Context) error

	// Rollback discards everything done under the claim; rows return to PENDING.
	// Safe to call after Commit.
	Rollback(ctx context.Context) error
}
