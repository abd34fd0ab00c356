package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/vvka-141/fanload/pkg/fanload"
)

// TxClaim implements fanload.Claim. It is used by one worker at a time; the
// mutex only guards against misuse, since a pgx.Tx is not concurrency safe.
type TxClaim struct {
	ledger *PostgresLedger
	tx     pgx.Tx
	paths  []string
	held   map[string]struct{}

	mu     sync.Mutex
	closed bool
}

func newTxClaim(l *PostgresLedger, tx pgx.Tx, paths []string) *TxClaim {
	held := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		held[p] = struct{}{}
	}
	return &TxClaim{ledger: l, tx: tx, paths: paths, held: held}
}

func (c *TxClaim) Paths() []string {
	out := make([]string, len(c.paths))
	copy(out, c.paths)
	return out
}

// WithinItem runs fn inside a savepoint. fn's error is returned unchanged
// when the savepoint rolls back cleanly; savepoint failures are ledger errors
// because the claim transaction is then unusable.
func (c *TxClaim) WithinItem(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: claim already closed", fanload.ErrLedger)
	}

	sp, err := c.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: savepoint: %w", fanload.ErrLedger, err)
	}
	if fnErr := fn(ctx, sp); fnErr != nil {
		if rbErr := sp.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			return fmt.Errorf("%w: rollback savepoint: %w (after: %w)", fanload.ErrLedger, rbErr, fnErr)
		}
		return fnErr
	}
	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("%w: release savepoint: %w", fanload.ErrLedger, err)
	}
	return nil
}

// UpdateStatus records o for a claimed path inside the claim transaction.
func (c *TxClaim) UpdateStatus(ctx context.Context, o fanload.ItemOutcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: claim already closed", fanload.ErrLedger)
	}
	if _, ok := c.held[o.Path]; !ok {
		return fmt.Errorf("%w: %s is not held by this claim", fanload.ErrLedger, o.Path)
	}
	if !o.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot record status %s for %s", fanload.ErrLedger, o.Status, o.Path)
	}

	sql, args, err := c.ledger.table.updateSQL(o)
	if err != nil {
		return fmt.Errorf("%w: build update: %w", fanload.ErrLedger, err)
	}
	tag, err := c.tx.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%w: update %s: %w", fanload.ErrLedger, o.Path, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: update %s affected %d rows", fanload.ErrLedger, o.Path, tag.RowsAffected())
	}
	c.ledger.logger.Debug("%s -> %s", o.Path, o.Status)
	return nil
}

func (c *TxClaim) Commit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: claim already closed", fanload.ErrLedger)
	}
	c.closed = true
	if err := c.tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", fanload.ErrLedger, err)
	}
	return nil
}

// Rollback releases the claim without recording anything. No-op after Commit.
func (c *TxClaim) Rollback(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("%w: rollback: %w", fanload.ErrLedger, err)
	}
	return nil
}

var _ fanload.Claim = (*TxClaim)(nil)
