package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vvka-141/fanload/internal/retry"
	"github.com/vvka-141/fanload/pkg/fanload"
)

// PostgresLedger implements fanload.Ledger on a PostgreSQL/Greenplum table.
// Safe for concurrent use; each Claim owns its own transaction.
type PostgresLedger struct {
	pool   *pgxpool.Pool
	table  tableName
	retry  *retry.Executor
	logger fanload.Logger
}

// New creates a ledger over table (optionally schema-qualified).
// Panics if pool or logger is nil.
func New(pool *pgxpool.Pool, table string, logger fanload.Logger) (*PostgresLedger, error) {
	if pool == nil {
		panic("pool cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	t, err := parseTableName(table)
	if err != nil {
		return nil, err
	}
	return &PostgresLedger{
		pool:   pool,
		table:  t,
		logger: logger,
		retry: retry.NewDefaultExecutor().WithOnRetry(func(attempt int, err error, delay time.Duration) {
			logger.Verbose("Ledger claim attempt %d failed (%v), retrying in %v", attempt+1, err, delay.Round(time.Millisecond))
		}),
	}, nil
}

// Table returns the ledger table name as configured.
func (l *PostgresLedger) Table() string {
	return l.table.String()
}

func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	for _, stmt := range l.table.schemaDDL() {
		if _, err := l.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: create ledger %s: %w", fanload.ErrLedger, l.table, err)
		}
	}
	l.logger.Verbose("Ledger table %s ready", l.table)
	return nil
}

// Register inserts PENDING rows for paths not yet present, in one transaction.
// Paths are de-duplicated and sorted; inserts are chunked to bound statement size.
func (l *PostgresLedger) Register(ctx context.Context, paths []string) (int64, error) {
	unique := dedupeSorted(paths)
	if len(unique) == 0 {
		return 0, nil
	}

	var inserted int64
	err := pgx.BeginTxFunc(ctx, l.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for start := 0; start < len(unique); start += fanload.RegisterChunkSize {
			end := min(start+fanload.RegisterChunkSize, len(unique))
			sql, args, err := l.table.registerSQL(unique[start:end])
			if err != nil {
				return err
			}
			tag, err := tx.Exec(ctx, sql, args...)
			if err != nil {
				return err
			}
			inserted += tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: register: %w", fanload.ErrLedger, err)
	}
	l.logger.Verbose("Registered %d new of %d files", inserted, len(unique))
	return inserted, nil
}

// Claim begins a transaction and locks up to limit PENDING rows, skipping rows
// locked by others. Transient failures of begin/select are retried.
func (l *PostgresLedger) Claim(ctx context.Context, limit int) (fanload.Claim, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("claim limit must be positive, got %d: %w", limit, fanload.ErrInvalidConfig)
	}
	sql, args, err := l.table.claimSQL(limit)
	if err != nil {
		return nil, fmt.Errorf("%w: build claim: %w", fanload.ErrLedger, err)
	}

	var claim *TxClaim
	err = l.retry.Execute(ctx, func(ctx context.Context) error {
		tx, err := l.pool.Begin(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			return err
		}
		paths, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			return err
		}
		claim = newTxClaim(l, tx, paths)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: claim: %w", fanload.ErrLedger, err)
	}
	l.logger.Debug("Claimed %d file(s): %v", len(claim.paths), claim.paths)
	return claim, nil
}

func (l *PostgresLedger) ResetAll(ctx context.Context) (int64, error) {
	sql, args, err := l.table.resetSQL()
	if err != nil {
		return 0, err
	}
	tag, err := l.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: reset: %w", fanload.ErrLedger, err)
	}
	return tag.RowsAffected(), nil
}

func (l *PostgresLedger) Summary(ctx context.Context) (fanload.LedgerSummary, error) {
	var s fanload.LedgerSummary
	sql, args, err := l.table.summarySQL()
	if err != nil {
		return s, err
	}
	rows, err := l.pool.Query(ctx, sql, args...)
	if err != nil {
		return s, fmt.Errorf("%w: summary: %w", fanload.ErrLedger, err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return s, err
		}
		switch fanload.Status(status) {
		case fanload.StatusPending:
			s.Pending = n
		case fanload.StatusCompleted:
			s.Completed = n
		case fanload.StatusFailed:
			s.Failed = n
		}
	}
	return s, rows.Err()
}

func (l *PostgresLedger) Items(ctx context.Context, status fanload.Status) ([]fanload.WorkItem, error) {
	sql, args, err := l.table.itemsSQL(status)
	if err != nil {
		return nil, err
	}
	rows, err := l.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: items: %w", fanload.ErrLedger, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (fanload.WorkItem, error) {
		var item fanload.WorkItem
		var s string
		err := row.Scan(&item.FilePath, &s, &item.ExpectedRecordCount, &item.InsertedRecordCount, &item.ErrorDetail, &item.LastUpdated)
		item.Status = fanload.Status(s)
		return item, err
	})
}

func dedupeSorted(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok || p == "" {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

var _ fanload.Ledger = (*PostgresLedger)(nil)
