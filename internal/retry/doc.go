// Package retry re-runs operations that fail with transient PostgreSQL or
// network errors, waiting an exponentially growing, jittered delay between attempts.
//
// # Example Usage
//
//	executor := retry.NewDefaultExecutor()
//	err := executor.Execute(ctx, func(ctx context.Context) error {
//	    claim, err = ledger.claimOnce(ctx, limit)
//	    return err
//	})
//
// Classification uses SQLSTATE classes from github.com/jackc/pgerrcode:
// connection exceptions (08), transaction rollbacks (40), insufficient
// resources (53), operator intervention (57) and lock_not_available are
// retried; everything else is returned immediately.
//
// Executor instances are safe for concurrent use. Use WithOnRetry() to create
// independent configurations per goroutine.
package retry
