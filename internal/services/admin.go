package services

import (
	"context"
	"fmt"

	"github.com/vvka-141/fanload/internal/corpus"
	"github.com/vvka-141/fanload/pkg/fanload"
)

// RegisterResult reports a registration pass.
type RegisterResult struct {
	Found    int
	Inserted int64
}

// Register scans dir for files matching pattern and adds the new ones to the
// ledger as PENDING. Already registered files keep their status.
func Register(ctx context.Context, ledger fanload.Ledger, dir, pattern string, recursive bool, logger fanload.Logger) (RegisterResult, error) {
	paths, err := corpus.Scan(dir, pattern, recursive)
	if err != nil {
		return RegisterResult{}, err
	}
	logger.Verbose("Found %d files matching %s in %s", len(paths), pattern, dir)
	if len(paths) == 0 {
		return RegisterResult{}, nil
	}

	if err := ledger.EnsureSchema(ctx); err != nil {
		return RegisterResult{}, err
	}
	n, err := ledger.Register(ctx, paths)
	if err != nil {
		return RegisterResult{Found: len(paths)}, err
	}
	return RegisterResult{Found: len(paths), Inserted: n}, nil
}

// Reset rewinds every ledger row to PENDING after the approver agrees.
func Reset(ctx context.Context, ledger fanload.Ledger, table string, approver fanload.Approver, logger fanload.Logger) (int64, error) {
	summary, err := ledger.Summary(ctx)
	if err != nil {
		return 0, err
	}
	if summary.Total() == 0 {
		logger.Info("Ledger %s is empty, nothing to reset", table)
		return 0, nil
	}

	approved, err := approver.RequestApproval(ctx, table, summary.Total())
	if err != nil {
		return 0, fmt.Errorf("approval: %w", err)
	}
	if !approved {
		return 0, fanload.ErrApprovalDenied
	}

	n, err := ledger.ResetAll(ctx)
	if err != nil {
		return 0, err
	}
	logger.Info("Reset %d rows of %s to PENDING", n, table)
	return n, nil
}
