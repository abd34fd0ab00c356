package fanload

import "context"

// Approver handles user confirmation for destructive ledger operations.
//
// Implementations:
//   - ForcedApprover: shows a countdown and approves automatically (--force)
//   - InteractiveApprover: asks the user to type the ledger table name
type Approver interface {
	// RequestApproval asks whether rowCount rows of the ledger table may be rewound.
	RequestApproval(ctx context.Context, table string, rowCount int64) (bool, error)
}
