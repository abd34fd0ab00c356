package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vvka-141/fanload/pkg/fanload"
)

// ForcedApprover approves a ledger reset after a short countdown.
// Used when --force is given.
type ForcedApprover struct {
	verbose bool
	output  io.Writer
	sleepFn func(time.Duration)
}

// NewForcedApprover creates a new ForcedApprover writing to stderr.
func NewForcedApprover(verbose bool) fanload.Approver {
	return &ForcedApprover{verbose: verbose, output: os.Stderr, sleepFn: time.Sleep}
}

// RequestApproval counts down, then approves. Cancelling ctx aborts.
func (a *ForcedApprover) RequestApproval(ctx context.Context, table string, rowCount int64) (bool, error) {
	fmt.Fprintf(a.output, "\nWARNING: rewinding %d rows of %s to PENDING\n", rowCount, table)

	if a.verbose {
		fmt.Fprintln(a.output, destinationNote)
	}
	seconds := int(fanload.DefaultForceApprovalCountdown.Seconds())
	for i := seconds; i > 0; i-- {
		select {
		case <-ctx.Done():
			fmt.Fprintln(a.output)
			return false, ctx.Err()
		default:
			fmt.Fprintf(a.output, "\rResetting in: %d seconds... (Press Ctrl+C to cancel)", i)
			a.sleepFn(time.Second)
		}
	}
	if err := ctx.Err(); err != nil {
		fmt.Fprintln(a.output)
		return false, err
	}

	fmt.Fprintf(a.output, "\rProceeding with ledger reset...                              \n")
	return true, nil
}

var _ fanload.Approver = (*ForcedApprover)(nil)
