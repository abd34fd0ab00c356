package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vvka-141/fanload/pkg/fanload"
)

// destinationNote reminds the operator that a reset does not touch loaded data.
const destinationNote = "Rows already loaded into the destination table are kept; reloading inserts them again."

// InteractiveApprover asks the operator to type the ledger table name before
// a reset.
type InteractiveApprover struct {
	verbose bool
	input   io.Reader
	output  io.Writer
}

// NewInteractiveApprover creates a new InteractiveApprover on stdin/stderr.
func NewInteractiveApprover(verbose bool) fanload.Approver {
	return &InteractiveApprover{verbose: verbose, input: os.Stdin, output: os.Stderr}
}

func (a *InteractiveApprover) RequestApproval(ctx context.Context, table string, rowCount int64) (bool, error) {
	fmt.Fprintf(a.output, "\nWARNING: You are about to reset the work ledger '%s'\n", table)
	fmt.Fprintf(a.output, "All %d rows return to PENDING and their counts and errors are cleared.\n", rowCount)
	if a.verbose {
		fmt.Fprintln(a.output, destinationNote)
	}
	fmt.Fprintf(a.output, "\nTo confirm, type the table name '%s' and press Enter: ", table)

	inputChan := make(chan string, 1)
	errChan := make(chan error, 1)

	go func() {
		reader := bufio.NewReader(a.input)
		input, err := reader.ReadString('\n')
		if err != nil {
			errChan <- err
			return
		}
		inputChan <- strings.TrimSpace(input)
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case err := <-errChan:
		return false, fmt.Errorf("failed to read input: %w", err)
	case input := <-inputChan:
		if input == table {
			fmt.Fprintln(a.output, "Confirmed. Resetting ledger...")
			return true, nil
		}
		fmt.Fprintf(a.output, "Input '%s' does not match table name '%s'. Operation cancelled.\n", input, table)
		return false, nil
	}
}

var _ fanload.Approver = (*InteractiveApprover)(nil)
