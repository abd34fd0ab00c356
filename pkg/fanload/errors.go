package fanload

import (
	"errors"
	"strings"
)

// Sentinel errors for common failure scenarios.
// These enable callers to distinguish error types using errors.Is().
//
// Example usage:
//
//	summary, err := controller.Run(ctx, cfg)
//	if errors.Is(err, fanload.ErrNoFleet) {
//	    // no fast-load server came up; nothing was claimed
//	}
var (
	// ErrInvalidConfig indicates the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates database connection failed.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrUnsupportedAuthMethod indicates the requested authentication method is not supported.
	ErrUnsupportedAuthMethod = errors.New("unsupported authentication method")

	// ErrFleetStart indicates a single fast-load server failed to start.
	ErrFleetStart = errors.New("fast-load server failed to start")

	// ErrNoFleet indicates that no fast-load server started, so there is no data path.
	ErrNoFleet = errors.New("no fast-load server started")

	// ErrLedger indicates a work ledger operation (claim, status update, commit) failed.
	ErrLedger = errors.New("ledger operation failed")

	// ErrNameCollision indicates two claimed files share a basename and cannot be
	// served side by side.
	ErrNameCollision = errors.New("file name collision")

	// ErrIngestion indicates a file could not be ingested.
	ErrIngestion = errors.New("ingestion failed")

	// ErrApprovalDenied indicates the user denied approval for the operation.
	ErrApprovalDenied = errors.New("approval denied")
)

// usagePatterns are fragments of cobra/pflag usage errors.
var usagePatterns = []string{
	"unknown flag",
	"unknown shorthand flag",
	"unknown command",
	"accepts ",
	"required flag",
	"invalid argument",
}

// ExitCodeForError returns the appropriate exit code for an error.
// Returns ExitSuccess (0) for nil errors, semantic codes for known errors,
// and ExitGeneralError (1) for unclassified errors.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrUnsupportedAuthMethod):
		return ExitConfigError
	case errors.Is(err, ErrConnectionFailed):
		return ExitConnectionError
	case errors.Is(err, ErrApprovalDenied):
		return ExitApprovalDenied
	case errors.Is(err, ErrNoFleet):
		return ExitFleetError
	case errors.Is(err, ErrLedger):
		return ExitLedgerError
	}

	errStr := err.Error()
	for _, pattern := range usagePatterns {
		if strings.Contains(errStr, pattern) {
			return ExitUsageError
		}
	}

	if strings.Contains(errStr, "failed to connect") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") {
		return ExitConnectionError
	}

	return ExitGeneralError
}
