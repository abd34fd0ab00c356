package fanload

import "time"

// Exit codes for semantic error classification.
// These follow Unix/GNU conventions:
//   - 0: Success
//   - 1: General error
//   - 2: CLI usage error (misuse of command line)
//   - 3+: Application-specific errors
const (
	ExitSuccess         = 0  // Run completed (per-file failures are reported in the ledger)
	ExitGeneralError    = 1  // Unknown or unclassified error
	ExitUsageError      = 2  // CLI usage error (missing args, invalid flags)
	ExitPanic           = 3  // Internal panic (unexpected crash)
	ExitConfigError     = 10 // Invalid configuration or parameters
	ExitConnectionError = 11 // Failed to connect to database
	ExitApprovalDenied  = 12 // User denied ledger reset
	ExitFleetError      = 13 // No fast-load server could be started
	ExitLedgerError     = 14 // Ledger claim/update failed and the run was aborted
)

const (
	// DefaultRetryInitialDelay is the default initial delay before the first retry attempt.
	DefaultRetryInitialDelay = 100 * time.Millisecond

	// DefaultRetryMaxDelay is the default maximum delay between retry attempts.
	DefaultRetryMaxDelay = 1 * time.Minute

	// DefaultRetryMaxAttempts is the default maximum number of retry attempts.
	DefaultRetryMaxAttempts = 3

	// DefaultLedgerTable is the work ledger table used when none is configured.
	DefaultLedgerTable = "load_control"

	// DefaultDestinationTable is the ingestion target used when none is configured.
	DefaultDestinationTable = "ghcn_daily"

	// DefaultFleetCommand is the fast-load server binary.
	DefaultFleetCommand = "gpfdist"

	// DefaultFleetScheme is the URL scheme of served locations.
	DefaultFleetScheme = "gpfdist"

	// DefaultFleetBasePort is the port of the first fleet member; member i listens on base+i.
	DefaultFleetBasePort = 8081

	// DefaultFleetStartGrace is how long a freshly started server is given to come up.
	DefaultFleetStartGrace = 2 * time.Second

	// DefaultFleetStopTimeout bounds graceful termination before a server is killed.
	DefaultFleetStopTimeout = 5 * time.Second

	// DefaultBatchSize is the number of files claimed per cycle in batch mode.
	DefaultBatchSize = 1000

	// DefaultRejectLimitPercent is the external-table reject threshold for malformed rows.
	DefaultRejectLimitPercent = 1

	// DefaultCorpusPattern selects input files during registration.
	DefaultCorpusPattern = "*.csv"

	// DefaultForceApprovalCountdown is the pause before a forced ledger reset proceeds.
	DefaultForceApprovalCountdown = 3 * time.Second

	// RegisterChunkSize caps the number of rows per registration INSERT.
	RegisterChunkSize = 1000

	// TransientRelationPrefix prefixes every external/staging relation created by a load.
	TransientRelationPrefix = "fanload_ext_"

	// ServedDirPrefix names the per-member served directories under the work dir.
	ServedDirPrefix = "fanload_"

	// FleetLogFileName receives fast-load server output when not running verbose.
	FleetLogFileName = "fanload-fleet.log"
)
