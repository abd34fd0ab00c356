package fanload

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of one input file in the work ledger.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// IsTerminal reports whether no further automatic processing happens for the status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid returns true if the Status is one of the defined values.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// ParseStatus parses a ledger status, case-insensitively.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.IsValid() {
		return "", fmt.Errorf("unknown status %q: %w", v, ErrInvalidConfig)
	}
	return s, nil
}

// WorkItem is one row of the work ledger.
type WorkItem struct {
	FilePath            string
	Status              Status
	ExpectedRecordCount *int64
	InsertedRecordCount *int64
	ErrorDetail         *string
	LastUpdated         time.Time
}

// ItemOutcome is the terminal status recorded for one claimed file.
// Use Completed or Failed to build one.
type ItemOutcome struct {
	Path     string
	Status   Status
	Expected *int64
	Inserted *int64
	Detail   *string
}

// Completed builds a COMPLETED outcome. Counts are either both known or both unknown.
// detail carries a mismatch warning and may be empty.
func Completed(path string, expected, inserted *int64, detail string) ItemOutcome {
	o := ItemOutcome{Path: path, Status: StatusCompleted}
	if expected != nil && inserted != nil {
		e, i := *expected, *inserted
		o.Expected, o.Inserted = &e, &i
	}
	if detail != "" {
		o.Detail = &detail
	}
	return o
}

// Failed builds a FAILED outcome with no counts and the error text as detail.
func Failed(path string, err error) ItemOutcome {
	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	return ItemOutcome{Path: path, Status: StatusFailed, Detail: &detail}
}

// MismatchDetail is the error_detail text for a COMPLETED file whose counts disagree.
func MismatchDetail(inserted, expected int64) string {
	return fmt.Sprintf("rows inserted: %d (expected %d)", inserted, expected)
}

// LoaderMode selects the ingestion strategy.
type LoaderMode string

const (
	// ModeExternal loads one file per claim through a transient external table.
	ModeExternal LoaderMode = "external"
	// ModeBatch loads many files through one external table spanning the whole fleet.
	ModeBatch LoaderMode = "batch"
	// ModeCopy streams each file through COPY FROM STDIN without a fleet.
	ModeCopy LoaderMode = "copy"
)

// IsValid returns true if the LoaderMode is a defined value.
func (m LoaderMode) IsValid() bool {
	switch m {
	case ModeExternal, ModeBatch, ModeCopy:
		return true
	}
	return false
}

// MismatchPolicy decides the status of a file whose inserted count differs from its expected count.
type MismatchPolicy string

const (
	// MismatchWarn records COMPLETED with the mismatch text in error_detail.
	MismatchWarn MismatchPolicy = "warn"
	// MismatchFail records FAILED with the mismatch text in error_detail.
	MismatchFail MismatchPolicy = "fail"
)

// IsValid returns true if the MismatchPolicy is a defined value.
func (p MismatchPolicy) IsValid() bool {
	return p == MismatchWarn || p == MismatchFail
}

// RunConfig contains the run-time knobs of one load run.
type RunConfig struct {
	// MaxFiles caps the number of files processed in this run. Zero means unlimited.
	MaxFiles int

	// Concurrency is the requested number of parallel workers (and fleet members).
	Concurrency int

	// BatchSize is the number of files claimed per cycle in batch mode.
	BatchSize int

	// ClaimSize is the number of files claimed per cycle by each per-file worker.
	ClaimSize int

	// Mode selects the loader strategy.
	Mode LoaderMode

	// MismatchPolicy controls how count disagreements are recorded.
	MismatchPolicy MismatchPolicy

	// DisplayDefinition logs generated DDL.
	DisplayDefinition bool

	// WorkDir is where per-member served directories are created.
	WorkDir string

	// Timeout is the global timeout for the whole run (0 = none).
	Timeout time.Duration

	Verbose  bool
	Debug    bool
	Progress bool
}

// Validate checks RunConfig values.
// It returns a multi-error if multiple validation failures occur.
func (c *RunConfig) Validate() error {
	var errs []error

	if c.MaxFiles < 0 {
		errs = append(errs, fmt.Errorf("max files cannot be negative: %w", ErrInvalidConfig))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1: %w", ErrInvalidConfig))
	}
	if c.ClaimSize < 1 {
		errs = append(errs, fmt.Errorf("claim size must be at least 1: %w", ErrInvalidConfig))
	}
	if c.Mode == ModeBatch && c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch size must be at least 1: %w", ErrInvalidConfig))
	}
	if !c.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("unknown loader mode %q: %w", c.Mode, ErrInvalidConfig))
	}
	if !c.MismatchPolicy.IsValid() {
		errs = append(errs, fmt.Errorf("unknown mismatch policy %q: %w", c.MismatchPolicy, ErrInvalidConfig))
	}
	if c.Mode != ModeCopy && c.WorkDir == "" {
		errs = append(errs, fmt.Errorf("work directory is required for mode %s: %w", c.Mode, ErrInvalidConfig))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout cannot be negative: %w", ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// RunState is the controller's run-level state.
type RunState string

const (
	StateStartingFleet RunState = "STARTING_FLEET"
	StateRunning       RunState = "RUNNING"
	StateDraining      RunState = "DRAINING"
	StateStopped       RunState = "STOPPED"
	StateFailedStart   RunState = "FAILED_START"
)

// RunSummary reports the outcome of one run.
type RunSummary struct {
	RunID      string
	Processed  int
	Completed  int
	Failed     int
	Mismatched int
	TotalRows  int64
	Elapsed    time.Duration
	State      RunState
}

// AveragePerFile returns the mean elapsed time per processed file, or 0 when nothing ran.
func (s RunSummary) AveragePerFile() time.Duration {
	if s.Processed == 0 {
		return 0
	}
	return s.Elapsed / time.Duration(s.Processed)
}

// LedgerSummary counts ledger rows per status.
type LedgerSummary struct {
	Pending   int64
	Completed int64
	Failed    int64
}

// Total returns the number of ledger rows.
func (s LedgerSummary) Total() int64 {
	return s.Pending + s.Completed + s.Failed
}

// ConnectionConfig represents parsed connection parameters.
type ConnectionConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string

	// AuthMethod indicates the authentication mechanism to use
	AuthMethod AuthMethod

	AppName          string
	ConnectTimeout   time.Duration
	AdditionalParams map[string]string

	// MaxConns overrides the pool size; zero keeps the default.
	MaxConns int32

	// Cloud provider parameters.
	AWSRegion         string
	GoogleInstance    string
	AzureTenantID     string
	AzureClientID     string
	AzureClientSecret string
}

// AuthMethod represents the type of authentication to use.
type AuthMethod int

const (
	AuthMethodStandard     AuthMethod = iota // Username/Password
	AuthMethodAWSIAM                         // AWS IAM Database Authentication
	AuthMethodGoogleIAM                      // Google Cloud SQL IAM
	AuthMethodAzureEntraID                   // Azure Active Directory (Entra ID)
)

// String returns a human-readable string representation of the AuthMethod.
func (a AuthMethod) String() string {
	switch a {
	case AuthMethodStandard:
		return "Standard"
	case AuthMethodAWSIAM:
		return "AWS IAM"
	case AuthMethodGoogleIAM:
		return "Google IAM"
	case AuthMethodAzureEntraID:
		return "Azure Entra ID"
	default:
		return fmt.Sprintf("Unknown(%d)", a)
	}
}

// IsValid returns true if the AuthMethod is a valid, defined value.
func (a AuthMethod) IsValid() bool {
	return a >= AuthMethodStandard && a <= AuthMethodAzureEntraID
}

// ParseAuthMethod maps a CLI/config value (standard, aws, google, azure) to an AuthMethod.
func ParseAuthMethod(v string) (AuthMethod, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "standard":
		return AuthMethodStandard, nil
	case "aws", "aws-iam":
		return AuthMethodAWSIAM, nil
	case "google", "gcp", "google-iam":
		return AuthMethodGoogleIAM, nil
	case "azure", "entra", "azure-entra-id":
		return AuthMethodAzureEntraID, nil
	}
	return 0, fmt.Errorf("auth method %q: %w", v, ErrUnsupportedAuthMethod)
}
