package fanload

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// IngestRequest describes one ingestion: a single file in per-file modes, or a
// whole batch spread over the fleet in batch mode.
type IngestRequest struct {
	// Key is a short, identifier-safe token that names transient relations.
	Key string

	// Paths are the ledger paths being loaded.
	Paths []string

	// Locations are the served URLs the destination reads from (external modes).
	Locations []string

	// Relation is the transient relation name chosen for this request.
	Relation string
}

// IngestResult is what the destination reported for one ingestion.
type IngestResult struct {
	// Inserted is the verification count (see Loader implementations).
	Inserted int64
}

// Loader is a pluggable ingestion strategy.
type Loader interface {
	// Mode returns the strategy identifier.
	Mode() LoaderMode

	// RequiresFleet reports whether the strategy reads through fast-load servers.
	RequiresFleet() bool

	// Prepare fills in strategy-specific request fields (relation name).
	Prepare(req IngestRequest) IngestRequest

	// Ingest moves the request's rows into the destination using tx and returns the
	// verification count.
	Ingest(ctx context.Context, tx pgx.Tx, req IngestRequest) (IngestResult, error)

	// Recover drops any transient relation left behind by a failed Ingest.
	Recover(ctx context.Context, conn DBConnection, req IngestRequest) error

	// TotalRows returns the destination table's row count.
	TotalRows(ctx context.Context, conn DBConnection) (int64, error)
}
