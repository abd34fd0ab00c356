// Package loader implements the ingestion strategies: per-file and batch
// external tables served by the fleet, and COPY streaming without a fleet.
package loader

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vvka-141/fanload/internal/corpus"
	"github.com/vvka-141/fanload/pkg/fanload"
)

// maxIdentLen is PostgreSQL's NAMEDATALEN-1.
const maxIdentLen = 63

var unsafeKeyChars = regexp.MustCompile(`[^a-z0-9_]+`)

// New returns the loader for mode. Panics if logger is nil.
func New(mode fanload.LoaderMode, dest Destination, displayDefinition bool, logger fanload.Logger) (fanload.Loader, error) {
	if logger == nil {
		panic("logger cannot be nil")
	}
	if err := dest.Validate(); err != nil {
		return nil, err
	}
	b := base{dest: dest, logger: logger}
	switch mode {
	case fanload.ModeExternal:
		return &ExternalLoader{base: b, displayDefinition: displayDefinition}, nil
	case fanload.ModeBatch:
		return &ExternalLoader{base: b, displayDefinition: displayDefinition, batch: true}, nil
	case fanload.ModeCopy:
		return &CopyLoader{base: b}, nil
	}
	return nil, fmt.Errorf("unknown loader mode %q: %w", mode, fanload.ErrInvalidConfig)
}

// base holds what every strategy shares.
type base struct {
	dest   Destination
	logger fanload.Logger
}

// Prepare names the transient relation: prefix, sanitized key, 8 random hex digits.
func (b base) Prepare(req fanload.IngestRequest) fanload.IngestRequest {
	req.Relation = relationName(req.Key)
	return req
}

func relationName(key string) string {
	key = strings.Trim(unsafeKeyChars.ReplaceAllString(strings.ToLower(key), "_"), "_")
	if key == "" {
		key = "file"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	room := maxIdentLen - len(fanload.TransientRelationPrefix) - len(suffix) - 1
	if len(key) > room {
		key = key[:room]
	}
	return fanload.TransientRelationPrefix + key + "_" + suffix
}

func (b base) TotalRows(ctx context.Context, conn fanload.DBConnection) (int64, error) {
	var n int64
	if err := conn.QueryRow(ctx, b.dest.countSQL()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", b.dest.Table, err)
	}
	return n, nil
}

// keyRows counts destination rows carrying path's source key. Zero without a key column.
func (b base) keyRows(ctx context.Context, tx pgx.Tx, path string) (int64, error) {
	if b.dest.KeyColumn == "" {
		return 0, nil
	}
	var n int64
	if err := tx.QueryRow(ctx, b.dest.keyCountSQL(), corpus.SourceKey(path)).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: verification count for %s: %w", fanload.ErrIngestion, path, err)
	}
	return n, nil
}

// verify returns the per-file verification count: key rows added since before
// was taken in the same transaction, or the statement's row count when no key
// column is configured. Rows left from an earlier load of the file do not count.
func (b base) verify(ctx context.Context, tx pgx.Tx, path string, before, affected int64) (int64, error) {
	if b.dest.KeyColumn == "" {
		return affected, nil
	}
	after, err := b.keyRows(ctx, tx, path)
	if err != nil {
		return 0, err
	}
	return after - before, nil
}
