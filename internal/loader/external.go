package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/vvka-141/fanload/pkg/fanload"
)

// ExternalLoader reads served files through a transient external table.
// In batch mode one table spans every fleet member and only an aggregate
// count is reported.
type ExternalLoader struct {
	base
	displayDefinition bool
	batch             bool
}

func (l *ExternalLoader) Mode() fanload.LoaderMode {
	if l.batch {
		return fanload.ModeBatch
	}
	return fanload.ModeExternal
}

func (l *ExternalLoader) RequiresFleet() bool { return true }

// Definition returns the CREATE EXTERNAL TABLE statement for req.
func (l *ExternalLoader) Definition(req fanload.IngestRequest) string {
	locs := make([]string, len(req.Locations))
	for i, loc := range req.Locations {
		locs[i] = "'" + strings.ReplaceAll(loc, "'", "''") + "'"
	}
	return fmt.Sprintf(`CREATE EXTERNAL TABLE %s (
%s
)
LOCATION (%s)
FORMAT 'CSV' (HEADER)
SEGMENT REJECT LIMIT %d PERCENT`,
		pgx.Identifier{req.Relation}.Sanitize(),
		l.dest.columnDefs(),
		strings.Join(locs, ", "),
		l.dest.RejectLimitPercent)
}

func dropExternalSQL(relation string) string {
	return "DROP EXTERNAL TABLE IF EXISTS " + pgx.Identifier{relation}.Sanitize()
}

// Ingest creates the external table, inserts from it, counts, and drops it, all in tx.
func (l *ExternalLoader) Ingest(ctx context.Context, tx pgx.Tx, req fanload.IngestRequest) (fanload.IngestResult, error) {
	if req.Relation == "" || len(req.Locations) == 0 {
		return fanload.IngestResult{}, fmt.Errorf("%w: request %q has no relation or locations", fanload.ErrIngestion, req.Key)
	}

	ddl := l.Definition(req)
	if l.displayDefinition {
		l.logger.Info("External table definition:\n%s", ddl)
	}
	_, err := tx.Exec(ctx, ddl)
	if err != nil {
		return fanload.IngestResult{}, fmt.Errorf("%w: create external table %s: %w", fanload.ErrIngestion, req.Relation, err)
	}
	l.logger.Debug("Created external table %s over %s", req.Relation, strings.Join(req.Locations, ", "))

	verifyFile := !l.batch && len(req.Paths) == 1
	var before int64
	if verifyFile {
		if before, err = l.keyRows(ctx, tx, req.Paths[0]); err != nil {
			return fanload.IngestResult{}, err
		}
	}

	tag, err := tx.Exec(ctx, l.dest.insertSelectSQL(req.Relation))
	if err != nil {
		return fanload.IngestResult{}, fmt.Errorf("%w: insert from %s: %w", fanload.ErrIngestion, req.Relation, err)
	}

	inserted := tag.RowsAffected()
	if verifyFile {
		if inserted, err = l.verify(ctx, tx, req.Paths[0], before, inserted); err != nil {
			return fanload.IngestResult{}, err
		}
	}

	if _, err := tx.Exec(ctx, dropExternalSQL(req.Relation)); err != nil {
		return fanload.IngestResult{}, fmt.Errorf("%w: drop external table %s: %w", fanload.ErrIngestion, req.Relation, err)
	}
	l.logger.Debug("Dropped external table %s", req.Relation)
	return fanload.IngestResult{Inserted: inserted}, nil
}

// Recover drops the transient relation on a separate connection.
func (l *ExternalLoader) Recover(ctx context.Context, conn fanload.DBConnection, req fanload.IngestRequest) error {
	if req.Relation == "" {
		return nil
	}
	if _, err := conn.Exec(ctx, dropExternalSQL(req.Relation)); err != nil {
		return fmt.Errorf("drop external table %s: %w", req.Relation, err)
	}
	return nil
}

var _ fanload.Loader = (*ExternalLoader)(nil)
