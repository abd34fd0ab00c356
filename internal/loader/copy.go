package loader

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/vvka-141/fanload/internal/corpus"
	"github.com/vvka-141/fanload/pkg/fanload"
)

// CopyLoader streams local files with COPY FROM STDIN. Gzip inputs are
// decompressed on the fly. With Distinct set, rows are staged in a temporary
// table first.
type CopyLoader struct {
	base
}

func (l *CopyLoader) Mode() fanload.LoaderMode { return fanload.ModeCopy }

func (l *CopyLoader) RequiresFleet() bool { return false }

func (l *CopyLoader) copySQL(target string) string {
	return fmt.Sprintf("COPY %s (%s) FROM STDIN WITH (FORMAT csv, HEADER true)", target, l.dest.columnList())
}

func (l *CopyLoader) Ingest(ctx context.Context, tx pgx.Tx, req fanload.IngestRequest) (fanload.IngestResult, error) {
	var total int64
	for _, path := range req.Paths {
		n, err := l.ingestFile(ctx, tx, req.Relation, path)
		if err != nil {
			return fanload.IngestResult{}, err
		}
		total += n
	}
	return fanload.IngestResult{Inserted: total}, nil
}

func (l *CopyLoader) ingestFile(ctx context.Context, tx pgx.Tx, relation, path string) (int64, error) {
	dest, err := l.dest.ident()
	if err != nil {
		return 0, err
	}

	before, err := l.keyRows(ctx, tx, path)
	if err != nil {
		return 0, err
	}

	target := dest
	if l.dest.Distinct {
		if relation == "" {
			relation = relationName(corpus.SourceKey(path))
		}
		target = pgx.Identifier{relation}.Sanitize()
		stage := fmt.Sprintf("CREATE TEMPORARY TABLE %s (LIKE %s) ON COMMIT DROP", target, dest)
		if _, err := tx.Exec(ctx, stage); err != nil {
			return 0, fmt.Errorf("%w: stage %s: %w", fanload.ErrIngestion, path, err)
		}
	}

	rc, err := corpus.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", fanload.ErrIngestion, err)
	}
	defer rc.Close()

	tag, err := tx.Conn().PgConn().CopyFrom(ctx, rc, l.copySQL(target))
	if err != nil {
		return 0, fmt.Errorf("%w: copy %s: %w", fanload.ErrIngestion, path, err)
	}
	affected := tag.RowsAffected()
	l.logger.Debug("Copied %d rows from %s", affected, path)

	if l.dest.Distinct {
		res, err := tx.Exec(ctx, l.dest.insertSelectSQL(relation))
		if err != nil {
			return 0, fmt.Errorf("%w: insert from stage of %s: %w", fanload.ErrIngestion, path, err)
		}
		affected = res.RowsAffected()
		if _, err := tx.Exec(ctx, "DROP TABLE "+target); err != nil {
			return 0, fmt.Errorf("%w: drop stage of %s: %w", fanload.ErrIngestion, path, err)
		}
	}
	return l.verify(ctx, tx, path, before, affected)
}

// Recover is a no-op: the staging table belongs to the rolled-back transaction.
func (l *CopyLoader) Recover(context.Context, fanload.DBConnection, fanload.IngestRequest) error {
	return nil
}

var _ fanload.Loader = (*CopyLoader)(nil)
