package ledger

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"
	"github.com/vvka-141/fanload/pkg/fanload"
)

var dialect = goqu.Dialect("postgres")

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const (
	colFilePath = "file_path"
	colStatus   = "status"
	colExpected = "expected_record_count"
	colInserted = "inserted_record_count"
	colDetail   = "error_detail"
	colUpdated  = "last_updated"
)

// tableName is a validated, optionally schema-qualified ledger table.
type tableName struct {
	schema string
	name   string
}

func parseTableName(s string) (tableName, error) {
	schema, name, qualified := strings.Cut(s, ".")
	if !qualified {
		schema, name = "", s
	}
	for _, part := range []string{schema, name} {
		if part != "" && !identPattern.MatchString(part) {
			return tableName{}, fmt.Errorf("invalid ledger table name %q: %w", s, fanload.ErrInvalidConfig)
		}
	}
	if name == "" || (qualified && schema == "") {
		return tableName{}, fmt.Errorf("invalid ledger table name %q: %w", s, fanload.ErrInvalidConfig)
	}
	return tableName{schema: schema, name: name}, nil
}

func (t tableName) String() string {
	if t.schema == "" {
		return t.name
	}
	return t.schema + "." + t.name
}

func (t tableName) ident() exp.IdentifierExpression {
	if t.schema == "" {
		return goqu.T(t.name)
	}
	return goqu.S(t.schema).Table(t.name)
}

func (t tableName) sanitized() string {
	if t.schema == "" {
		return pgx.Identifier{t.name}.Sanitize()
	}
	return pgx.Identifier{t.schema, t.name}.Sanitize()
}

func (t tableName) schemaDDL() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    file_path TEXT PRIMARY KEY,
    status TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING', 'COMPLETED', 'FAILED')),
    expected_record_count BIGINT,
    inserted_record_count BIGINT,
    error_detail TEXT,
    last_updated TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, t.sanitized()),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (file_path) WHERE status = 'PENDING'`,
			pgx.Identifier{t.name + "_pending_idx"}.Sanitize(), t.sanitized()),
	}
}

func (t tableName) registerSQL(paths []string) (string, []any, error) {
	vals := make([][]any, len(paths))
	for i, p := range paths {
		vals[i] = []any{p}
	}
	return dialect.Insert(t.ident()).
		Cols(colFilePath).
		Vals(vals...).
		OnConflict(goqu.DoNothing()).
		Prepared(true).
		ToSQL()
}

func (t tableName) claimSQL(limit int) (string, []any, error) {
	return dialect.From(t.ident()).
		Select(colFilePath).
		Where(goqu.C(colStatus).Eq(string(fanload.StatusPending))).
		Order(goqu.C(colFilePath).Asc()).
		Limit(uint(limit)).
		ForUpdate(exp.SkipLocked).
		Prepared(true).
		ToSQL()
}

func (t tableName) updateSQL(o fanload.ItemOutcome) (string, []any, error) {
	return dialect.Update(t.ident()).
		Set(goqu.Record{
			colStatus:   string(o.Status),
			colExpected: nullable(o.Expected),
			colInserted: nullable(o.Inserted),
			colDetail:   nullableString(o.Detail),
			colUpdated:  goqu.L("CURRENT_TIMESTAMP"),
		}).
		Where(goqu.C(colFilePath).Eq(o.Path)).
		Prepared(true).
		ToSQL()
}

func (t tableName) resetSQL() (string, []any, error) {
	return dialect.Update(t.ident()).
		Set(goqu.Record{
			colStatus:   string(fanload.StatusPending),
			colExpected: nil,
			colInserted: nil,
			colDetail:   nil,
			colUpdated:  goqu.L("CURRENT_TIMESTAMP"),
		}).
		Prepared(true).
		ToSQL()
}

func (t tableName) summarySQL() (string, []any, error) {
	return dialect.From(t.ident()).
		Select(goqu.C(colStatus), goqu.COUNT(goqu.Star())).
		GroupBy(goqu.C(colStatus)).
		Prepared(true).
		ToSQL()
}

func (t tableName) itemsSQL(status fanload.Status) (string, []any, error) {
	ds := dialect.From(t.ident()).
		Select(colFilePath, colStatus, colExpected, colInserted, colDetail, colUpdated).
		Order(goqu.C(colFilePath).Asc())
	if status != "" {
		ds = ds.Where(goqu.C(colStatus).Eq(string(status)))
	}
	return ds.Prepared(true).ToSQL()
}

func nullable(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
