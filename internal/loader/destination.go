package loader

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/vvka-141/fanload/pkg/fanload"
)

var (
	identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	typePattern  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_ ,()]*$`)
)

// Column is one destination column, also used for transient relations.
type Column struct {
	Name string
	Type string
}

// Destination describes the table rows are loaded into.
type Destination struct {
	// Table may be schema-qualified.
	Table   string
	Columns []Column
	// KeyColumn holds each file's source key. Empty disables per-file counting.
	KeyColumn          string
	Distinct           bool
	RejectLimitPercent int
}

// Validate checks identifiers and types so they can be interpolated into DDL.
func (d Destination) Validate() error {
	if _, err := d.ident(); err != nil {
		return err
	}
	if len(d.Columns) == 0 {
		return fmt.Errorf("destination %s has no columns: %w", d.Table, fanload.ErrInvalidConfig)
	}
	hasKey := d.KeyColumn == ""
	for _, c := range d.Columns {
		if !identPattern.MatchString(c.Name) {
			return fmt.Errorf("invalid column name %q: %w", c.Name, fanload.ErrInvalidConfig)
		}
		if !typePattern.MatchString(c.Type) {
			return fmt.Errorf("invalid type %q for column %s: %w", c.Type, c.Name, fanload.ErrInvalidConfig)
		}
		if c.Name == d.KeyColumn {
			hasKey = true
		}
	}
	if !hasKey {
		return fmt.Errorf("key column %q is not a destination column: %w", d.KeyColumn, fanload.ErrInvalidConfig)
	}
	if d.RejectLimitPercent < 1 || d.RejectLimitPercent > 100 {
		return fmt.Errorf("reject limit must be between 1 and 100 percent: %w", fanload.ErrInvalidConfig)
	}
	return nil
}

// ident returns the quoted, optionally schema-qualified table name.
func (d Destination) ident() (string, error) {
	parts := strings.Split(d.Table, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("invalid destination table %q: %w", d.Table, fanload.ErrInvalidConfig)
	}
	for _, p := range parts {
		if !identPattern.MatchString(p) {
			return "", fmt.Errorf("invalid destination table %q: %w", d.Table, fanload.ErrInvalidConfig)
		}
	}
	return pgx.Identifier(parts).Sanitize(), nil
}

func (d Destination) columnDefs() string {
	defs := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		defs[i] = "    " + pgx.Identifier{c.Name}.Sanitize() + " " + c.Type
	}
	return strings.Join(defs, ",\n")
}

func (d Destination) columnList() string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = pgx.Identifier{c.Name}.Sanitize()
	}
	return strings.Join(names, ", ")
}

// CreateSQL returns CREATE TABLE IF NOT EXISTS for the destination.
func (d Destination) CreateSQL() (string, error) {
	table, err := d.ident()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", table, d.columnDefs()), nil
}

func (d Destination) countSQL() string {
	table, _ := d.ident()
	return "SELECT count(*) FROM " + table
}

func (d Destination) keyCountSQL() string {
	table, _ := d.ident()
	return fmt.Sprintf("SELECT count(*) FROM %s WHERE %s = $1", table, pgx.Identifier{d.KeyColumn}.Sanitize())
}

func (d Destination) insertSelectSQL(from string) string {
	table, _ := d.ident()
	distinct := ""
	if d.Distinct {
		distinct = "DISTINCT "
	}
	cols := d.columnList()
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s%s FROM %s", table, cols, distinct, cols, pgx.Identifier{from}.Sanitize())
}
