package sql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	core "recipetrail/data/db"
	"recipetrail/data/db/dialect"
)

type insertBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table   string
	columns []string
	rows    [][]any
}

func (b *insertBuilder) Columns(cols ...string) IInsertBuilder {
	b.columns = cols
	return b
}

func (b *insertBuilder) Values(vals ...any) IInsertBuilder {
	if len(vals) == 0 {
		return b
	}
	b.rows = append(b.rows, vals)
	return b
}

func (b *insertBuilder) Build() (string, []any) {
	if len(b.columns) == 0 || len(b.rows) == 0 {
		panic("insert " + b.table + ": columns and at least one row are required")
	}

	quoted := make([]string, len(b.columns))
	for i, col := range b.columns {
		quoted[i] = quoteIdent(b.dialect, "insert", col)
	}
	row := "(?" + strings.Repeat(", ?", len(b.columns)-1) + ")"

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(quoteIdent(b.dialect, "insert", b.table))
	sb.WriteString(" (" + strings.Join(quoted, ", ") + ") VALUES ")

	args := make([]any, 0, len(b.rows)*len(b.columns))
	for i, vals := range b.rows {
		if len(vals) != len(b.columns) {
			panic(fmt.Sprintf("insert %s: row %d has %d values for %d columns", b.table, i, len(vals), len(b.columns)))
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(row)
		args = append(args, vals...)
	}
	return sb.String(), args
}

func (b *insertBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args := b.Build()
	return b.db.Exec(ctx, q, args...)
}

// ExecReturningID 插入单行并返回自增主键。
//
// Postgres/SQLite 使用 RETURNING 子句，其余方言退回 LastInsertId。
func (b *insertBuilder) ExecReturningID(ctx context.Context, idColumn string) (int64, error) {
	if len(b.rows) != 1 {
		return 0, fmt.Errorf("insert %s: returning id needs exactly one row, got %d", b.table, len(b.rows))
	}
	if !validIdent(idColumn) {
		return 0, fmt.Errorf("insert %s: unsafe id column %q", b.table, idColumn)
	}
	q, args := b.Build()
	if b.dialect.SupportsReturning() {
		var id int64
		if err := b.db.QueryRow(ctx, q+" RETURNING "+b.dialect.QuoteIdentifier(idColumn), args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := b.db.Exec(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
