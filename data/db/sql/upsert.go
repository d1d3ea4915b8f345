package sql

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	core "recipetrail/data/db"
	"recipetrail/data/db/dialect"
)

// upsertBuilder 生成单条原生 upsert，冲突时用插入值覆盖全部非键列：
//   - SQLite/Postgres: INSERT ... ON CONFLICT (key) DO UPDATE SET col = excluded.col
//   - MySQL: INSERT ... ON DUPLICATE KEY UPDATE col = VALUES(col)
//
// 只有一条语句，冲突不会让 Postgres 事务进入 aborted 状态。
type upsertBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table   string
	columns []string
	values  []any
	keys    []string
}

func (b *upsertBuilder) Columns(cols ...string) IUpsertBuilder {
	b.columns = cols
	return b
}

func (b *upsertBuilder) Values(vals ...any) IUpsertBuilder {
	b.values = vals
	return b
}

func (b *upsertBuilder) Key(cols ...string) IUpsertBuilder {
	b.keys = cols
	return b
}

func (b *upsertBuilder) Build() (string, []any, error) {
	switch {
	case len(b.columns) == 0:
		return "", nil, fmt.Errorf("upsert %s: no columns", b.table)
	case len(b.values) != len(b.columns):
		return "", nil, fmt.Errorf("upsert %s: %d values for %d columns", b.table, len(b.values), len(b.columns))
	case len(b.keys) == 0:
		return "", nil, fmt.Errorf("upsert %s: no conflict key", b.table)
	}
	for _, key := range b.keys {
		if !validIdent(key) || !slices.Contains(b.columns, key) {
			return "", nil, fmt.Errorf("upsert %s: key column %q is not one of the inserted columns", b.table, key)
		}
	}

	ins := &insertBuilder{dialect: b.dialect, table: b.table, columns: b.columns, rows: [][]any{b.values}}
	insertSQL, args := ins.Build()

	mysql := b.dialect.Name() == dialect.NameMySQL
	var sets []string
	for _, col := range b.columns {
		if slices.Contains(b.keys, col) {
			continue
		}
		quoted := b.dialect.QuoteIdentifier(col)
		if mysql {
			sets = append(sets, quoted+" = VALUES("+quoted+")")
		} else {
			sets = append(sets, quoted+" = excluded."+quoted)
		}
	}

	var sb strings.Builder
	sb.WriteString(insertSQL)
	switch b.dialect.Name() {
	case dialect.NameMySQL:
		if len(sets) == 0 {
			// 全是键列：MySQL 没有 DO NOTHING，用自赋值代替
			first := b.dialect.QuoteIdentifier(b.keys[0])
			sets = append(sets, first+" = "+first)
		}
		sb.WriteString(" ON DUPLICATE KEY UPDATE ")
		sb.WriteString(strings.Join(sets, ", "))
	case dialect.NameSQLite, dialect.NamePostgres:
		quotedKeys := make([]string, len(b.keys))
		for i, k := range b.keys {
			quotedKeys[i] = b.dialect.QuoteIdentifier(k)
		}
		sb.WriteString(" ON CONFLICT (" + strings.Join(quotedKeys, ", ") + ")")
		if len(sets) == 0 {
			sb.WriteString(" DO NOTHING")
		} else {
			sb.WriteString(" DO UPDATE SET " + strings.Join(sets, ", "))
		}
	default:
		return "", nil, fmt.Errorf("upsert %s: unsupported dialect %q", b.table, b.dialect.Name())
	}
	return sb.String(), args, nil
}

func (b *upsertBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args, err := b.Build()
	if err != nil {
		return nil, err
	}
	return b.db.Exec(ctx, q, args...)
}
