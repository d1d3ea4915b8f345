package sql

import (
	"context"
	"database/sql"
	"strings"

	core "recipetrail/data/db"
	"recipetrail/data/db/dialect"
)

type deleteBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table string
	where conditions
}

func (b *deleteBuilder) Where(cond string, args ...any) IDeleteBuilder {
	b.where.add(cond, args)
	return b
}

// Build 不带 WHERE 时删除整表；仓储层总是按 recipe_id 限定。
func (b *deleteBuilder) Build() (string, []any) {
	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(quoteIdent(b.dialect, "delete", b.table))
	b.where.writeTo(&sb)
	return sb.String(), append([]any(nil), b.where.args...)
}

func (b *deleteBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args := b.Build()
	return b.db.Exec(ctx, q, args...)
}
