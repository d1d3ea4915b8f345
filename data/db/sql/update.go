package sql

import (
	"context"
	"database/sql"
	"strings"

	core "recipetrail/data/db"
	"recipetrail/data/db/dialect"
)

type updateBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table   string
	setCols []string
	setArgs []any
	where   conditions
}

// Set 追加一列赋值，生成顺序与调用顺序一致
func (b *updateBuilder) Set(col string, val any) IUpdateBuilder {
	b.setCols = append(b.setCols, col)
	b.setArgs = append(b.setArgs, val)
	return b
}

func (b *updateBuilder) Where(cond string, args ...any) IUpdateBuilder {
	b.where.add(cond, args)
	return b
}

func (b *updateBuilder) Build() (string, []any) {
	if len(b.setCols) == 0 {
		panic("update: no columns to set")
	}

	assignments := make([]string, len(b.setCols))
	for i, col := range b.setCols {
		assignments[i] = quoteIdent(b.dialect, "update", col) + " = ?"
	}

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(quoteIdent(b.dialect, "update", b.table))
	sb.WriteString(" SET ")
	sb.WriteString(strings.Join(assignments, ", "))
	b.where.writeTo(&sb)

	args := make([]any, 0, len(b.setArgs)+len(b.where.args))
	args = append(args, b.setArgs...)
	args = append(args, b.where.args...)
	return sb.String(), args
}

func (b *updateBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args := b.Build()
	return b.db.Exec(ctx, q, args...)
}
