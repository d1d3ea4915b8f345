package audit

import (
	"context"
	"database/sql"
	"time"

	core "recipetrail/data/db"
	dbsql "recipetrail/data/db/sql"
	"recipetrail/errors"
)

const table = "recipe_audit_records"

var recordColumns = []string{
	"id", "recipe_id", "version_id", "production_id", "actor_id", "change_type",
	"field_name", "old_value", "new_value", "description", "created_at",
}

// Store 审计记录存储
type Store struct {
	sql dbsql.ISql
}

// NewStore 创建存储；db 可以是根连接或事务
func NewStore(db core.IDatabase) *Store {
	return &Store{sql: dbsql.New(db)}
}

// Persist 逐条写入审计记录，回填生成的 ID；任一失败即返回错误。
func (s *Store) Persist(ctx context.Context, records []Record) ([]Record, error) {
	out := make([]Record, len(records))
	for i, r := range records {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now().UTC()
		}
		id, err := s.sql.InsertInto(table).
			Columns(recordColumns[1:]...).
			Values(r.RecipeID, nullableID(r.VersionID), nullableID(r.ProductionID), r.ActorID, string(r.ChangeType),
				nullableString(r.FieldName), nullableString(r.OldValue), nullableString(r.NewValue), r.Description, r.CreatedAt).
			ExecReturningID(ctx, "id")
		if err != nil {
			return nil, errors.WrapDatabaseError(ctx, err, "写入审计记录")
		}
		r.ID = id
		out[i] = r
	}
	return out, nil
}

// ListByRecipe 按写入顺序分页列出配方的审计记录；limit<=0 表示不限
func (s *Store) ListByRecipe(ctx context.Context, recipeID int64, offset, limit int) ([]Record, error) {
	q := s.sql.Select(recordColumns...).
		From(table).
		Where("recipe_id = ?", recipeID).
		OrderBy("id")
	if limit > 0 {
		q = q.Limit(limit)
		if offset > 0 {
			q = q.Offset(offset)
		}
	}
	return s.query(ctx, q)
}

// ListByVersion 列出某个版本关联的审计记录
func (s *Store) ListByVersion(ctx context.Context, versionID int64) ([]Record, error) {
	return s.query(ctx, s.sql.Select(recordColumns...).
		From(table).
		Where("version_id = ?", versionID).
		OrderBy("id"))
}

func (s *Store) query(ctx context.Context, q dbsql.ISelectBuilder) ([]Record, error) {
	rows, err := q.Query(ctx)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "读取审计记录")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                       Record
			versionID, productionID sql.NullInt64
			field, oldV, newV       sql.NullString
			changeType              string
		)
		if err := rows.Scan(&r.ID, &r.RecipeID, &versionID, &productionID, &r.ActorID, &changeType,
			&field, &oldV, &newV, &r.Description, &r.CreatedAt); err != nil {
			return nil, errors.WrapDatabaseError(ctx, err, "读取审计记录")
		}
		r.ChangeType = ChangeType(changeType)
		r.VersionID = fromNullInt(versionID)
		r.ProductionID = fromNullInt(productionID)
		r.FieldName = fromNullString(field)
		r.OldValue = fromNullString(oldV)
		r.NewValue = fromNullString(newV)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "读取审计记录")
	}
	return out, nil
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func fromNullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
