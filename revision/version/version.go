// Package version 分配配方版本号并写入不可变的版本快照。
package version

import (
	"context"
	"database/sql"
	"time"

	core "recipetrail/data/db"
	dbsql "recipetrail/data/db/sql"
	"recipetrail/domain/recipe"
	"recipetrail/errors"
	"recipetrail/logging"
	"recipetrail/revision/diff"
)

const table = "recipe_versions"

// Snapshot 版本快照
type Snapshot struct {
	ID                  int64     `json:"id"`
	RecipeID            int64     `json:"recipe_id"`
	VersionNumber       int       `json:"version_number"`
	CreatedBy           int64     `json:"created_by"`
	RecipeSnapshot      string    `json:"recipe_snapshot"`
	IngredientsSnapshot string    `json:"ingredients_snapshot"`
	CreatedAt           time.Time `json:"created_at"`
}

// Image 还原快照中的配方映像
func (s Snapshot) Image() (recipe.Image, error) {
	img, err := recipe.ImageFromSnapshot([]byte(s.RecipeSnapshot), []byte(s.IngredientsSnapshot))
	if err != nil {
		return recipe.Image{}, errors.WrapError(err, errors.ErrCodeInternal, "解析版本快照失败")
	}
	return img, nil
}

// Allocator 版本分配器
type Allocator struct {
	logger logging.Logger
	now    func() time.Time
}

// NewAllocator 创建分配器；logger 为 nil 时使用全局日志器
func NewAllocator(logger logging.Logger) *Allocator {
	return &Allocator{
		logger: logging.ComponentLogger(logger, "revision.version"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Allocate 在 tx 内分配下一个版本号（当前最大值 + 1，从 1 开始）并写入快照。
//
// 读取最大版本号的查询在支持行锁的方言上带 FOR UPDATE；号码的正确性依赖调用方事务的隔离级别，
// (recipe_id, version_number) 唯一约束兜底。写入失败直接返回错误，由调用方回滚整个事务。
func (a *Allocator) Allocate(ctx context.Context, tx core.IDatabase, recipeID, actorID int64, post recipe.Image) (Snapshot, error) {
	s := dbsql.New(tx)

	var current int
	err := s.Select("version_number").
		From(table).
		Where("recipe_id = ?", recipeID).
		OrderBy("version_number DESC").
		Limit(1).
		ForUpdate().
		QueryRow(ctx).
		Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return Snapshot{}, errors.WrapDatabaseError(ctx, err, "读取最大版本号")
	}

	recipeJSON, ingredientsJSON, err := post.SnapshotJSON()
	if err != nil {
		return Snapshot{}, errors.WrapError(err, errors.ErrCodeInternal, "序列化版本快照失败")
	}

	snap := Snapshot{
		RecipeID:            recipeID,
		VersionNumber:       current + 1,
		CreatedBy:           actorID,
		RecipeSnapshot:      string(recipeJSON),
		IngredientsSnapshot: string(ingredientsJSON),
		CreatedAt:           a.now(),
	}
	snap.ID, err = s.InsertInto(table).
		Columns("recipe_id", "version_number", "created_by", "recipe_snapshot", "ingredients_snapshot", "created_at").
		Values(snap.RecipeID, snap.VersionNumber, snap.CreatedBy, snap.RecipeSnapshot, snap.IngredientsSnapshot, snap.CreatedAt).
		ExecReturningID(ctx, "id")
	if err != nil {
		if s.Dialect().IsUniqueViolation(err) {
			return Snapshot{}, errors.WrapError(err, errors.ErrCodeConflict, "版本号冲突")
		}
		return Snapshot{}, errors.WrapDatabaseError(ctx, err, "写入版本快照")
	}

	a.logger.Info(ctx, "版本已创建",
		logging.Int64("recipe_id", recipeID),
		logging.Int64("version_id", snap.ID),
		logging.Int("version_number", snap.VersionNumber),
	)
	return snap, nil
}

// Repository 版本快照查询
type Repository struct {
	sql dbsql.ISql
}

func NewRepository(db core.IDatabase) *Repository {
	return &Repository{sql: dbsql.New(db)}
}

var snapshotColumns = []string{
	"id", "recipe_id", "version_number", "created_by", "recipe_snapshot", "ingredients_snapshot", "created_at",
}

func scanSnapshot(row interface{ Scan(...any) error }) (Snapshot, error) {
	var s Snapshot
	err := row.Scan(&s.ID, &s.RecipeID, &s.VersionNumber, &s.CreatedBy, &s.RecipeSnapshot, &s.IngredientsSnapshot, &s.CreatedAt)
	return s, err
}

// List 按版本号升序列出配方的全部版本
func (r *Repository) List(ctx context.Context, recipeID int64) ([]Snapshot, error) {
	rows, err := r.sql.Select(snapshotColumns...).
		From(table).
		Where("recipe_id = ?", recipeID).
		OrderBy("version_number").
		Query(ctx)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "列出版本")
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, errors.WrapDatabaseError(ctx, err, "列出版本")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "列出版本")
	}
	return out, nil
}

// Get 读取指定版本号；不存在时返回 NOT_FOUND
func (r *Repository) Get(ctx context.Context, recipeID int64, number int) (Snapshot, error) {
	s, err := scanSnapshot(r.sql.Select(snapshotColumns...).
		From(table).
		Where("recipe_id = ?", recipeID).
		And("version_number = ?", number).
		QueryRow(ctx))
	if err == sql.ErrNoRows {
		return Snapshot{}, errors.NewNotFoundError("配方 %d 的版本 %d 不存在", recipeID, number)
	}
	if err != nil {
		return Snapshot{}, errors.WrapDatabaseError(ctx, err, "读取版本")
	}
	return s, nil
}

// Compare 比较两个版本快照，返回从 a 到 b 的变更
func Compare(a, b Snapshot) ([]diff.Change, error) {
	before, err := a.Image()
	if err != nil {
		return nil, err
	}
	after, err := b.Image()
	if err != nil {
		return nil, err
	}
	return diff.Images(before, after), nil
}
