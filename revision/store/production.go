package store

import (
	"context"
	"database/sql"

	"recipetrail/domain/recipe"
	"recipetrail/errors"
)

// FindProduction 按 ID 读取生产记录；不存在时返回 NOT_FOUND
func (r *RecipeRepository) FindProduction(ctx context.Context, productionID int64) (recipe.Production, error) {
	var (
		p      recipe.Production
		status string
	)
	err := r.sql.Select("id", "recipe_id", "status").
		From(TableProductions).
		Where("id = ?", productionID).
		QueryRow(ctx).
		Scan(&p.ID, &p.RecipeID, &status)
	if err == sql.ErrNoRows {
		return recipe.Production{}, errors.NewNotFoundError("生产记录不存在: %d", productionID)
	}
	if err != nil {
		return recipe.Production{}, errors.WrapDatabaseError(ctx, err, "读取生产记录")
	}
	p.Status = recipe.ProductionStatus(status)
	return p, nil
}

// CreateProduction 创建生产记录，返回 ID
func (r *RecipeRepository) CreateProduction(ctx context.Context, recipeID int64, status recipe.ProductionStatus) (int64, error) {
	id, err := r.sql.InsertInto(TableProductions).
		Columns("recipe_id", "status", "created_at").
		Values(recipeID, string(status), r.now()).
		ExecReturningID(ctx, "id")
	if err != nil {
		return 0, errors.WrapDatabaseError(ctx, err, "创建生产记录")
	}
	return id, nil
}

// UpdateProductionStatus 修改生产状态
func (r *RecipeRepository) UpdateProductionStatus(ctx context.Context, productionID int64, status recipe.ProductionStatus) error {
	res, err := r.sql.Update(TableProductions).
		Set("status", string(status)).
		Where("id = ?", productionID).
		Exec(ctx)
	if err != nil {
		return errors.WrapDatabaseError(ctx, err, "更新生产状态")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewNotFoundError("生产记录不存在: %d", productionID)
	}
	return nil
}

// UpsertIngredientOverride 按 (production_id, sku) 插入或更新生产配料覆盖
func (r *RecipeRepository) UpsertIngredientOverride(ctx context.Context, productionID int64, o recipe.IngredientOverride) error {
	_, err := r.sql.UpsertInto(TableProductionIngredientOverrides).
		Columns("production_id", "sku", "quantity", "lot").
		Values(productionID, o.SKU, o.Quantity, nullableString(o.Lot)).
		Key("production_id", "sku").
		Exec(ctx)
	if err != nil {
		return errors.WrapDatabaseError(ctx, err, "写入生产配料覆盖")
	}
	return nil
}

// ListIngredientOverrides 列出生产批次的配料覆盖（按 SKU 排序）
func (r *RecipeRepository) ListIngredientOverrides(ctx context.Context, productionID int64) ([]recipe.IngredientOverride, error) {
	rows, err := r.sql.Select("sku", "quantity", "lot").
		From(TableProductionIngredientOverrides).
		Where("production_id = ?", productionID).
		OrderBy("sku").
		Query(ctx)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "读取生产配料覆盖")
	}
	defer rows.Close()

	var out []recipe.IngredientOverride
	for rows.Next() {
		var (
			o   recipe.IngredientOverride
			lot sql.NullString
		)
		if err := rows.Scan(&o.SKU, &o.Quantity, &lot); err != nil {
			return nil, errors.WrapDatabaseError(ctx, err, "读取生产配料覆盖")
		}
		o.Lot = lot.String
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "读取生产配料覆盖")
	}
	return out, nil
}
