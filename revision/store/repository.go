package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	core "recipetrail/data/db"
	dbsql "recipetrail/data/db/sql"
	"recipetrail/domain/recipe"
	"recipetrail/errors"
)

var ingredientColumns = []string{
	"id", "recipe_id", "sku", "name", "quantity", "unit", "percentage",
	"calories", "protein", "fat", "carbohydrates", "sugar", "salt", "fiber", "lot", "position",
}

// RecipeRepository 配方及其子记录的存储访问
type RecipeRepository struct {
	db  core.IDatabase
	sql dbsql.ISql
	now func() time.Time
}

// NewRecipeRepository 创建仓储；db 可以是根连接或事务
func NewRecipeRepository(db core.IDatabase) *RecipeRepository {
	return &RecipeRepository{db: db, sql: dbsql.New(db), now: func() time.Time { return time.Now().UTC() }}
}

// LoadImage 读取配方完整映像。lock 为 true 时对配方行加行锁（方言支持时）。
// 配方不存在时返回 NOT_FOUND。
func (r *RecipeRepository) LoadImage(ctx context.Context, recipeID int64, lock bool) (recipe.Image, error) {
	rec, err := r.loadRecipe(ctx, recipeID, lock)
	if err != nil {
		return recipe.Image{}, err
	}
	img := recipe.Image{Recipe: rec}
	if img.Ingredients, err = r.ListIngredients(ctx, recipeID); err != nil {
		return recipe.Image{}, err
	}
	if img.OvenSteps, err = r.listOvenSteps(ctx, recipeID); err != nil {
		return recipe.Image{}, err
	}
	if img.MixingSteps, err = r.listMixingSteps(ctx, recipeID); err != nil {
		return recipe.Image{}, err
	}
	if img.CostOverrides, err = r.listCostOverrides(ctx, recipeID); err != nil {
		return recipe.Image{}, err
	}
	return img, nil
}

func (r *RecipeRepository) loadRecipe(ctx context.Context, recipeID int64, lock bool) (recipe.Recipe, error) {
	q := r.sql.Select("id", "name", "description", "category", "yield_quantity", "yield_unit",
		"waste_percent", "bake_time_minutes", "proof_time_minutes", "batch_size", "is_active",
		"settings", "updated_at", "updated_by").
		From(TableRecipes).
		Where("id = ?", recipeID)
	if lock {
		q = q.ForUpdate()
	}

	var (
		rec       recipe.Recipe
		settings  sql.NullString
		updatedAt sql.NullTime
		updatedBy sql.NullInt64
	)
	err := q.QueryRow(ctx).Scan(&rec.ID, &rec.Name, &rec.Description, &rec.Category,
		&rec.YieldQuantity, &rec.YieldUnit, &rec.WastePercent, &rec.BakeTimeMinutes,
		&rec.ProofTimeMinutes, &rec.BatchSize, &rec.IsActive, &settings, &updatedAt, &updatedBy)
	if err == sql.ErrNoRows {
		return recipe.Recipe{}, errors.NewNotFoundError("配方不存在: %d", recipeID)
	}
	if err != nil {
		return recipe.Recipe{}, errors.WrapDatabaseError(ctx, err, "读取配方")
	}
	if settings.Valid && settings.String != "" {
		rec.Settings = json.RawMessage(settings.String)
	}
	if updatedAt.Valid {
		rec.UpdatedAt = updatedAt.Time
	}
	rec.UpdatedBy = updatedBy.Int64
	return rec, nil
}

// ListIngredients 按 position、id 顺序列出配料
func (r *RecipeRepository) ListIngredients(ctx context.Context, recipeID int64) ([]recipe.Ingredient, error) {
	rows, err := r.sql.Select(ingredientColumns...).
		From(TableIngredients).
		Where("recipe_id = ?", recipeID).
		OrderBy("position, id").
		Query(ctx)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "读取配料")
	}
	defer rows.Close()

	var out []recipe.Ingredient
	for rows.Next() {
		var (
			ing recipe.Ingredient
			lot sql.NullString
		)
		if err := rows.Scan(&ing.ID, &ing.RecipeID, &ing.SKU, &ing.Name, &ing.Quantity, &ing.Unit,
			&ing.Percentage, &ing.Calories, &ing.Protein, &ing.Fat, &ing.Carbohydrates, &ing.Sugar,
			&ing.Salt, &ing.Fiber, &lot, &ing.Position); err != nil {
			return nil, errors.WrapDatabaseError(ctx, err, "读取配料")
		}
		ing.Lot = lot.String
		out = append(out, ing)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "读取配料")
	}
	return out, nil
}

func (r *RecipeRepository) listOvenSteps(ctx context.Context, recipeID int64) ([]recipe.OvenStep, error) {
	rows, err := r.sql.Select("position", "temperature_c", "duration_minutes", "steam", "fan_speed").
		From(TableOvenSteps).
		Where("recipe_id = ?", recipeID).
		OrderBy("position, id").
		Query(ctx)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "读取烤炉步骤")
	}
	defer rows.Close()

	var out []recipe.OvenStep
	for rows.Next() {
		var s recipe.OvenStep
		if err := rows.Scan(&s.Position, &s.TemperatureC, &s.DurationMinutes, &s.Steam, &s.FanSpeed); err != nil {
			return nil, errors.WrapDatabaseError(ctx, err, "读取烤炉步骤")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "读取烤炉步骤")
	}
	return out, nil
}

func (r *RecipeRepository) listMixingSteps(ctx context.Context, recipeID int64) ([]recipe.MixingStep, error) {
	rows, err := r.sql.Select("position", "speed", "duration_minutes", "description").
		From(TableMixingSteps).
		Where("recipe_id = ?", recipeID).
		OrderBy("position, id").
		Query(ctx)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "读取搅拌步骤")
	}
	defer rows.Close()

	var out []recipe.MixingStep
	for rows.Next() {
		var s recipe.MixingStep
		if err := rows.Scan(&s.Position, &s.Speed, &s.DurationMinutes, &s.Description); err != nil {
			return nil, errors.WrapDatabaseError(ctx, err, "读取搅拌步骤")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "读取搅拌步骤")
	}
	return out, nil
}

func (r *RecipeRepository) listCostOverrides(ctx context.Context, recipeID int64) (recipe.CostOverrides, error) {
	rows, err := r.sql.Select("cost_type", "amount").
		From(TableCostOverrides).
		Where("recipe_id = ?", recipeID).
		Query(ctx)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "读取成本覆盖")
	}
	defer rows.Close()

	out := recipe.CostOverrides{}
	for rows.Next() {
		var (
			costType string
			amount   float64
		)
		if err := rows.Scan(&costType, &amount); err != nil {
			return nil, errors.WrapDatabaseError(ctx, err, "读取成本覆盖")
		}
		out[recipe.CostType(costType)] = amount
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "读取成本覆盖")
	}
	return out, nil
}

// CreateRecipe 创建配方及其全部子记录，返回配方 ID
func (r *RecipeRepository) CreateRecipe(ctx context.Context, img recipe.Image, actorID int64) (int64, error) {
	rec := img.Recipe
	id, err := r.sql.InsertInto(TableRecipes).
		Columns("name", "description", "category", "yield_quantity", "yield_unit", "waste_percent",
			"bake_time_minutes", "proof_time_minutes", "batch_size", "is_active", "settings",
			"updated_at", "updated_by").
		Values(rec.Name, rec.Description, rec.Category, rec.YieldQuantity, rec.YieldUnit, rec.WastePercent,
			rec.BakeTimeMinutes, rec.ProofTimeMinutes, rec.BatchSize, rec.IsActive, settingsValue(rec.Settings),
			r.now(), actorID).
		ExecReturningID(ctx, "id")
	if err != nil {
		return 0, errors.WrapDatabaseError(ctx, err, "创建配方")
	}

	for i, ing := range img.Ingredients {
		ing = ing.Normalized()
		if ing.Position == 0 {
			ing.Position = i + 1
		}
		if _, err := r.InsertIngredient(ctx, id, ing); err != nil {
			return 0, err
		}
	}
	if err := r.ReplaceOvenSteps(ctx, id, img.OvenSteps); err != nil {
		return 0, err
	}
	if err := r.ReplaceMixingSteps(ctx, id, img.MixingSteps); err != nil {
		return 0, err
	}
	for _, t := range recipe.CostTypes {
		if v, ok := img.CostOverrides[t]; ok {
			if err := r.UpsertCostOverride(ctx, id, recipe.CostOverride{Type: t, Value: v}); err != nil {
				return 0, err
			}
		}
	}
	return id, nil
}

// UpdateRecipe 写回配方的全部被监视字段及修改人信息
func (r *RecipeRepository) UpdateRecipe(ctx context.Context, rec recipe.Recipe, actorID int64) error {
	res, err := r.sql.Update(TableRecipes).
		Set("name", rec.Name).
		Set("description", rec.Description).
		Set("category", rec.Category).
		Set("yield_quantity", rec.YieldQuantity).
		Set("yield_unit", rec.YieldUnit).
		Set("waste_percent", rec.WastePercent).
		Set("bake_time_minutes", rec.BakeTimeMinutes).
		Set("proof_time_minutes", rec.ProofTimeMinutes).
		Set("batch_size", rec.BatchSize).
		Set("is_active", rec.IsActive).
		Set("settings", settingsValue(rec.Settings)).
		Set("updated_at", r.now()).
		Set("updated_by", actorID).
		Where("id = ?", rec.ID).
		Exec(ctx)
	if err != nil {
		return errors.WrapDatabaseError(ctx, err, "更新配方")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewNotFoundError("配方不存在: %d", rec.ID)
	}
	return nil
}

// DeleteIngredients 按 SKU 删除配料，返回删除行数
func (r *RecipeRepository) DeleteIngredients(ctx context.Context, recipeID int64, skus []string) (int64, error) {
	var total int64
	for _, sku := range skus {
		res, err := r.sql.DeleteFrom(TableIngredients).
			Where("recipe_id = ?", recipeID).
			Where("sku = ?", sku).
			Exec(ctx)
		if err != nil {
			return total, errors.WrapDatabaseError(ctx, err, "删除配料")
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}

// InsertIngredient 插入配料，返回新 ID
func (r *RecipeRepository) InsertIngredient(ctx context.Context, recipeID int64, ing recipe.Ingredient) (int64, error) {
	id, err := r.sql.InsertInto(TableIngredients).
		Columns(ingredientColumns[1:]...).
		Values(recipeID, ing.SKU, ing.Name, ing.Quantity, ing.Unit, ing.Percentage,
			ing.Calories, ing.Protein, ing.Fat, ing.Carbohydrates, ing.Sugar, ing.Salt, ing.Fiber,
			nullableString(ing.Lot), ing.Position).
		ExecReturningID(ctx, "id")
	if err != nil {
		return 0, errors.WrapDatabaseError(ctx, err, "新增配料")
	}
	return id, nil
}

// UpdateIngredient 按 (recipe_id, sku) 更新配料，返回受影响行数
func (r *RecipeRepository) UpdateIngredient(ctx context.Context, recipeID int64, ing recipe.Ingredient) (int64, error) {
	res, err := r.sql.Update(TableIngredients).
		Set("name", ing.Name).
		Set("quantity", ing.Quantity).
		Set("unit", ing.Unit).
		Set("percentage", ing.Percentage).
		Set("calories", ing.Calories).
		Set("protein", ing.Protein).
		Set("fat", ing.Fat).
		Set("carbohydrates", ing.Carbohydrates).
		Set("sugar", ing.Sugar).
		Set("salt", ing.Salt).
		Set("fiber", ing.Fiber).
		Set("lot", nullableString(ing.Lot)).
		Set("position", ing.Position).
		Where("recipe_id = ?", recipeID).
		Where("sku = ?", ing.SKU).
		Exec(ctx)
	if err != nil {
		return 0, errors.WrapDatabaseError(ctx, err, "更新配料")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.WrapDatabaseError(ctx, err, "更新配料")
	}
	return n, nil
}

// ReplaceOvenSteps 整体替换烤炉步骤
func (r *RecipeRepository) ReplaceOvenSteps(ctx context.Context, recipeID int64, steps []recipe.OvenStep) error {
	if _, err := r.sql.DeleteFrom(TableOvenSteps).Where("recipe_id = ?", recipeID).Exec(ctx); err != nil {
		return errors.WrapDatabaseError(ctx, err, "替换烤炉步骤")
	}
	if len(steps) == 0 {
		return nil
	}
	ins := r.sql.InsertInto(TableOvenSteps).
		Columns("recipe_id", "position", "temperature_c", "duration_minutes", "steam", "fan_speed")
	for i, s := range steps {
		ins = ins.Values(recipeID, stepPosition(s.Position, i), s.TemperatureC, s.DurationMinutes, s.Steam, s.FanSpeed)
	}
	if _, err := ins.Exec(ctx); err != nil {
		return errors.WrapDatabaseError(ctx, err, "替换烤炉步骤")
	}
	return nil
}

// ReplaceMixingSteps 整体替换搅拌步骤
func (r *RecipeRepository) ReplaceMixingSteps(ctx context.Context, recipeID int64, steps []recipe.MixingStep) error {
	if _, err := r.sql.DeleteFrom(TableMixingSteps).Where("recipe_id = ?", recipeID).Exec(ctx); err != nil {
		return errors.WrapDatabaseError(ctx, err, "替换搅拌步骤")
	}
	if len(steps) == 0 {
		return nil
	}
	ins := r.sql.InsertInto(TableMixingSteps).
		Columns("recipe_id", "position", "speed", "duration_minutes", "description")
	for i, s := range steps {
		ins = ins.Values(recipeID, stepPosition(s.Position, i), s.Speed, s.DurationMinutes, s.Description)
	}
	if _, err := ins.Exec(ctx); err != nil {
		return errors.WrapDatabaseError(ctx, err, "替换搅拌步骤")
	}
	return nil
}

// UpsertCostOverride 按 (recipe_id, cost_type) 插入或更新成本覆盖
func (r *RecipeRepository) UpsertCostOverride(ctx context.Context, recipeID int64, co recipe.CostOverride) error {
	_, err := r.sql.UpsertInto(TableCostOverrides).
		Columns("recipe_id", "cost_type", "amount").
		Values(recipeID, string(co.Type), co.Value).
		Key("recipe_id", "cost_type").
		Exec(ctx)
	if err != nil {
		return errors.WrapDatabaseError(ctx, err, "写入成本覆盖")
	}
	return nil
}

// stepPosition 未指定位置（0）的步骤按输入顺序编号
func stepPosition(position, index int) int {
	if position == 0 {
		return index + 1
	}
	return position
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func settingsValue(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
