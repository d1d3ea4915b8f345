package revision

import (
	"context"
	"strings"

	core "recipetrail/data/db"
	"recipetrail/domain/recipe"
	"recipetrail/errors"
	"recipetrail/revision/store"
)

// mutate 按固定顺序应用编辑：标量 → 删除配料 → 新增配料 → 更新配料 →
// 烤炉步骤 → 搅拌步骤 → 成本覆盖 → 生产配料覆盖。
func (c *Coordinator) mutate(ctx context.Context, tx core.ITransaction, repo *store.RecipeRepository, run *editRun) error {
	req := run.req
	recipeID := req.RecipeID

	if len(req.Patch) > 0 {
		rec := run.pre.Recipe
		if err := req.Patch.ApplyTo(&rec); err != nil {
			return err
		}
		if err := repo.UpdateRecipe(ctx, rec, req.ActorID); err != nil {
			return err
		}
	}

	// 删除后的在册配料位置，用于新增时追加与更新时保留原位置
	positions := make(map[string]int, len(run.pre.Ingredients))
	for _, ing := range run.pre.Ingredients {
		positions[ing.SKU] = ing.Position
	}

	if len(req.IngredientsToRemove) > 0 {
		skus := make([]string, 0, len(req.IngredientsToRemove))
		for _, sku := range req.IngredientsToRemove {
			sku = strings.TrimSpace(sku)
			skus = append(skus, sku)
			delete(positions, sku)
		}
		// 不存在的 SKU 忽略
		if _, err := repo.DeleteIngredients(ctx, recipeID, skus); err != nil {
			return err
		}
	}

	maxPosition := 0
	for _, p := range positions {
		maxPosition = max(maxPosition, p)
	}

	for _, ing := range req.IngredientsToAdd {
		ing = ing.Normalized()
		if _, exists := positions[ing.SKU]; exists {
			return errors.Errorf(errors.ErrCodeValidation, "配料已存在: %s", ing.SKU).
				WithContext("sku", ing.SKU)
		}
		if ing.Position <= 0 {
			ing.Position = maxPosition + 1
		}
		maxPosition = max(maxPosition, ing.Position)
		if _, err := repo.InsertIngredient(ctx, recipeID, ing); err != nil {
			return err
		}
		positions[ing.SKU] = ing.Position
		c.recordLot(ctx, tx, ing)
	}

	for _, ing := range req.IngredientsToUpdate {
		ing = ing.Normalized()
		current, exists := positions[ing.SKU]
		if !exists {
			return errors.Errorf(errors.ErrCodeValidation, "配料不存在: %s", ing.SKU).
				WithContext("sku", ing.SKU)
		}
		if ing.Position <= 0 {
			ing.Position = current
		}
		n, err := repo.UpdateIngredient(ctx, recipeID, ing)
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.Errorf(errors.ErrCodeValidation, "配料不存在: %s", ing.SKU).
				WithContext("sku", ing.SKU)
		}
		positions[ing.SKU] = ing.Position
		c.recordLot(ctx, tx, ing)
	}

	if req.OvenSteps != nil {
		if err := repo.ReplaceOvenSteps(ctx, recipeID, *req.OvenSteps); err != nil {
			return err
		}
	}
	if req.MixingSteps != nil {
		if err := repo.ReplaceMixingSteps(ctx, recipeID, *req.MixingSteps); err != nil {
			return err
		}
	}

	for _, co := range req.CostOverrides {
		if err := repo.UpsertCostOverride(ctx, recipeID, co); err != nil {
			return err
		}
	}

	if run.production != nil {
		for _, o := range req.IngredientOverrides {
			o.SKU = strings.TrimSpace(o.SKU)
			o.Lot = strings.TrimSpace(o.Lot)
			if err := repo.UpsertIngredientOverride(ctx, run.production.ID, o); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Coordinator) recordLot(ctx context.Context, tx core.ITransaction, ing recipe.Ingredient) {
	if ing.Lot == "" {
		return
	}
	c.lots.Upsert(ctx, tx, ing.SKU, ing.Lot)
}
