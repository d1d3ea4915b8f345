package recipe

import (
	"fmt"
	"strings"

	"recipetrail/errors"
	"recipetrail/validation"
)

// EditRequest 一次配方编辑。
//
// OvenSteps / MixingSteps 为 nil 表示不修改；非 nil（包括空切片）表示整体替换。
// IngredientOverrides 只在 IsProduction 时生效。
type EditRequest struct {
	RecipeID            int64                `json:"recipe_id"`
	Patch               Patch                `json:"patch,omitempty"`
	IngredientsToAdd    []Ingredient         `json:"ingredients_to_add,omitempty"`
	IngredientsToRemove []string             `json:"ingredients_to_remove,omitempty"`
	IngredientsToUpdate []Ingredient         `json:"ingredients_to_update,omitempty"`
	OvenSteps           *[]OvenStep          `json:"oven_steps,omitempty"`
	MixingSteps         *[]MixingStep        `json:"mixing_steps,omitempty"`
	CostOverrides       []CostOverride       `json:"cost_overrides,omitempty"`
	IsProduction        bool                 `json:"is_production"`
	ProductionID        *int64               `json:"production_id,omitempty"`
	IngredientOverrides []IngredientOverride `json:"ingredient_overrides,omitempty"`
	ActorID             int64                `json:"actor_id"`
}

// EditResult 编辑提交结果
type EditResult struct {
	Recipe           Image  `json:"recipe"`
	VersionID        *int64 `json:"version_id"`
	AuditRecordCount int    `json:"audit_record_count"`
}

// Validate 校验请求载荷本身；生产上下文是否有效需要查询存储，由协调器负责。
func (r EditRequest) Validate() error {
	if err := validation.Collect(
		validation.ValidateID(r.RecipeID, "recipe_id"),
		validation.ValidateID(r.ActorID, "actor_id"),
	); err != nil {
		return err
	}
	if err := r.Patch.Validate(); err != nil {
		return err
	}

	if err := validateIngredients("ingredients_to_add", r.IngredientsToAdd); err != nil {
		return err
	}
	if err := validateIngredients("ingredients_to_update", r.IngredientsToUpdate); err != nil {
		return err
	}
	for _, sku := range r.IngredientsToRemove {
		if err := validation.ValidateRequired(sku, "ingredients_to_remove.sku"); err != nil {
			return err
		}
	}

	if r.OvenSteps != nil {
		for i, step := range *r.OvenSteps {
			field := fmt.Sprintf("oven_steps[%d]", i)
			if err := validation.Collect(
				validation.ValidateFinite(step.TemperatureC, field+".temperature_c"),
				validation.ValidateNonNegative(float64(step.DurationMinutes), field+".duration_minutes"),
				validation.ValidateNonNegative(float64(step.FanSpeed), field+".fan_speed"),
			); err != nil {
				return err
			}
		}
	}
	if r.MixingSteps != nil {
		for i, step := range *r.MixingSteps {
			field := fmt.Sprintf("mixing_steps[%d]", i)
			if err := validation.Collect(
				validation.ValidateNonNegative(float64(step.Speed), field+".speed"),
				validation.ValidateNonNegative(float64(step.DurationMinutes), field+".duration_minutes"),
			); err != nil {
				return err
			}
		}
	}

	seenCost := make(map[CostType]bool, len(r.CostOverrides))
	for _, co := range r.CostOverrides {
		if !co.Type.Valid() {
			return errors.Errorf(errors.ErrCodeValidation, "未知的成本类型: %s", co.Type)
		}
		if seenCost[co.Type] {
			return errors.Errorf(errors.ErrCodeValidation, "成本类型重复: %s", co.Type)
		}
		seenCost[co.Type] = true
		if err := validation.ValidateNonNegative(co.Value, "cost_overrides."+string(co.Type)); err != nil {
			return err
		}
	}

	if r.IsProduction {
		if r.ProductionID == nil {
			return errors.NewError(errors.ErrCodeValidation, "生产模式下production_id不能为空")
		}
		if err := validation.ValidateID(*r.ProductionID, "production_id"); err != nil {
			return err
		}
		for _, o := range r.IngredientOverrides {
			if err := validation.Collect(
				validation.ValidateRequired(o.SKU, "ingredient_overrides.sku"),
				validation.ValidateNonNegative(o.Quantity, "ingredient_overrides.quantity"),
			); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateIngredients(field string, items []Ingredient) error {
	seen := make(map[string]bool, len(items))
	for _, ing := range items {
		sku := strings.TrimSpace(ing.SKU)
		if err := validation.ValidateRequired(sku, field+".sku"); err != nil {
			return err
		}
		if seen[sku] {
			return errors.Errorf(errors.ErrCodeValidation, "%s中SKU重复: %s", field, sku)
		}
		seen[sku] = true
		for _, f := range []struct {
			name  string
			value float64
		}{
			{IngredientQuantity, ing.Quantity},
			{IngredientPercentage, ing.Percentage},
			{IngredientCalories, ing.Calories},
			{IngredientProtein, ing.Protein},
			{IngredientFat, ing.Fat},
			{IngredientCarbohydrates, ing.Carbohydrates},
			{IngredientSugar, ing.Sugar},
			{IngredientSalt, ing.Salt},
			{IngredientFiber, ing.Fiber},
		} {
			if err := validation.ValidateNonNegative(f.value, field+"."+sku+"."+f.name); err != nil {
				return err
			}
		}
	}
	return nil
}
