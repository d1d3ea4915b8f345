package recipe

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipetrail/errors"
)

func int64Ptr(v int64) *int64 { return &v }

func TestPatch_ApplyTo(t *testing.T) {
	t.Run("只修改出现的字段", func(t *testing.T) {
		r := Recipe{Name: "Sourdough", WastePercent: 2.5, BakeTimeMinutes: 40}
		err := Patch{"waste_percent": "3.25", "is_active": true, "bake_time_minutes": json.Number("45")}.ApplyTo(&r)
		require.NoError(t, err)
		assert.Equal(t, "Sourdough", r.Name)
		assert.Equal(t, 3.25, r.WastePercent)
		assert.Equal(t, 45, r.BakeTimeMinutes)
		assert.True(t, r.IsActive)
	})

	t.Run("nil 清空字符串字段", func(t *testing.T) {
		r := Recipe{Name: "Rye", Description: "dark"}
		require.NoError(t, Patch{"description": nil}.ApplyTo(&r))
		assert.Equal(t, "", r.Description)
	})

	t.Run("settings 接受对象和JSON字符串", func(t *testing.T) {
		r := Recipe{Name: "Rye"}
		require.NoError(t, Patch{"settings": map[string]any{"b": 1, "a": true}}.ApplyTo(&r))
		assert.Equal(t, `{"a":true,"b":1}`, CanonicalSettings(r.Settings))

		require.NoError(t, Patch{"settings": `{"x": [1, 2]}`}.ApplyTo(&r))
		assert.Equal(t, `{"x":[1,2]}`, CanonicalSettings(r.Settings))

		require.NoError(t, Patch{"settings": ""}.ApplyTo(&r))
		assert.Nil(t, CanonicalSettings(r.Settings))
	})

	tests := []struct {
		name  string
		patch Patch
	}{
		{"未知字段", Patch{"colour": "brown"}},
		{"名称为空", Patch{"name": "  "}},
		{"负数", Patch{"batch_size": -1}},
		{"非数字", Patch{"yield_quantity": "lots"}},
		{"损耗超过100", Patch{"waste_percent": 101}},
		{"分钟非整数", Patch{"proof_time_minutes": 1.5}},
		{"布尔非法", Patch{"is_active": "maybe"}},
		{"settings 非法JSON", Patch{"settings": "{oops"}},
		{"字符串类型错误", Patch{"category": 12}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.patch.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
		})
	}
}

func TestRecipe_Scalars(t *testing.T) {
	r := Recipe{Name: "Baguette", YieldQuantity: 12, Settings: json.RawMessage(`null`)}
	s := r.Scalars()
	assert.Len(t, s, len(WatchedFields))
	assert.Equal(t, "Baguette", s[FieldName])
	assert.Equal(t, 12.0, s[FieldYieldQuantity])
	assert.Nil(t, s[FieldSettings])
}

func TestCostOverrides_Scalars(t *testing.T) {
	s := CostOverrides{CostLabor: 1.5}.Scalars()
	assert.Equal(t, 1.5, s["cost_override.labor"])
	assert.Nil(t, s["cost_override.energy"])
	assert.Equal(t, []string{"cost_override.labor", "cost_override.energy", "cost_override.packaging", "cost_override.overhead"}, CostFields())
}

func TestProduction_AllowsEditsFor(t *testing.T) {
	assert.True(t, Production{ID: 55, RecipeID: 7, Status: ProductionInProgress}.AllowsEditsFor(7))
	assert.False(t, Production{ID: 55, RecipeID: 8, Status: ProductionInProgress}.AllowsEditsFor(7))
	assert.False(t, Production{ID: 55, RecipeID: 7, Status: ProductionCompleted}.AllowsEditsFor(7))
}

func TestEditRequest_Validate(t *testing.T) {
	valid := func() EditRequest {
		return EditRequest{RecipeID: 7, ActorID: 1, Patch: Patch{"waste_percent": 3.0}}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(r *EditRequest)
	}{
		{"缺少配方ID", func(r *EditRequest) { r.RecipeID = 0 }},
		{"缺少操作人", func(r *EditRequest) { r.ActorID = 0 }},
		{"patch 非法", func(r *EditRequest) { r.Patch = Patch{"unknown": 1} }},
		{"新增配料缺少SKU", func(r *EditRequest) { r.IngredientsToAdd = []Ingredient{{Name: "Flour"}} }},
		{"新增配料SKU重复", func(r *EditRequest) {
			r.IngredientsToAdd = []Ingredient{{SKU: "A"}, {SKU: " A "}}
		}},
		{"配料数量为负", func(r *EditRequest) {
			r.IngredientsToUpdate = []Ingredient{{SKU: "A", Quantity: -2}}
		}},
		{"删除SKU为空", func(r *EditRequest) { r.IngredientsToRemove = []string{""} }},
		{"成本类型未知", func(r *EditRequest) {
			r.CostOverrides = []CostOverride{{Type: "water", Value: 1}}
		}},
		{"成本类型重复", func(r *EditRequest) {
			r.CostOverrides = []CostOverride{{Type: CostLabor, Value: 1}, {Type: CostLabor, Value: 2}}
		}},
		{"生产模式缺少生产ID", func(r *EditRequest) { r.IsProduction = true }},
		{"生产覆盖缺少SKU", func(r *EditRequest) {
			r.IsProduction = true
			r.ProductionID = int64Ptr(55)
			r.IngredientOverrides = []IngredientOverride{{Quantity: 1}}
		}},
		{"烤炉步骤时长为负", func(r *EditRequest) {
			steps := []OvenStep{{Position: 1, TemperatureC: 220, DurationMinutes: -5}}
			r.OvenSteps = &steps
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			err := req.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeValidation), err.Error())
		})
	}

	t.Run("非生产模式忽略生产覆盖", func(t *testing.T) {
		req := valid()
		req.IngredientOverrides = []IngredientOverride{{Quantity: -1}}
		assert.NoError(t, req.Validate())
	})
}

func TestImage_SnapshotRoundTrip(t *testing.T) {
	img := Image{
		Recipe:        Recipe{ID: 7, Name: "Ciabatta", WastePercent: 3.5, Settings: json.RawMessage(`{"hydration":0.8}`)},
		Ingredients:   []Ingredient{{SKU: "FLOUR", Name: "Flour", Quantity: 1000, Lot: "L-1", Position: 1}},
		OvenSteps:     []OvenStep{{Position: 1, TemperatureC: 240, DurationMinutes: 20, Steam: true}},
		CostOverrides: CostOverrides{CostEnergy: 0.4},
	}

	recipeJSON, ingredientsJSON, err := img.SnapshotJSON()
	require.NoError(t, err)
	assert.Contains(t, string(recipeJSON), `"oven_steps":[{"position":1`)
	assert.Contains(t, string(recipeJSON), `"mixing_steps":[]`)

	restored, err := ImageFromSnapshot(recipeJSON, ingredientsJSON)
	require.NoError(t, err)
	assert.Equal(t, img.Recipe.Name, restored.Recipe.Name)
	assert.Equal(t, img.Ingredients, restored.Ingredients)
	assert.Equal(t, img.OvenSteps, restored.OvenSteps)
	assert.Equal(t, img.CostOverrides, restored.CostOverrides)

	ing, ok := restored.IngredientBySKU("FLOUR")
	require.True(t, ok)
	assert.Equal(t, "L-1", ing.Lot)
}
