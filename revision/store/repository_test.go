package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "recipetrail/data/db"
	"recipetrail/data/db/basic"
	"recipetrail/domain/recipe"
	"recipetrail/errors"
)

func setupDB(t *testing.T) core.IDatabase {
	t.Helper()
	db, err := basic.New(core.DBConfig{Driver: "sqlite", Database: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func sampleImage() recipe.Image {
	return recipe.Image{
		Recipe: recipe.Recipe{
			Name: "Country Loaf", Category: "bread", YieldQuantity: 10, YieldUnit: "pcs",
			WastePercent: 2.5, BakeTimeMinutes: 45, IsActive: true,
			Settings: json.RawMessage(`{"hydration":0.75}`),
		},
		Ingredients: []recipe.Ingredient{
			{SKU: "FLOUR", Name: "Flour", Quantity: 1000, Unit: "g", Lot: "L-1"},
			{SKU: "WATER", Name: "Water", Quantity: 750, Unit: "g"},
		},
		OvenSteps:     []recipe.OvenStep{{TemperatureC: 250, DurationMinutes: 20, Steam: true}, {TemperatureC: 230, DurationMinutes: 25}},
		MixingSteps:   []recipe.MixingStep{{Speed: 1, DurationMinutes: 4, Description: "mix"}},
		CostOverrides: recipe.CostOverrides{recipe.CostLabor: 3.2},
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupDB(t)
	require.NoError(t, Migrate(context.Background(), db))
}

func TestRecipeRepository_CreateAndLoad(t *testing.T) {
	ctx := context.Background()
	repo := NewRecipeRepository(setupDB(t))

	id, err := repo.CreateRecipe(ctx, sampleImage(), 1)
	require.NoError(t, err)

	img, err := repo.LoadImage(ctx, id, false)
	require.NoError(t, err)
	assert.Equal(t, id, img.Recipe.ID)
	assert.Equal(t, "Country Loaf", img.Recipe.Name)
	assert.Equal(t, 2.5, img.Recipe.WastePercent)
	assert.True(t, img.Recipe.IsActive)
	assert.JSONEq(t, `{"hydration":0.75}`, string(img.Recipe.Settings))
	assert.Equal(t, int64(1), img.Recipe.UpdatedBy)

	require.Len(t, img.Ingredients, 2)
	assert.Equal(t, "FLOUR", img.Ingredients[0].SKU)
	assert.Equal(t, 1, img.Ingredients[0].Position)
	assert.Equal(t, "L-1", img.Ingredients[0].Lot)
	assert.Equal(t, "", img.Ingredients[1].Lot)

	require.Len(t, img.OvenSteps, 2)
	assert.Equal(t, recipe.OvenStep{Position: 1, TemperatureC: 250, DurationMinutes: 20, Steam: true}, img.OvenSteps[0])
	assert.Equal(t, []recipe.MixingStep{{Position: 1, Speed: 1, DurationMinutes: 4, Description: "mix"}}, img.MixingSteps)
	assert.Equal(t, recipe.CostOverrides{recipe.CostLabor: 3.2}, img.CostOverrides)
}

func TestRecipeRepository_LoadMissing(t *testing.T) {
	_, err := NewRecipeRepository(setupDB(t)).LoadImage(context.Background(), 404, true)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
}

func TestRecipeRepository_Mutations(t *testing.T) {
	ctx := context.Background()
	repo := NewRecipeRepository(setupDB(t))
	id, err := repo.CreateRecipe(ctx, sampleImage(), 1)
	require.NoError(t, err)

	t.Run("更新配方标量", func(t *testing.T) {
		img, err := repo.LoadImage(ctx, id, true)
		require.NoError(t, err)
		img.Recipe.WastePercent = 3
		img.Recipe.Settings = nil
		require.NoError(t, repo.UpdateRecipe(ctx, img.Recipe, 9))

		after, err := repo.LoadImage(ctx, id, false)
		require.NoError(t, err)
		assert.Equal(t, 3.0, after.Recipe.WastePercent)
		assert.Nil(t, after.Recipe.Settings)
		assert.Equal(t, int64(9), after.Recipe.UpdatedBy)
	})

	t.Run("按SKU更新和删除配料", func(t *testing.T) {
		n, err := repo.UpdateIngredient(ctx, id, recipe.Ingredient{SKU: "WATER", Name: "Water", Quantity: 800, Unit: "g", Position: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = repo.UpdateIngredient(ctx, id, recipe.Ingredient{SKU: "NOPE"})
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		deleted, err := repo.DeleteIngredients(ctx, id, []string{"FLOUR", "MISSING"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		items, err := repo.ListIngredients(ctx, id)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, 800.0, items[0].Quantity)
	})

	t.Run("整体替换步骤", func(t *testing.T) {
		require.NoError(t, repo.ReplaceOvenSteps(ctx, id, []recipe.OvenStep{{Position: 1, TemperatureC: 200}}))
		require.NoError(t, repo.ReplaceMixingSteps(ctx, id, []recipe.MixingStep{}))

		img, err := repo.LoadImage(ctx, id, false)
		require.NoError(t, err)
		assert.Len(t, img.OvenSteps, 1)
		assert.Empty(t, img.MixingSteps)
	})

	t.Run("成本覆盖 upsert", func(t *testing.T) {
		require.NoError(t, repo.UpsertCostOverride(ctx, id, recipe.CostOverride{Type: recipe.CostLabor, Value: 4}))
		require.NoError(t, repo.UpsertCostOverride(ctx, id, recipe.CostOverride{Type: recipe.CostEnergy, Value: 1}))

		img, err := repo.LoadImage(ctx, id, false)
		require.NoError(t, err)
		assert.Equal(t, recipe.CostOverrides{recipe.CostLabor: 4, recipe.CostEnergy: 1}, img.CostOverrides)
	})
}

func TestRecipeRepository_Productions(t *testing.T) {
	ctx := context.Background()
	repo := NewRecipeRepository(setupDB(t))
	recipeID, err := repo.CreateRecipe(ctx, sampleImage(), 1)
	require.NoError(t, err)

	pid, err := repo.CreateProduction(ctx, recipeID, recipe.ProductionInProgress)
	require.NoError(t, err)

	p, err := repo.FindProduction(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, recipe.Production{ID: pid, RecipeID: recipeID, Status: recipe.ProductionInProgress}, p)

	require.NoError(t, repo.UpdateProductionStatus(ctx, pid, recipe.ProductionCompleted))
	p, err = repo.FindProduction(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, recipe.ProductionCompleted, p.Status)

	_, err = repo.FindProduction(ctx, 999)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))
	assert.True(t, errors.IsCode(repo.UpdateProductionStatus(ctx, 999, recipe.ProductionPlanned), errors.ErrCodeNotFound))

	require.NoError(t, repo.UpsertIngredientOverride(ctx, pid, recipe.IngredientOverride{SKU: "FLOUR", Quantity: 900, Lot: "L-2"}))
	require.NoError(t, repo.UpsertIngredientOverride(ctx, pid, recipe.IngredientOverride{SKU: "FLOUR", Quantity: 950}))

	overrides, err := repo.ListIngredientOverrides(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, []recipe.IngredientOverride{{SKU: "FLOUR", Quantity: 950}}, overrides)
}

func TestMigrate_DeletingRecipeCascades(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	repo := NewRecipeRepository(db)

	id, err := repo.CreateRecipe(ctx, sampleImage(), 1)
	require.NoError(t, err)
	pid, err := repo.CreateProduction(ctx, id, recipe.ProductionInProgress)
	require.NoError(t, err)
	require.NoError(t, repo.UpsertIngredientOverride(ctx, pid, recipe.IngredientOverride{SKU: "FLOUR", Quantity: 900}))

	t.Run("不存在的配方不能被引用", func(t *testing.T) {
		_, err := repo.CreateProduction(ctx, id+100, recipe.ProductionPlanned)
		assert.Error(t, err)
	})

	_, err = db.Exec(ctx, "DELETE FROM recipes WHERE id = ?", id)
	require.NoError(t, err)

	for _, table := range []string{TableIngredients, TableOvenSteps, TableMixingSteps, TableCostOverrides, TableProductions, TableProductionIngredientOverrides} {
		var n int
		require.NoError(t, db.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n))
		assert.Zero(t, n, table)
	}
}
