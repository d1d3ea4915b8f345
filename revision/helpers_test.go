package revision

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	core "recipetrail/data/db"
	"recipetrail/data/db/basic"
	"recipetrail/domain/recipe"
	"recipetrail/revision/audit"
	"recipetrail/revision/store"
	"recipetrail/revision/version"
)

type fixture struct {
	db       core.IDatabase
	repo     *store.RecipeRepository
	recipeID int64
}

func setup(t *testing.T) fixture {
	t.Helper()
	return setupWith(t, core.DBConfig{Driver: "sqlite", Database: ":memory:"})
}

func setupWith(t *testing.T, cfg core.DBConfig) fixture {
	t.Helper()
	ctx := context.Background()
	db, err := basic.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(ctx, db))

	repo := store.NewRecipeRepository(db)
	id, err := repo.CreateRecipe(ctx, recipe.Image{
		Recipe: recipe.Recipe{
			Name: "Country Loaf", Category: "bread", YieldQuantity: 10, YieldUnit: "pcs",
			WastePercent: 2.5, BakeTimeMinutes: 45, BatchSize: 20, IsActive: true,
		},
		Ingredients: []recipe.Ingredient{
			{SKU: "FLOUR", Name: "Flour", Quantity: 1000, Unit: "g", Position: 1},
			{SKU: "WATER", Name: "Water", Quantity: 750, Unit: "g", Position: 2},
		},
		OvenSteps:   []recipe.OvenStep{{TemperatureC: 250, DurationMinutes: 20, Steam: true}},
		MixingSteps: []recipe.MixingStep{{Speed: 1, DurationMinutes: 4, Description: "mix"}},
	}, 1)
	require.NoError(t, err)
	return fixture{db: db, repo: repo, recipeID: id}
}

func (f fixture) production(t *testing.T, status recipe.ProductionStatus) int64 {
	t.Helper()
	id, err := f.repo.CreateProduction(context.Background(), f.recipeID, status)
	require.NoError(t, err)
	return id
}

func (f fixture) image(t *testing.T) recipe.Image {
	t.Helper()
	img, err := f.repo.LoadImage(context.Background(), f.recipeID, false)
	require.NoError(t, err)
	return img
}

func (f fixture) auditRecords(t *testing.T) []audit.Record {
	t.Helper()
	records, err := audit.NewStore(f.db).ListByRecipe(context.Background(), f.recipeID, 0, 0)
	require.NoError(t, err)
	return records
}

func (f fixture) versions(t *testing.T) []version.Snapshot {
	t.Helper()
	snaps, err := version.NewRepository(f.db).List(context.Background(), f.recipeID)
	require.NoError(t, err)
	return snaps
}

func (f fixture) edit(patch recipe.Patch) recipe.EditRequest {
	return recipe.EditRequest{RecipeID: f.recipeID, Patch: patch, ActorID: 9}
}

func (f fixture) productionEdit(productionID int64, patch recipe.Patch) recipe.EditRequest {
	req := f.edit(patch)
	req.IsProduction = true
	req.ProductionID = &productionID
	return req
}

// counterValue 从注册表中读取计数器值；labelValue 为空时匹配无标签的序列
func counterValue(t *testing.T, reg *prometheus.Registry, name, labelValue string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelValue == "" && len(m.GetLabel()) == 0 {
				return m.GetCounter().GetValue()
			}
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == labelValue {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
