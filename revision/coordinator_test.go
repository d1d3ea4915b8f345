package revision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipetrail/domain/recipe"
	"recipetrail/errors"
	"recipetrail/logging"
	"recipetrail/revision/audit"
)

func TestSubmitEdit_ExampleScenario(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	c := New(f.db, WithLogger(logging.NewNoopLogger()))

	t.Run("非生产编辑不创建版本", func(t *testing.T) {
		res, err := c.SubmitEdit(ctx, f.edit(recipe.Patch{recipe.FieldWastePercent: 3.0}))
		require.NoError(t, err)
		assert.Nil(t, res.VersionID)
		assert.Equal(t, 1, res.AuditRecordCount)
		assert.Equal(t, 3.0, res.Recipe.Recipe.WastePercent)
	})

	t.Run("生产编辑创建版本并回填", func(t *testing.T) {
		pid := f.production(t, recipe.ProductionInProgress)
		res, err := c.SubmitEdit(ctx, f.productionEdit(pid, recipe.Patch{recipe.FieldWastePercent: 3.5}))
		require.NoError(t, err)
		require.NotNil(t, res.VersionID)
		assert.Equal(t, int64(1), *res.VersionID)
		assert.Equal(t, 2, res.AuditRecordCount)

		records, err := audit.NewStore(f.db).ListByVersion(ctx, *res.VersionID)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, audit.ChangeProduction, records[0].ChangeType)
		assert.Equal(t, "Changed waste_percent from 3 to 3.5", records[0].Description)
		assert.Equal(t, audit.ChangeVersionCreated, records[1].ChangeType)
		assert.Equal(t, "Created version 1", records[1].Description)
		for _, r := range records {
			require.NotNil(t, r.ProductionID)
			assert.Equal(t, pid, *r.ProductionID)
		}
	})
}

func TestSubmitEdit_NoOpIdempotence(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	c := New(f.db, WithLogger(logging.NewNoopLogger()))
	pid := f.production(t, recipe.ProductionInProgress)

	patch := recipe.Patch{recipe.FieldName: "Country Loaf", recipe.FieldWastePercent: 2.5, recipe.FieldIsActive: true}

	t.Run("非生产", func(t *testing.T) {
		res, err := c.SubmitEdit(ctx, f.edit(patch))
		require.NoError(t, err)
		assert.Nil(t, res.VersionID)
		assert.Zero(t, res.AuditRecordCount)
	})

	t.Run("生产", func(t *testing.T) {
		req := f.productionEdit(pid, patch)
		steps := []recipe.OvenStep{{TemperatureC: 250, DurationMinutes: 20, Steam: true}}
		req.OvenSteps = &steps
		res, err := c.SubmitEdit(ctx, req)
		require.NoError(t, err)
		assert.Nil(t, res.VersionID)
		assert.Zero(t, res.AuditRecordCount)
	})

	assert.Empty(t, f.auditRecords(t))
	assert.Empty(t, f.versions(t))
}

func TestSubmitEdit_VersionGating(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	c := New(f.db, WithLogger(logging.NewNoopLogger()))

	res, err := c.SubmitEdit(ctx, f.edit(recipe.Patch{
		recipe.FieldName:         "Rustic Loaf",
		recipe.FieldWastePercent: 4,
	}))
	require.NoError(t, err)
	assert.Nil(t, res.VersionID)
	assert.Equal(t, 2, res.AuditRecordCount)

	records := f.auditRecords(t)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Nil(t, r.VersionID)
		assert.Nil(t, r.ProductionID)
		assert.Equal(t, audit.ChangeAdmin, r.ChangeType)
		assert.Equal(t, int64(9), r.ActorID)
	}
	assert.Empty(t, f.versions(t))
}

func TestSubmitEdit_MonotonicVersions(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	c := New(f.db, WithLogger(logging.NewNoopLogger()))
	pid := f.production(t, recipe.ProductionInProgress)

	var ids []int64
	for i, waste := range []float64{3, 4, 5} {
		res, err := c.SubmitEdit(ctx, f.productionEdit(pid, recipe.Patch{recipe.FieldWastePercent: waste}))
		require.NoError(t, err, "edit %d", i)
		require.NotNil(t, res.VersionID)
		ids = append(ids, *res.VersionID)

		// 本次事务的全部记录（含 version_created）都指向新版本
		records, err := audit.NewStore(f.db).ListByVersion(ctx, *res.VersionID)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, audit.ChangeVersionCreated, records[1].ChangeType)
	}

	snaps := f.versions(t)
	require.Len(t, snaps, 3)
	for i, s := range snaps {
		assert.Equal(t, i+1, s.VersionNumber)
		assert.Equal(t, ids[i], s.ID)
		assert.Equal(t, int64(9), s.CreatedBy)
	}

	img, err := snaps[2].Image()
	require.NoError(t, err)
	assert.Equal(t, 5.0, img.Recipe.WastePercent)
	assert.Len(t, img.Ingredients, 2)

	// 未与任何版本关联的记录不存在
	for _, r := range f.auditRecords(t) {
		assert.NotNil(t, r.VersionID)
	}
}

func TestSubmitEdit_RejectsInvalidProductionContext(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	c := New(f.db, WithLogger(logging.NewNoopLogger()))
	before := f.image(t)

	other, err := f.repo.CreateRecipe(ctx, recipe.Image{Recipe: recipe.Recipe{Name: "Baguette"}}, 1)
	require.NoError(t, err)
	foreign, err := f.repo.CreateProduction(ctx, other, recipe.ProductionInProgress)
	require.NoError(t, err)

	cases := []struct {
		name         string
		productionID int64
	}{
		{"已完成的生产", f.production(t, recipe.ProductionCompleted)},
		{"计划中的生产", f.production(t, recipe.ProductionPlanned)},
		{"其他配方的生产", foreign},
		{"不存在的生产", 9999},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := f.productionEdit(tc.productionID, recipe.Patch{recipe.FieldWastePercent: 9})
			req.IngredientsToRemove = []string{"FLOUR"}
			_, err := c.SubmitEdit(ctx, req)
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeInvalidProductionContext, errors.CodeOf(err))
		})
	}

	assert.Equal(t, before, f.image(t))
	assert.Empty(t, f.auditRecords(t))
	assert.Empty(t, f.versions(t))
}

func TestSubmitEdit_ValidationAndNotFound(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	c := New(f.db, WithLogger(logging.NewNoopLogger()))

	t.Run("生产模式缺少 production_id", func(t *testing.T) {
		req := f.edit(recipe.Patch{recipe.FieldWastePercent: 3})
		req.IsProduction = true
		_, err := c.SubmitEdit(ctx, req)
		assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
	})

	t.Run("未知字段", func(t *testing.T) {
		_, err := c.SubmitEdit(ctx, f.edit(recipe.Patch{"colour": "brown"}))
		assert.Equal(t, errors.ErrCodeValidation, errors.CodeOf(err))
	})

	t.Run("配方不存在", func(t *testing.T) {
		req := f.edit(recipe.Patch{recipe.FieldWastePercent: 3})
		req.RecipeID = 4242
		_, err := c.SubmitEdit(ctx, req)
		assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
	})

	assert.Empty(t, f.auditRecords(t))
}
