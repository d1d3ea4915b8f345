package revision

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "recipetrail/data/db"
	"recipetrail/domain/recipe"
	"recipetrail/errors"
	"recipetrail/logging"
	"recipetrail/messaging"
	"recipetrail/messaging/transport/memory"
	"recipetrail/monitoring"
	"recipetrail/patterns/retry"
	"recipetrail/revision/audit"
)

type failingAuditWriter struct{ calls int }

func (w *failingAuditWriter) Persist(ctx context.Context, tx core.IDatabase, records []audit.Record) ([]audit.Record, error) {
	w.calls++
	return nil, errors.WrapDatabaseError(ctx, stdErrors.New("disk I/O error"), "写入审计记录")
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, Revision) error { return stdErrors.New("broker down") }

func TestSubmitEdit_LotFailureDoesNotAbort(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	_, err := f.db.Exec(ctx, "DROP TABLE lot_references")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	logger := logging.NewMemoryLogger()
	c := New(f.db, WithLogger(logger), WithMetrics(monitoring.NewMetrics(reg, "test")))
	pid := f.production(t, recipe.ProductionInProgress)

	req := f.productionEdit(pid, recipe.Patch{recipe.FieldWastePercent: 3})
	req.IngredientsToAdd = []recipe.Ingredient{{SKU: "SALT", Name: "Salt", Quantity: 20, Unit: "g", Lot: "S-1"}}

	res, err := c.SubmitEdit(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, res.VersionID)
	assert.Equal(t, 3, res.AuditRecordCount)

	img := f.image(t)
	assert.Equal(t, 3.0, img.Recipe.WastePercent)
	salt, ok := img.IngredientBySKU("SALT")
	require.True(t, ok)
	assert.Equal(t, "S-1", salt.Lot)
	assert.Len(t, f.versions(t), 1)
	assert.Len(t, f.auditRecords(t), 3)

	warnings := logger.Filter(logging.WarnLevel)
	require.NotEmpty(t, warnings)
	assert.Equal(t, "SALT", warnings[0].Fields["sku"])
	assert.Equal(t, "S-1", warnings[0].Fields["lot"])
	assert.Equal(t, 1.0, counterValue(t, reg, "test_lot_upsert_failures_total", ""))
}

func TestSubmitEdit_AuditFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	writer := &failingAuditWriter{}
	reg := prometheus.NewRegistry()
	c := New(f.db,
		WithLogger(logging.NewNoopLogger()),
		WithAuditWriter(writer),
		WithMetrics(monitoring.NewMetrics(reg, "test")))
	pid := f.production(t, recipe.ProductionInProgress)
	before := f.image(t)

	req := f.productionEdit(pid, recipe.Patch{recipe.FieldWastePercent: 7, recipe.FieldName: "Broken"})
	req.IngredientsToRemove = []string{"WATER"}
	req.IngredientsToAdd = []recipe.Ingredient{{SKU: "SALT", Name: "Salt", Quantity: 20, Lot: "S-1"}}
	req.CostOverrides = []recipe.CostOverride{{Type: recipe.CostEnergy, Value: 1.5}}

	_, err := c.SubmitEdit(ctx, req)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInternal, errors.CodeOf(err), "数据库错误在边界归一为 INTERNAL")
	assert.Equal(t, 1, writer.calls)

	assert.Equal(t, before, f.image(t))
	assert.Empty(t, f.versions(t))
	assert.Empty(t, f.auditRecords(t))
	overrides, err := f.repo.ListIngredientOverrides(ctx, pid)
	require.NoError(t, err)
	assert.Empty(t, overrides)

	assert.Equal(t, 1.0, counterValue(t, reg, "test_edits_total", monitoring.OutcomeAborted))
	assert.Zero(t, counterValue(t, reg, "test_versions_created_total", ""))
}

func TestSubmitEdit_Notifications(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	tpt := memory.NewTransport(0, logging.NewNoopLogger())
	require.NoError(t, tpt.Start(ctx))
	defer tpt.Close()

	clock := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	c := New(f.db,
		WithLogger(logging.NewNoopLogger()),
		WithNotifier(NewMessageNotifier(tpt)),
		WithClock(func() time.Time { return clock }))
	pid := f.production(t, recipe.ProductionInProgress)

	t.Run("无变化不发送", func(t *testing.T) {
		_, err := c.SubmitEdit(ctx, f.edit(recipe.Patch{recipe.FieldWastePercent: 2.5}))
		require.NoError(t, err)
		assert.Empty(t, tpt.Messages())
	})

	t.Run("提交后发送修订摘要", func(t *testing.T) {
		res, err := c.SubmitEdit(ctx, f.productionEdit(pid, recipe.Patch{recipe.FieldWastePercent: 3, recipe.FieldName: "Rustic"}))
		require.NoError(t, err)

		msgs := tpt.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, MessageTypeRecipeRevised, msgs[0].Type)
		assert.Equal(t, "9", msgs[0].Metadata["actor_id"])

		var rev Revision
		require.NoError(t, msgs[0].DecodePayload(&rev))
		assert.Equal(t, f.recipeID, rev.RecipeID)
		require.NotNil(t, rev.VersionID)
		assert.Equal(t, *res.VersionID, *rev.VersionID)
		assert.Equal(t, 1, rev.VersionNumber)
		assert.Equal(t, 3, rev.AuditRecordCount)
		assert.ElementsMatch(t, []string{recipe.FieldName, recipe.FieldWastePercent}, rev.Fields)
		assert.True(t, clock.Equal(rev.RevisedAt))
	})

	t.Run("失败的编辑不发送", func(t *testing.T) {
		_, err := c.SubmitEdit(ctx, f.edit(recipe.Patch{recipe.FieldWastePercent: 500}))
		require.Error(t, err)
		assert.Len(t, tpt.Messages(), 1)
	})
}

func TestSubmitEdit_NotifyFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	reg := prometheus.NewRegistry()
	logger := logging.NewMemoryLogger()
	c := New(f.db,
		WithLogger(logger),
		WithNotifier(failingNotifier{}),
		WithMetrics(monitoring.NewMetrics(reg, "test")))

	res, err := c.SubmitEdit(ctx, f.edit(recipe.Patch{recipe.FieldWastePercent: 3}))
	require.NoError(t, err)
	assert.Equal(t, 1, res.AuditRecordCount)

	warnings := logger.Filter(logging.WarnLevel)
	require.Len(t, warnings, 1)
	assert.Equal(t, "修订通知发送失败", warnings[0].Message)
	assert.Equal(t, 1.0, counterValue(t, reg, "test_notify_failures_total", ""))
	assert.Equal(t, 1.0, counterValue(t, reg, "test_edits_total", monitoring.OutcomeCommitted))
	assert.Equal(t, 1.0, counterValue(t, reg, "test_audit_records_total", ""))
}

func TestSubmitEdit_MessageBusNotifier(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	tpt := memory.NewTransport(0, logging.NewNoopLogger())
	require.NoError(t, tpt.Start(ctx))
	bus := messaging.NewBus(tpt)
	bus.Use(messaging.CorrelationMiddleware{})
	bus.Use(messaging.SourceMiddleware{Source: "recipetrail"})

	c := New(f.db, WithLogger(logging.NewNoopLogger()), WithNotifier(NewMessageNotifier(bus)))
	_, err := c.SubmitEdit(messaging.ContextWithCorrelationID(ctx, "req-1"), f.edit(recipe.Patch{recipe.FieldWastePercent: 3}))
	require.NoError(t, err)

	msgs := tpt.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "req-1", msgs[0].Metadata[messaging.KeyCorrelationID])
	assert.Equal(t, "recipetrail", msgs[0].Metadata[messaging.KeySource])
}

// flakyPublisher 前 failures 次发布失败
type flakyPublisher struct {
	failures int
	ids      []string
}

func (p *flakyPublisher) Publish(_ context.Context, msg *messaging.Message) error {
	p.ids = append(p.ids, msg.ID)
	if len(p.ids) <= p.failures {
		return stdErrors.New("connection reset")
	}
	return nil
}

func TestMessageNotifier_PublishRetry(t *testing.T) {
	ctx := context.Background()
	cfg := retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2}

	t.Run("重试发送同一条消息", func(t *testing.T) {
		pub := &flakyPublisher{failures: 2}
		n := NewMessageNotifier(pub, WithPublishRetry(cfg))
		require.NoError(t, n.Notify(ctx, Revision{RecipeID: 1, ActorID: 7}))
		require.Len(t, pub.ids, 3)
		assert.Equal(t, pub.ids[0], pub.ids[2])
	})

	t.Run("次数用尽返回最后的错误", func(t *testing.T) {
		pub := &flakyPublisher{failures: 5}
		n := NewMessageNotifier(pub, WithPublishRetry(cfg))
		assert.EqualError(t, n.Notify(ctx, Revision{RecipeID: 1}), "connection reset")
		assert.Len(t, pub.ids, 3)
	})

	t.Run("默认只尝试一次", func(t *testing.T) {
		pub := &flakyPublisher{failures: 1}
		assert.Error(t, NewMessageNotifier(pub).Notify(ctx, Revision{RecipeID: 1}))
		assert.Len(t, pub.ids, 1)
	})
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "versioning", StateVersioning.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.True(t, StateAborted.Terminal())
	assert.False(t, StateDiffing.Terminal())
}
