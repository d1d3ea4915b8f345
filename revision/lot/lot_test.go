package lot

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "recipetrail/data/db"
	"recipetrail/data/db/basic"
	"recipetrail/logging"
	"recipetrail/revision/store"
)

type counter struct{ n atomic.Int64 }

func (c *counter) Inc() { c.n.Add(1) }

func setupDB(t *testing.T) core.IDatabase {
	t.Helper()
	db, err := basic.New(core.DBConfig{Driver: "sqlite", Database: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(context.Background(), db))
	return db
}

func TestUpserter_InsertThenTouch(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	u := NewUpserter(WithLogger(logging.NewNoopLogger()), WithClock(func() time.Time { return clock }))

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	assert.True(t, u.Upsert(ctx, tx, "FLOUR", " L-1 "))
	assert.False(t, u.Upsert(ctx, tx, "FLOUR", "   "), "空批次号不写入")
	require.NoError(t, tx.Commit())

	clock = clock.Add(time.Hour)
	tx, err = db.Begin(ctx)
	require.NoError(t, err)
	assert.True(t, u.Upsert(ctx, tx, "FLOUR", "L-1"))
	assert.True(t, u.Upsert(ctx, tx, "FLOUR", "L-2"))
	require.NoError(t, tx.Commit())

	refs, err := ListBySKU(ctx, db, "FLOUR")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	for _, ref := range refs {
		assert.True(t, ref.LastUsedAt.Equal(clock), "last_used_at 应被刷新")
	}
}

func TestUpserter_FailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	_, err := db.Exec(ctx, "DROP TABLE lot_references")
	require.NoError(t, err)
	_, err = db.Exec(ctx, "CREATE TABLE marker (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	logger := logging.NewMemoryLogger()
	failures := &counter{}
	u := NewUpserter(WithLogger(logger), WithFailureCounter(failures))

	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	_, err = tx.Exec(ctx, "INSERT INTO marker (id) VALUES (1)")
	require.NoError(t, err)

	assert.False(t, u.Upsert(ctx, tx, "FLOUR", "L-1"))

	// 外层事务仍然可用
	_, err = tx.Exec(ctx, "INSERT INTO marker (id) VALUES (2)")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	var n int
	require.NoError(t, db.QueryRow(ctx, "SELECT COUNT(*) FROM marker").Scan(&n))
	assert.Equal(t, 2, n)

	assert.Equal(t, int64(1), failures.n.Load())
	warns := logger.Filter(logging.WarnLevel)
	require.Len(t, warns, 1)
	assert.Equal(t, "FLOUR", warns[0].Fields["sku"])
	assert.Equal(t, "L-1", warns[0].Fields["lot"])
	assert.Equal(t, "revision.lot", warns[0].Fields["component"])
}
