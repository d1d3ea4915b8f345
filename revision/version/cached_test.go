package version

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipetrail/errors"
)

type countingReader struct {
	calls int
	snaps map[int]Snapshot
}

func (r *countingReader) Get(_ context.Context, recipeID int64, number int) (Snapshot, error) {
	r.calls++
	s, ok := r.snaps[number]
	if !ok {
		return Snapshot{}, errors.NewNotFoundError("配方 %d 的版本 %d 不存在", recipeID, number)
	}
	return s, nil
}

func TestCachedReader(t *testing.T) {
	ctx := context.Background()
	next := &countingReader{snaps: map[int]Snapshot{1: {ID: 10, RecipeID: 1, VersionNumber: 1}}}
	r := NewCachedReader(next, 8)

	t.Run("重复读取只访问一次存储", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			s, err := r.Get(ctx, 1, 1)
			require.NoError(t, err)
			assert.Equal(t, int64(10), s.ID)
		}
		assert.Equal(t, 1, next.calls)
		assert.Equal(t, int64(2), r.Stats().Hits)
	})

	t.Run("不存在的版本不缓存", func(t *testing.T) {
		_, err := r.Get(ctx, 1, 2)
		assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))

		next.snaps[2] = Snapshot{ID: 11, RecipeID: 1, VersionNumber: 2}
		s, err := r.Get(ctx, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(11), s.ID)
	})
}
