package version

import (
	"context"

	"recipetrail/cache"
)

// SnapshotReader 按版本号读取快照
type SnapshotReader interface {
	Get(ctx context.Context, recipeID int64, number int) (Snapshot, error)
}

type snapshotKey struct {
	recipeID int64
	number   int
}

// CachedReader 快照写入后不再修改，按 (recipe_id, version_number) 缓存读取结果。
// NOT_FOUND 等错误不缓存，之后分配的版本可以被读到。
type CachedReader struct {
	next  SnapshotReader
	cache *cache.Cache[snapshotKey, Snapshot]
}

func NewCachedReader(next SnapshotReader, size int) *CachedReader {
	return &CachedReader{
		next:  next,
		cache: cache.New[snapshotKey, Snapshot](cache.Config{Name: "version_snapshots", MaxSize: size}),
	}
}

func (r *CachedReader) Get(ctx context.Context, recipeID int64, number int) (Snapshot, error) {
	return r.cache.GetOrLoad(snapshotKey{recipeID, number}, func() (Snapshot, error) {
		return r.next.Get(ctx, recipeID, number)
	})
}

// Stats 缓存统计
func (r *CachedReader) Stats() cache.Stats { return r.cache.Stats() }
