// Package cache 提供容量受限的泛型 LRU 缓存，用于缓存不可变的读模型（如版本快照）
package cache

import (
	"container/list"
	"fmt"
	"sync"
)

// Cache 并发安全的 LRU 缓存；超过容量时驱逐最久未使用的条目
type Cache[K comparable, V any] struct {
	name    string
	maxSize int

	mu      sync.Mutex
	items   map[K]*list.Element
	lruList *list.List // 最近使用的在前
	stats   Stats
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// Config 缓存配置
type Config struct {
	// Name 缓存名称，仅用于 String
	Name string
	// MaxSize 最大条目数；<=0 时使用 DefaultMaxSize
	MaxSize int
}

// DefaultMaxSize 未配置容量时的默认值
const DefaultMaxSize = 256

// Stats 缓存统计
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// New 创建缓存
func New[K comparable, V any](cfg Config) *Cache[K, V] {
	if cfg.Name == "" {
		cfg.Name = "unnamed"
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	return &Cache[K, V]{
		name:    cfg.Name,
		maxSize: cfg.MaxSize,
		items:   make(map[K]*list.Element),
		lruList: list.New(),
	}
}

// Get 读取并刷新条目的 LRU 位置
func (c *Cache[K, V]) Get(key K) (value V, found bool) {
	// Get 会移动链表位置并更新统计，需要写锁
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return value, false
	}
	c.lruList.MoveToFront(el)
	c.stats.Hits++
	return el.Value.(*entry[K, V]).value, true
}

// Set 写入或覆盖条目
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*entry[K, V]).value = value
		c.lruList.MoveToFront(el)
		return
	}
	if len(c.items) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.items[key] = c.lruList.PushFront(&entry[K, V]{key: key, value: value})
}

// GetOrLoad 命中时直接返回；未命中时调用 load，成功结果写入缓存，错误不缓存。
//
// 并发未命中同一键时 load 可能执行多次，只适用于幂等读取。
func (c *Cache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}

// Delete 删除条目，返回条目是否存在
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.lruList.Remove(el)
	delete(c.items, key)
	return true
}

// Len 当前条目数
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Stats 统计副本
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.items)
	return s
}

func (c *Cache[K, V]) evictOldestLocked() {
	oldest := c.lruList.Back()
	if oldest == nil {
		return
	}
	c.lruList.Remove(oldest)
	delete(c.items, oldest.Value.(*entry[K, V]).key)
	c.stats.Evictions++
}

func (c *Cache[K, V]) String() string {
	s := c.Stats()
	return fmt.Sprintf("Cache[%s]: size=%d/%d hits=%d misses=%d evictions=%d",
		c.name, s.Size, c.maxSize, s.Hits, s.Misses, s.Evictions)
}
