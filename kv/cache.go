package kv

import (
	"time"

	"github.com/coocood/freecache"
)

// existenceCache 只缓存"表存在"，不存在的结果每次都查询数据库
type existenceCache struct {
	cache *freecache.Cache
	ttl   int
}

func newExistenceCache(size int, ttl time.Duration) *existenceCache {
	if size <= 0 {
		return nil
	}
	return &existenceCache{
		cache: freecache.NewCache(size),
		ttl:   int(ttl.Seconds()),
	}
}

func (c *existenceCache) has(table string) bool {
	if c == nil {
		return false
	}
	_, err := c.cache.Get([]byte(table))
	return err == nil
}

func (c *existenceCache) add(table string) {
	if c == nil {
		return
	}
	_ = c.cache.Set([]byte(table), []byte{1}, c.ttl)
}

func (c *existenceCache) remove(table string) {
	if c == nil {
		return
	}
	c.cache.Del([]byte(table))
}

func (c *existenceCache) clear() {
	if c == nil {
		return
	}
	c.cache.Clear()
}
