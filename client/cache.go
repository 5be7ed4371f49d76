package client

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// queryCache is a TTL'd cache of raw GET response bodies keyed by request
// path. Mutating operations invalidate the paths they touch, the same way
// the data-fetching layer of the web frontend invalidates its queries.
type queryCache struct {
	lru *expirable.LRU[string, []byte]
}

func newQueryCache(size int, ttl time.Duration) *queryCache {
	return &queryCache{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (c *queryCache) get(path string) ([]byte, bool) {
	body, ok := c.lru.Get(path)
	if ok {
		observeCache("hit")
	} else {
		observeCache("miss")
	}
	return body, ok
}

func (c *queryCache) put(path string, body []byte) {
	c.lru.Add(path, body)
}

// invalidate removes every cached entry whose path starts with prefix.
func (c *queryCache) invalidate(prefix string) {
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
}
