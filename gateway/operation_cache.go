/**
 * Copyright (c) 2019, The Artemis Authors.
 *
 * Permission to use, copy, modify, and/or distribute this software for any
 * purpose with or without fee is hereby granted, provided that the above
 * copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package gateway

import (
	"github.com/botobag/artemis/graphql/executor"
	"github.com/botobag/artemis/graphql/handler"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// OperationCache implements handler.OperationCache with a fixed-size LRU cache. It is safe for
// concurrent use.
type OperationCache struct {
	cache *lru.Cache[string, *executor.PreparedOperation]

	hits   prometheus.Counter
	misses prometheus.Counter
}

var _ handler.OperationCache = (*OperationCache)(nil)

// NewOperationCache creates an OperationCache that holds at most size operations. Lookups are
// counted in lookups (labeled by "result") when it is not nil.
func NewOperationCache(size int, lookups *prometheus.CounterVec) (*OperationCache, error) {
	cache, err := lru.New[string, *executor.PreparedOperation](size)
	if err != nil {
		return nil, err
	}

	c := &OperationCache{
		cache: cache,
	}
	if lookups != nil {
		c.hits = lookups.WithLabelValues("hit")
		c.misses = lookups.WithLabelValues("miss")
	}
	return c, nil
}

// Get implements handler.OperationCache.
func (c *OperationCache) Get(query string) (*executor.PreparedOperation, bool) {
	operation, ok := c.cache.Get(query)
	if ok {
		if c.hits != nil {
			c.hits.Inc()
		}
	} else if c.misses != nil {
		c.misses.Inc()
	}
	return operation, ok
}

// Add implements handler.OperationCache.
func (c *OperationCache) Add(query string, operation *executor.PreparedOperation) {
	c.cache.Add(query, operation)
}

// Len returns the number of cached operations.
func (c *OperationCache) Len() int {
	return c.cache.Len()
}
