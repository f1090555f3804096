// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"sync"
	"time"

	"github.com/kadirpekel/deepquest/pkg/observability"
	"github.com/kadirpekel/deepquest/pkg/paper"
)

// QueryCacheConfig configures a QueryCache.
type QueryCacheConfig struct {
	MaxEntries int
	GlobalTTL  time.Duration
	SessionTTL time.Duration
}

// QueryResult is the cached outcome of one federated search.
type QueryResult struct {
	Papers          []*paper.Paper `json:"papers"`
	TotalHits       int            `json:"total_hits"`
	SourceBreakdown map[string]int `json:"source_breakdown"`
}

type queryEntry struct {
	result     *QueryResult
	insertedAt time.Time
}

// QueryCache caches federated search results under a normalized
// (query, options) key, in two scopes: a short-TTL global map shared by
// every session and a longer-TTL map per session. Session maps are
// released with their session.
type QueryCache struct {
	mu       sync.Mutex
	global   map[string]*queryEntry
	sessions map[string]map[string]*queryEntry
	cfg      QueryCacheConfig
	papers   *PaperCache
}

// NewQueryCache creates a query cache backed by the given paper cache;
// every cached result also feeds its papers into the paper cache.
func NewQueryCache(cfg QueryCacheConfig, papers *PaperCache) *QueryCache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 200
	}
	if cfg.GlobalTTL <= 0 {
		cfg.GlobalTTL = 5 * time.Minute
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	return &QueryCache{
		global:   make(map[string]*queryEntry),
		sessions: make(map[string]map[string]*queryEntry),
		cfg:      cfg,
		papers:   papers,
	}
}

func queryKey(query string, opts paper.SearchOptions) string {
	return paper.NormalizeQuery(query) + "|" + opts.Key()
}

// Get consults the session scope first, then the global scope. The key
// is token-order independent.
func (c *QueryCache) Get(query string, opts paper.SearchOptions, sessionID string) (*QueryResult, bool) {
	key := queryKey(query, opts)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if sessionID != "" {
		if scope, ok := c.sessions[sessionID]; ok {
			if entry, ok := scope[key]; ok {
				if now.Sub(entry.insertedAt) <= c.cfg.SessionTTL {
					observability.CacheHits.WithLabelValues("query_session").Inc()
					return entry.result, true
				}
				delete(scope, key)
			}
		}
		observability.CacheMisses.WithLabelValues("query_session").Inc()
	}

	if entry, ok := c.global[key]; ok {
		if now.Sub(entry.insertedAt) <= c.cfg.GlobalTTL {
			observability.CacheHits.WithLabelValues("query_global").Inc()
			return entry.result, true
		}
		delete(c.global, key)
	}
	observability.CacheMisses.WithLabelValues("query_global").Inc()
	return nil, false
}

// Set writes the result to the global scope and, when a session id is
// given, to that session's scope. Every paper is also offered to the
// paper cache.
func (c *QueryCache) Set(query string, opts paper.SearchOptions, sessionID string, result *QueryResult) {
	if result == nil {
		return
	}
	key := queryKey(query, opts)
	entry := &queryEntry{result: result, insertedAt: time.Now()}

	c.mu.Lock()
	if len(c.global) >= c.cfg.MaxEntries {
		c.evictOldestGlobalLocked()
	}
	c.global[key] = entry

	if sessionID != "" {
		scope, ok := c.sessions[sessionID]
		if !ok {
			scope = make(map[string]*queryEntry)
			c.sessions[sessionID] = scope
		}
		scope[key] = entry
	}
	c.mu.Unlock()

	if c.papers != nil {
		for _, p := range result.Papers {
			c.papers.Set(p)
		}
	}
}

func (c *QueryCache) evictOldestGlobalLocked() {
	var victim string
	var oldest time.Time
	first := true
	for key, entry := range c.global {
		if first || entry.insertedAt.Before(oldest) {
			victim, oldest, first = key, entry.insertedAt, false
		}
	}
	if victim != "" {
		delete(c.global, victim)
	}
}

// ReleaseSession drops a session's private scope.
func (c *QueryCache) ReleaseSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
}

// Len reports the global entry count.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.global)
}
