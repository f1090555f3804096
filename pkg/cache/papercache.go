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

// Package cache holds the two process-wide caches of the retrieval
// layer: the per-record paper cache and the per-query result cache.
// Both are shared across sessions and safe for concurrent use.
package cache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/kadirpekel/deepquest/pkg/observability"
	"github.com/kadirpekel/deepquest/pkg/paper"
)

// availabilityWeight makes high-availability records sticky under
// eviction when PreferHigherAvailability is set.
const availabilityWeight = 100000

// accessWeight rewards frequently-touched records.
const accessWeight = 10000

// PaperCacheConfig configures a PaperCache.
type PaperCacheConfig struct {
	MaxEntries              int
	TTL                     time.Duration
	CleanupInterval         time.Duration
	PreferHigherAvailability bool
}

type paperEntry struct {
	paper       *paper.Paper
	insertedAt  time.Time
	lastAccess  time.Time
	accessCount int
}

// PaperCacheStats is a point-in-time snapshot of cache behaviour.
type PaperCacheStats struct {
	Entries        int            `json:"entries"`
	Hits           int64          `json:"hits"`
	Misses         int64          `json:"misses"`
	Evictions      int64          `json:"evictions"`
	Expired        int64          `json:"expired"`
	BySource       map[string]int `json:"by_source"`
	ByAvailability map[string]int `json:"by_availability"`
	MemoryEstimate int64          `json:"memory_estimate_bytes"`
}

// PaperCache is a LRU+TTL cache of canonical paper records keyed by
// paper id. Higher-availability records dominate lower ones on Set, and
// Update merges partial records across sources.
type PaperCache struct {
	mu      sync.Mutex
	entries map[string]*paperEntry
	cfg     PaperCacheConfig

	hits      int64
	misses    int64
	evictions int64
	expired   int64

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewPaperCache creates a paper cache and starts its background sweep
// when a cleanup interval is configured. Close stops the sweep.
func NewPaperCache(cfg PaperCacheConfig) *PaperCache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 2000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	c := &PaperCache{
		entries: make(map[string]*paperEntry),
		cfg:     cfg,
		stopCh:  make(chan struct{}),
	}
	if cfg.CleanupInterval > 0 {
		go c.sweepLoop()
	}
	return c
}

// Get returns the cached record, treating expired entries as absent.
func (c *PaperCache) Get(id string) (*paper.Paper, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		c.misses++
		observability.CacheMisses.WithLabelValues("paper").Inc()
		return nil, false
	}
	if time.Since(entry.insertedAt) > c.cfg.TTL {
		delete(c.entries, id)
		c.expired++
		c.misses++
		observability.CacheMisses.WithLabelValues("paper").Inc()
		return nil, false
	}
	entry.lastAccess = time.Now()
	entry.accessCount++
	c.hits++
	observability.CacheHits.WithLabelValues("paper").Inc()
	return entry.paper, true
}

// Set inserts a record. An existing entry with greater or equal
// availability wins over the incoming record; its access counters are
// refreshed instead. A strictly stronger incoming record replaces the
// entry.
func (c *PaperCache) Set(p *paper.Paper) {
	if p == nil {
		return
	}
	id := paper.CanonicalID(p)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if entry, ok := c.entries[id]; ok {
		if entry.paper.Availability >= p.Availability {
			entry.lastAccess = now
			entry.accessCount++
			return
		}
		entry.paper = p
		entry.insertedAt = now
		entry.lastAccess = now
		entry.accessCount++
		return
	}

	if len(c.entries) >= c.cfg.MaxEntries {
		c.evictOneLocked()
	}
	c.entries[id] = &paperEntry{paper: p, insertedAt: now, lastAccess: now, accessCount: 1}
}

// Update merges the incoming record into an existing entry, or inserts
// it when absent. Returns the record now held for the id.
func (c *PaperCache) Update(p *paper.Paper) *paper.Paper {
	if p == nil {
		return nil
	}
	id := paper.CanonicalID(p)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entry, ok := c.entries[id]
	if !ok {
		if len(c.entries) >= c.cfg.MaxEntries {
			c.evictOneLocked()
		}
		c.entries[id] = &paperEntry{paper: p, insertedAt: now, lastAccess: now, accessCount: 1}
		return p
	}

	merged := paper.Merge(entry.paper, p)
	entry.paper = merged
	entry.lastAccess = now
	entry.accessCount++
	return merged
}

// evictOneLocked drops the entry with the lowest composite score.
func (c *PaperCache) evictOneLocked() {
	var victim string
	var victimScore float64
	first := true

	for id, entry := range c.entries {
		score := float64(entry.lastAccess.Unix()) + accessWeight*float64(entry.accessCount)
		if c.cfg.PreferHigherAvailability {
			score += availabilityWeight * float64(entry.paper.Availability)
		}
		if first || score < victimScore {
			victim, victimScore, first = id, score, false
		}
	}
	if victim != "" {
		delete(c.entries, victim)
		c.evictions++
	}
}

// Cleanup removes every expired entry and reports how many were
// dropped. The background sweep calls this on its tick; callers may run
// it opportunistically.
func (c *PaperCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := time.Now()
	for id, entry := range c.entries {
		if now.Sub(entry.insertedAt) > c.cfg.TTL {
			delete(c.entries, id)
			removed++
		}
	}
	c.expired += int64(removed)
	return removed
}

func (c *PaperCache) sweepLoop() {
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if removed := c.Cleanup(); removed > 0 {
				slog.Debug("paper cache sweep", "removed", removed)
			}
		case <-c.stopCh:
			return
		}
	}
}

// Close stops the background sweep. Idempotent.
func (c *PaperCache) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Stats snapshots totals, hit/miss counts and per-source and
// per-availability histograms, plus a rough memory estimate.
func (c *PaperCache) Stats() PaperCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := PaperCacheStats{
		Entries:        len(c.entries),
		Hits:           c.hits,
		Misses:         c.misses,
		Evictions:      c.evictions,
		Expired:        c.expired,
		BySource:       make(map[string]int),
		ByAvailability: make(map[string]int),
	}
	for _, entry := range c.entries {
		p := entry.paper
		for _, src := range p.SourceOrigin {
			stats.BySource[src]++
		}
		stats.ByAvailability[p.Availability.String()]++
		stats.MemoryEstimate += int64(len(p.Title) + len(p.Abstract) + len(p.FullText) + 256)
	}
	return stats
}
