package keyword

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultCacheSize is the extraction cache capacity used when none is given.
const DefaultCacheSize = 100

// cachePrefix bounds how much of the text takes part in the cache key.
const cachePrefix = 256

var (
	extractCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resonance_extract_cache_hits_total",
		Help: "Keyword extraction cache hits.",
	})
	extractCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resonance_extract_cache_misses_total",
		Help: "Keyword extraction cache misses.",
	})
)

type cacheKey struct {
	prefix string
	length int
	max    int
}

func keyFor(text string, max int) cacheKey {
	if max <= 0 {
		max = DefaultMax
	}
	prefix := text
	if len(prefix) > cachePrefix {
		cut := cachePrefix
		// back up to a rune boundary
		for cut > 0 && prefix[cut]&0xC0 == 0x80 {
			cut--
		}
		prefix = prefix[:cut]
	}
	return cacheKey{prefix: prefix, length: len(text), max: max}
}

// CacheStats reports extraction cache usage.
type CacheStats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Entries int    `json:"entries"`
}

// Extractor ranks keywords with a bounded LRU in front of Rank. It is safe for
// concurrent use.
type Extractor struct {
	cache  *lru.Cache[cacheKey, []Candidate]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewExtractor returns an Extractor whose cache holds up to size entries.
func NewExtractor(size int) *Extractor {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, []Candidate](size)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &Extractor{cache: cache}
}

// Rank is the cached form of the package-level Rank. The returned slice is a
// copy the caller may modify.
func (e *Extractor) Rank(text string, max int) []Candidate {
	key := keyFor(text, max)
	if cs, ok := e.cache.Get(key); ok {
		e.hits.Add(1)
		extractCacheHits.Inc()
		return append([]Candidate(nil), cs...)
	}
	e.misses.Add(1)
	extractCacheMisses.Inc()

	cs := Rank(text, key.max)
	e.cache.Add(key, cs)
	return append([]Candidate(nil), cs...)
}

// Extract is the cached form of the package-level Extract.
func (e *Extractor) Extract(text string, max int) []string {
	return Terms(e.Rank(text, max))
}

// Forget purges every cached entry derived from texts, whatever max it was
// extracted with. It returns the number of entries removed.
func (e *Extractor) Forget(texts ...string) int {
	if len(texts) == 0 {
		return 0
	}
	want := make(map[cacheKey]bool, len(texts))
	for _, t := range texts {
		k := keyFor(t, 1)
		k.max = 0
		want[k] = true
	}
	removed := 0
	for _, k := range e.cache.Keys() {
		base := k
		base.max = 0
		if want[base] && e.cache.Remove(k) {
			removed++
		}
	}
	return removed
}

// Purge empties the cache. Counters are kept.
func (e *Extractor) Purge() { e.cache.Purge() }

func (e *Extractor) Stats() CacheStats {
	return CacheStats{Hits: e.hits.Load(), Misses: e.misses.Load(), Entries: e.cache.Len()}
}
