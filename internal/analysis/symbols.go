package analysis

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/ianlancetaylor/demangle"
)

// symbolCache provides thread-safe caching for demangled names.
type symbolCache struct {
	mu                sync.RWMutex
	demangleCache     map[string]string
	demangledHitCount map[string]int
	cacheEnabled      bool
}

var cache = &symbolCache{
	demangleCache:     make(map[string]string),
	demangledHitCount: make(map[string]int),
	cacheEnabled:      true,
}

// SetDemangleCache turns the demangle cache on or off.
func SetDemangleCache(enabled bool) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.cacheEnabled = enabled
}

// CachedDemangle performs demangling with caching support. Names that are not
// mangled come back unchanged.
func CachedDemangle(mangled string) string {
	cache.mu.RLock()
	if !cache.cacheEnabled {
		cache.mu.RUnlock()
		return demangle.Filter(mangled, demangle.NoClones)
	}
	_, exists := cache.demangleCache[mangled]
	cache.mu.RUnlock()

	if !exists {
		demangled := demangle.Filter(mangled, demangle.NoClones)
		cache.mu.Lock()
		if _, ok := cache.demangleCache[mangled]; !ok {
			cache.demangleCache[mangled] = demangled
			cache.demangledHitCount[mangled] = 0
		}
		cache.mu.Unlock()
	}

	// Hit counts are written under the write lock; the read path above only looks.
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.demangledHitCount[mangled]++
	return cache.demangleCache[mangled]
}

// GetDemangleCacheStats returns statistics about the demangle cache.
func GetDemangleCacheStats() (totalSymbols int, cacheHits int, topSymbols []string) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	totalHits := 0
	for _, count := range cache.demangledHitCount {
		totalHits += count
	}

	type symbolHit struct {
		symbol string
		count  int
	}
	var symbols []symbolHit
	for sym, count := range cache.demangledHitCount {
		symbols = append(symbols, symbolHit{sym, count})
	}
	slices.SortFunc(symbols, func(a, b symbolHit) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return cmp.Compare(a.symbol, b.symbol)
	})

	var top []string
	for i := 0; i < 5 && i < len(symbols); i++ {
		top = append(top, fmt.Sprintf("%s (%d hits)", symbols[i].symbol, symbols[i].count))
	}

	return len(cache.demangleCache), totalHits - len(cache.demangleCache), top
}
