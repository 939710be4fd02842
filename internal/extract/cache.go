package extract

import (
	"context"
	"log"
	"sync"
	"time"

	"docsieve/internal/domain"
	"docsieve/internal/port"
)

const (
	// cacheTTL is the server-side lifetime requested for every cache. Expiry
	// is discovered reactively on use; no timer runs in-process.
	cacheTTL = time.Hour

	// minCacheTokens is the provider's minimum cacheable size. Instructions
	// estimated below it are sent uncached on every call.
	minCacheTokens = 1024
)

// estimateTokens approximates the provider tokenizer at four bytes per token.
func estimateTokens(s string) int {
	return len(s) / 4
}

type cacheEntry struct {
	mu   sync.Mutex
	name string
}

// CacheManager owns one server-side prompt-cache handle per cache domain.
// All handle mutation goes through a per-domain mutex with a
// check-lock-recheck pattern so concurrent first use creates exactly one
// cache, and unrelated domains never serialize on each other.
type CacheManager struct {
	cache port.PromptCache
	model string

	mu      sync.Mutex
	domains map[domain.CacheDomain]*cacheEntry
}

// NewCacheManager creates a CacheManager for the given model.
func NewCacheManager(cache port.PromptCache, model string) *CacheManager {
	return &CacheManager{
		cache:   cache,
		model:   model,
		domains: make(map[domain.CacheDomain]*cacheEntry),
	}
}

func (m *CacheManager) entry(d domain.CacheDomain) *cacheEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.domains[d]
	if !ok {
		e = &cacheEntry{}
		m.domains[d] = e
	}
	return e
}

// GetOrCreate returns the cache name for the domain, creating the server-side
// resource on first use. It returns "" (and no error) when the domain's
// system instruction is too small for the provider to cache.
func (m *CacheManager) GetOrCreate(ctx context.Context, d domain.CacheDomain) (string, error) {
	instruction := SystemInstructionFor(d)
	if estimateTokens(instruction) < minCacheTokens {
		return "", nil
	}

	e := m.entry(d)

	e.mu.Lock()
	observed := e.name
	e.mu.Unlock()

	if observed != "" {
		if err := m.cache.Probe(ctx, observed); err == nil {
			return observed, nil
		}
		log.Printf("cacheManager.GetOrCreate: probe failed for %s cache %q, recreating", d, observed)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Recheck under the lock: another goroutine may have created or
	// recreated the handle while we waited.
	if e.name != "" && e.name != observed {
		return e.name, nil
	}

	name, err := m.cache.Create(ctx, m.model, instruction, "docsieve-"+string(d), cacheTTL)
	if err != nil {
		return "", err
	}
	log.Printf("cacheManager.GetOrCreate: created %s cache %q (ttl %s)", d, name, cacheTTL)
	e.name = name
	return name, nil
}

// Invalidate clears the stored handle for the domain. Called when the
// provider reports the cache as expired or missing; the next GetOrCreate
// recreates it.
func (m *CacheManager) Invalidate(d domain.CacheDomain) {
	e := m.entry(d)
	e.mu.Lock()
	e.name = ""
	e.mu.Unlock()
}
