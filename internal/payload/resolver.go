// Package payload resolves a job's payload reference to its extracted
// document text: a bounded in-memory cache is authoritative on hit, and
// falls through to the external document store (consumed only through the
// DocumentStore contract) on miss.
package payload

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DocumentStore is the external contract this service consumes to fetch a
// payload's raw extracted text. Parsing the original upload (PDF/DOCX) is
// explicitly out of scope — this interface is the boundary.
type DocumentStore interface {
	FetchText(ctx context.Context, payloadRef string) (string, error)
}

// Cache is a bounded, TTL-expiring in-memory cache of payload text,
// authoritative on hit per the spec's payload-reference model.
type Cache struct {
	lru *lru.LRU[string, string]
}

// NewCache builds a Cache with the given capacity and per-entry TTL.
func NewCache(size int, ttl time.Duration) *Cache {
	return &Cache{lru: lru.NewLRU[string, string](size, nil, ttl)}
}

// Get returns the cached text for ref, if present and unexpired.
func (c *Cache) Get(ref string) (string, bool) {
	return c.lru.Get(ref)
}

// Put stores text for ref.
func (c *Cache) Put(ref, text string) {
	c.lru.Add(ref, text)
}

// Flush empties the cache. Used by the Cleanup Orchestrator's emergency
// sweep when the Pressure Sensor signals onset.
func (c *Cache) Flush() {
	c.lru.Purge()
}

// Resolver hydrates a payload reference into document text: cache first,
// document store on miss.
type Resolver struct {
	cache *Cache
	docs  DocumentStore
}

// NewResolver builds a Resolver.
func NewResolver(cache *Cache, docs DocumentStore) *Resolver {
	return &Resolver{cache: cache, docs: docs}
}

// Resolve returns the document text for ref, populating the cache on miss.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	if text, ok := r.cache.Get(ref); ok {
		return text, nil
	}

	text, err := r.docs.FetchText(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("fetching payload text for %s: %w", ref, err)
	}

	r.cache.Put(ref, text)
	return text, nil
}
