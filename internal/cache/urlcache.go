// Package cache keeps resolved blob download URLs around for a short while.
// Signed URLs expire, so entries age out instead of living forever.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/musicvault/musicvault/internal/constants"
)

// URLCache maps asset names to their last resolved download URL.
type URLCache struct {
	lru *expirable.LRU[string, string]
}

// NewURLCache builds a cache holding at most size entries for ttl each.
// Zero values fall back to the defaults.
func NewURLCache(size int, ttl time.Duration) *URLCache {
	if size <= 0 {
		size = constants.DefaultURLCacheSize
	}
	if ttl <= 0 {
		ttl = constants.DefaultURLCacheTTL
	}
	return &URLCache{
		lru: expirable.NewLRU[string, string](size, nil, ttl),
	}
}

// Get returns the cached URL for an asset, if still fresh.
func (c *URLCache) Get(assetName string) (string, bool) {
	return c.lru.Get(assetName)
}

// Set stores the URL for an asset.
func (c *URLCache) Set(assetName, url string) {
	c.lru.Add(assetName, url)
}

// Remove drops the entry for an asset.
func (c *URLCache) Remove(assetName string) {
	c.lru.Remove(assetName)
}

// Clear drops everything.
func (c *URLCache) Clear() {
	c.lru.Purge()
}
