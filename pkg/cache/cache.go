// Package cache provides the offline cache: directory listings recorded on
// every successful remote fetch, and file blobs downloaded for offline use.
//
// Cached data does not expire. A listing is replaced only by a newer listing
// of the same path; a blob is replaced only by a re-download or removed by
// the eviction policy. Indexes persist across restarts.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sharedeck/sharedeck/internal/metrics"
	"github.com/sharedeck/sharedeck/pkg/kv"
	"github.com/sharedeck/sharedeck/pkg/models"
)

const (
	listingsScope = "listings"
	blobsScope    = "blobs"
)

var (
	// ErrNoListing is returned when no cached listing exists for a path.
	ErrNoListing = errors.New("cache: no listing")

	// ErrNotCached is returned when no cached blob exists for a path.
	ErrNotCached = errors.New("cache: not cached")
)

// Key scopes a remote path by its endpoint address so identical paths on
// different servers stay distinct.
func Key(addr, remotePath string) string {
	return addr + "::" + remotePath
}

// Listing is a cached directory snapshot with its capture time.
type Listing struct {
	Entries  []models.FileEntry `json:"entries"`
	CachedAt time.Time          `json:"cached_at"`
}

// BlobEntry describes one cached file blob.
type BlobEntry struct {
	Key        string    `json:"key"`
	File       string    `json:"file"` // name within the blob directory
	Size       int64     `json:"size"`
	CachedAt   time.Time `json:"cached_at"`
	LastAccess time.Time `json:"last_access"`
}

// EvictionPolicy decides which blobs to drop after the cache grows.
type EvictionPolicy interface {
	// Victims returns the keys of blobs to evict, given every current
	// entry and the total blob size in bytes.
	Victims(entries []BlobEntry, total int64) []string
}

// LRU evicts least-recently-accessed blobs until the total size is at or
// under MaxBytes.
type LRU struct {
	MaxBytes int64
}

// Victims implements EvictionPolicy.
func (p LRU) Victims(entries []BlobEntry, total int64) []string {
	if total <= p.MaxBytes {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.Before(entries[j].LastAccess)
	})
	var victims []string
	for _, e := range entries {
		if total <= p.MaxBytes {
			break
		}
		victims = append(victims, e.Key)
		total -= e.Size
	}
	return victims
}

// Cache stores listings and blobs for offline use.
type Cache struct {
	dir      string
	listings kv.Store
	blobs    kv.Store
	policy   EvictionPolicy

	mu      sync.Mutex
	entries map[string]*BlobEntry
	size    int64
}

// New opens the cache rooted at dir, persisting its indexes in db. A nil
// policy keeps every blob.
func New(dir string, db kv.DB, policy EvictionPolicy) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	listings, err := db.Store(listingsScope)
	if err != nil {
		return nil, fmt.Errorf("open listings index: %w", err)
	}
	blobs, err := db.Store(blobsScope)
	if err != nil {
		return nil, fmt.Errorf("open blob index: %w", err)
	}

	c := &Cache{
		dir:      dir,
		listings: listings,
		blobs:    blobs,
		policy:   policy,
		entries:  make(map[string]*BlobEntry),
	}
	if err := c.loadIndex(); err != nil {
		return nil, err
	}
	metrics.SetCacheBlobBytes(c.size)
	return c, nil
}

// loadIndex restores the blob index, dropping entries whose file vanished
// or whose record no longer decodes.
func (c *Cache) loadIndex() error {
	keys, err := c.blobs.Keys()
	if err != nil {
		return fmt.Errorf("load blob index: %w", err)
	}
	for _, k := range keys {
		raw, ok, err := c.blobs.Get(k)
		if err != nil {
			return fmt.Errorf("load blob entry %s: %w", k, err)
		}
		if !ok {
			continue
		}
		var e BlobEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			c.blobs.Delete(k)
			continue
		}
		if _, err := os.Stat(filepath.Join(c.dir, e.File)); err != nil {
			c.blobs.Delete(k)
			continue
		}
		c.entries[e.Key] = &e
		c.size += e.Size
	}
	return nil
}

// RecordListing overwrites the cached listing for key with a fresh snapshot.
func (c *Cache) RecordListing(key string, entries []models.FileEntry) error {
	raw, err := json.Marshal(Listing{Entries: entries, CachedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("encode listing: %w", err)
	}
	if err := c.listings.Put(key, raw); err != nil {
		return fmt.Errorf("store listing for %s: %w", key, err)
	}
	return nil
}

// Listing returns the cached listing for key, or ErrNoListing.
func (c *Cache) Listing(key string) (Listing, error) {
	raw, ok, err := c.listings.Get(key)
	if err != nil {
		return Listing{}, fmt.Errorf("load listing for %s: %w", key, err)
	}
	if !ok {
		metrics.RecordCacheMiss()
		return Listing{}, ErrNoListing
	}
	var l Listing
	if err := json.Unmarshal(raw, &l); err != nil {
		return Listing{}, fmt.Errorf("decode listing for %s: %w", key, err)
	}
	metrics.RecordCacheHit()
	return l, nil
}

// CacheFile downloads src to the blob store under key and returns the local
// path. The blob is committed atomically: a failed or cancelled download
// leaves no partial entry.
func (c *Cache) CacheFile(ctx context.Context, key string, src io.Reader) (string, error) {
	name := blobName(key)
	dest := filepath.Join(c.dir, name)
	tmp := dest + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	written, err := io.Copy(f, &ctxReader{ctx: ctx, r: src})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("download %s: %w", key, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("commit blob: %w", err)
	}

	now := time.Now()
	entry := &BlobEntry{Key: key, File: name, Size: written, CachedAt: now, LastAccess: now}

	c.mu.Lock()
	if old, ok := c.entries[key]; ok {
		c.size -= old.Size
	}
	c.entries[key] = entry
	c.size += written
	if err := c.persistEntry(entry); err != nil {
		c.mu.Unlock()
		return "", err
	}
	c.evict()
	size := c.size
	c.mu.Unlock()

	metrics.AddBytesDownloaded(written)
	metrics.SetCacheBlobBytes(size)
	return dest, nil
}

// PlayableBlob returns the local path of the cached blob for key, or
// ErrNotCached. Callers prefer the blob over remote access even when online.
func (c *Cache) PlayableBlob(key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		metrics.RecordCacheMiss()
		return "", ErrNotCached
	}
	e.LastAccess = time.Now()
	// Access time is best effort; a failed index write must not fail reads.
	_ = c.persistEntry(e)
	metrics.RecordCacheHit()
	return filepath.Join(c.dir, e.File), nil
}

// HasBlob reports whether a blob exists for key without touching its access
// time.
func (c *Cache) HasBlob(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Remove drops the cached blob for key, if any.
func (c *Cache) Remove(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	if err := os.Remove(filepath.Join(c.dir, e.File)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob: %w", err)
	}
	if err := c.blobs.Delete(e.Key); err != nil {
		return fmt.Errorf("remove blob entry: %w", err)
	}
	c.size -= e.Size
	delete(c.entries, e.Key)
	metrics.SetCacheBlobBytes(c.size)
	return nil
}

// Clear removes every cached blob and listing.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.entries {
		os.Remove(filepath.Join(c.dir, e.File))
		if err := c.blobs.Delete(key); err != nil {
			return fmt.Errorf("clear blob entry: %w", err)
		}
		c.size -= e.Size
		delete(c.entries, key)
	}

	keys, err := c.listings.Keys()
	if err != nil {
		return fmt.Errorf("list listings: %w", err)
	}
	for _, k := range keys {
		if err := c.listings.Delete(k); err != nil {
			return fmt.Errorf("clear listing: %w", err)
		}
	}

	metrics.SetCacheBlobBytes(c.size)
	return nil
}

// Stats returns total blob bytes and blob count.
func (c *Cache) Stats() (size int64, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size, len(c.entries)
}

// evict applies the eviction policy. Must be called with the lock held.
func (c *Cache) evict() {
	if c.policy == nil {
		return
	}
	snapshot := make([]BlobEntry, 0, len(c.entries))
	for _, e := range c.entries {
		snapshot = append(snapshot, *e)
	}
	for _, key := range c.policy.Victims(snapshot, c.size) {
		e, ok := c.entries[key]
		if !ok {
			continue
		}
		os.Remove(filepath.Join(c.dir, e.File))
		c.blobs.Delete(key)
		c.size -= e.Size
		delete(c.entries, key)
	}
}

// persistEntry writes e to the blob index. Must be called with the lock held.
func (c *Cache) persistEntry(e *BlobEntry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode blob entry: %w", err)
	}
	if err := c.blobs.Put(e.Key, raw); err != nil {
		return fmt.Errorf("store blob entry: %w", err)
	}
	return nil
}

// blobName derives the on-disk file name for a cache key: a digest of the
// key plus the original extension, so players can sniff the content type.
func blobName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]) + strings.ToLower(path.Ext(key))
}

// ctxReader aborts a copy when its context is cancelled, covering source
// readers that do not honor cancellation themselves.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
