package cache

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config holds the cache's tunable limits (mirrors config.CacheConfig,
// kept separate so this package has no dependency on internal/config).
type Config struct {
	RootDir     string
	MaxSizeBytes int64
	DefaultTTL   time.Duration
}

// DiskCache is the full cache (spec §4.7): each entry lives as a pair of
// files under RootDir/entries, sharded by the first two hex characters of
// the key hash to keep any one directory from growing unbounded; an
// in-memory CacheIndex tracks metadata and drives LRU eviction.
type DiskCache struct {
	cfg     Config
	backend DiskBackend
	index   *CacheIndex
}

// Open constructs a cache, creating RootDir if needed. Callers should run
// ValidateAndRepair once at startup before serving traffic.
func Open(cfg Config, backend DiskBackend) (*DiskCache, error) {
	if err := backend.CreateDirAll(cfg.RootDir); err != nil {
		return nil, fmt.Errorf("cache: create root dir: %w", err)
	}
	idx, err := NewCacheIndex()
	if err != nil {
		return nil, err
	}
	return &DiskCache{cfg: cfg, backend: backend, index: idx}, nil
}

// entriesDir is the parent of every shard directory (spec §4.7 layout:
// cache_dir/entries/<hash>.{data,meta}).
func (c *DiskCache) entriesDir() string {
	return filepath.Join(c.cfg.RootDir, "entries")
}

func (c *DiskCache) shardDir(hash string) string {
	return filepath.Join(c.entriesDir(), hash[:2])
}

// dataPath and metaPath are the two files persisted per entry: the raw
// bytes and the JSON-serialized Metadata, so ValidateAndRepair can
// reconstruct the real CacheKey after a restart even when no index.json
// snapshot was saved.
func (c *DiskCache) dataPath(hash string) string {
	return filepath.Join(c.shardDir(hash), hash+".data")
}

func (c *DiskCache) metaPath(hash string) string {
	return filepath.Join(c.shardDir(hash), hash+".meta")
}

// indexPath is the optional periodic index snapshot (spec §4.7).
func (c *DiskCache) indexPath() string {
	return filepath.Join(c.cfg.RootDir, "index.json")
}

// Get returns the cached entry for key if present and not expired. An
// expired entry is removed (index first, then its files) and reported as a
// miss. A hit bumps the entry's LastAccessedAt in the index.
func (c *DiskCache) Get(key Key) (Entry, bool, error) {
	hash := key.Hash()
	m, found, err := c.index.Get(hash)
	if err != nil {
		return Entry{}, false, err
	}
	if !found {
		return Entry{}, false, nil
	}
	if m.Expired(time.Now()) {
		if err := c.evict(m); err != nil {
			return Entry{}, false, err
		}
		return Entry{}, false, nil
	}
	body, err := c.backend.ReadFile(m.FilePath)
	if err != nil {
		return Entry{}, false, err
	}
	now := time.Now().Unix()
	if err := c.index.Touch(hash, now); err != nil {
		return Entry{}, false, err
	}
	m.LastAccessedAt = now
	return Entry{Metadata: m, Body: body}, true, nil
}

// Set writes a new entry to disk and registers it in the index, evicting
// LRU entries first if the write would exceed MaxSizeBytes. Per spec §4.7's
// atomicity contract, the data file lands on stable storage before the
// meta file, which lands before the index is updated — a crash between
// any two steps leaves at most an orphan file, never a misleading index
// entry, and ValidateAndRepair cleans up whatever was left behind.
func (c *DiskCache) Set(key Key, body []byte, contentType, etag string, lastModified *int64, ttl time.Duration) error {
	hash := key.Hash()
	dataPath := c.dataPath(hash)
	metaPath := c.metaPath(hash)
	if err := c.backend.CreateDirAll(c.shardDir(hash)); err != nil {
		return fmt.Errorf("cache: create shard dir: %w", err)
	}

	if err := c.ensureRoom(int64(len(body))); err != nil {
		return err
	}

	if err := c.backend.WriteFileAtomic(dataPath, body); err != nil {
		return fmt.Errorf("cache: write entry data: %w", err)
	}

	now := time.Now()
	effectiveTTL := ttl
	if effectiveTTL == 0 {
		effectiveTTL = c.cfg.DefaultTTL
	}
	var expiresAt int64
	if effectiveTTL > 0 {
		expiresAt = now.Add(effectiveTTL).Unix()
	}

	m := Metadata{
		Key:            key,
		FilePath:       dataPath,
		SizeBytes:      int64(len(body)),
		CreatedAt:      now.Unix(),
		ExpiresAt:      expiresAt,
		LastAccessedAt: now.Unix(),
		ContentType:    contentType,
		ETag:           etag,
		LastModified:   lastModified,
	}

	metaBytes, err := marshalMetadata(m)
	if err != nil {
		return err
	}
	if err := c.backend.WriteFileAtomic(metaPath, metaBytes); err != nil {
		return fmt.Errorf("cache: write entry meta: %w", err)
	}

	return c.index.Put(m)
}

// ensureRoom evicts least-recently-used entries until adding incoming bytes
// would not exceed MaxSizeBytes (spec §4.7 eviction policy).
func (c *DiskCache) ensureRoom(incoming int64) error {
	if c.cfg.MaxSizeBytes <= 0 {
		return nil
	}
	for c.index.TotalSize()+incoming > c.cfg.MaxSizeBytes {
		victims, err := c.index.LeastRecentlyUsed(1)
		if err != nil {
			return err
		}
		if len(victims) == 0 {
			return nil // index empty, nothing left to evict
		}
		if err := c.evict(victims[0]); err != nil {
			return err
		}
	}
	return nil
}

// evict removes an entry. Per spec §4.7 the index is authoritative:
// it is dropped first, then both files are best-effort removed so a
// failure to unlink one never leaves the index pointing at a half-deleted
// entry (ValidateAndRepair reaps any file an evicted index no longer
// references).
func (c *DiskCache) evict(m Metadata) error {
	hash := m.Key.Hash()
	if err := c.index.Delete(hash); err != nil {
		return err
	}
	c.backend.DeleteFile(c.dataPath(hash))
	c.backend.DeleteFile(c.metaPath(hash))
	return nil
}

// Delete removes a single entry, if present.
func (c *DiskCache) Delete(key Key) error {
	hash := key.Hash()
	m, found, err := c.index.Get(hash)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	return c.evict(m)
}

// Clear removes every entry in the cache.
func (c *DiskCache) Clear() error {
	all, err := c.index.LeastRecentlyUsed(int(c.index.Count()))
	if err != nil {
		return err
	}
	for _, m := range all {
		if err := c.evict(m); err != nil {
			return err
		}
	}
	return nil
}

// ClearBucket removes every entry belonging to a single bucket.
func (c *DiskCache) ClearBucket(bucket string) error {
	var victims []Metadata
	err := c.index.ForEachBucket(bucket, func(m Metadata) bool {
		victims = append(victims, m)
		return true
	})
	if err != nil {
		return err
	}
	for _, m := range victims {
		if err := c.evict(m); err != nil {
			return err
		}
	}
	return nil
}

// Stats is the aggregate cache size/count snapshot for /admin and /metrics.
type Stats struct {
	EntryCount int64
	TotalBytes int64
}

// Stats returns the overall cache occupancy.
func (c *DiskCache) Stats() Stats {
	return Stats{EntryCount: c.index.Count(), TotalBytes: c.index.TotalSize()}
}

// StatsBucket returns occupancy for a single bucket. It scans the index
// since per-bucket totals are not separately tracked; admin endpoints are
// not on the request hot path so this is an acceptable cost.
func (c *DiskCache) StatsBucket(bucket string) (Stats, error) {
	var st Stats
	err := c.index.ForEachBucket(bucket, func(m Metadata) bool {
		st.EntryCount++
		st.TotalBytes += m.SizeBytes
		return true
	})
	return st, err
}

// SaveIndexSnapshot writes the optional periodic index.json (spec §4.7),
// letting a subsequent ValidateAndRepair skip a full per-entry meta parse
// and instead reconcile the filesystem against this snapshot. Safe to call
// periodically or on shutdown; a missing or stale index.json just means
// recovery falls back to scanning every <hash>.meta file.
func (c *DiskCache) SaveIndexSnapshot() error {
	entries, err := c.index.Snapshot()
	if err != nil {
		return err
	}
	data, err := jsonMarshal(entries)
	if err != nil {
		return fmt.Errorf("cache: marshal index snapshot: %w", err)
	}
	if err := c.backend.WriteFileAtomic(c.indexPath(), data); err != nil {
		return fmt.Errorf("cache: write index snapshot: %w", err)
	}
	return nil
}

// Close persists a final index snapshot and releases the in-memory index.
func (c *DiskCache) Close() error {
	if err := c.SaveIndexSnapshot(); err != nil {
		return err
	}
	return c.index.Close()
}
