package cache

import (
	"fmt"
	"sync/atomic"

	"github.com/tidwall/buntdb"
)

// indexLastAccessed is the buntdb secondary index name ordering entries by
// LastAccessedAt, giving O(log n) access to the least-recently-used entry
// without a separate linked-list or heap structure.
const indexLastAccessed = "last_accessed"

// CacheIndex is the in-memory index of cache entries (spec §4.7). It is
// backed by an in-memory buntdb database: buntdb gives us a sorted
// secondary index for free, which is exactly what LRU eviction needs. The
// database is opened as ":memory:", so buntdb never writes a file of its
// own; s3sentry does its own atomic file writes through DiskBackend.
type CacheIndex struct {
	db        *buntdb.DB
	totalSize atomic.Int64
	count     atomic.Int64
}

// NewCacheIndex opens a fresh in-memory index.
func NewCacheIndex() (*CacheIndex, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, err
	}
	if err := db.CreateIndex(indexLastAccessed, "*", buntdb.IndexJSON("last_accessed_at")); err != nil {
		db.Close()
		return nil, err
	}
	return &CacheIndex{db: db}, nil
}

// Put inserts or replaces an entry's metadata.
func (idx *CacheIndex) Put(m Metadata) error {
	data, err := marshalMetadata(m)
	if err != nil {
		return err
	}
	var prevSize int64
	var hadPrev bool
	err = idx.db.Update(func(tx *buntdb.Tx) error {
		if prev, err := tx.Get(m.Key.Hash()); err == nil {
			if pm, perr := unmarshalMetadata(prev); perr == nil {
				prevSize = pm.SizeBytes
				hadPrev = true
			}
		}
		_, _, err := tx.Set(m.Key.Hash(), string(data), nil)
		return err
	})
	if err != nil {
		return err
	}
	if hadPrev {
		idx.totalSize.Add(m.SizeBytes - prevSize)
	} else {
		idx.totalSize.Add(m.SizeBytes)
		idx.count.Add(1)
	}
	return nil
}

// Get returns the metadata for a key hash, if present.
func (idx *CacheIndex) Get(hash string) (Metadata, bool, error) {
	var m Metadata
	found := false
	err := idx.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(hash)
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		parsed, err := unmarshalMetadata(v)
		if err != nil {
			return err
		}
		m = parsed
		found = true
		return nil
	})
	return m, found, err
}

// Touch updates LastAccessedAt in place, re-positioning the entry in the
// last_accessed secondary index.
func (idx *CacheIndex) Touch(hash string, newLastAccessed int64) error {
	return idx.db.Update(func(tx *buntdb.Tx) error {
		v, err := tx.Get(hash)
		if err != nil {
			return err
		}
		m, err := unmarshalMetadata(v)
		if err != nil {
			return err
		}
		m.LastAccessedAt = newLastAccessed
		data, err := marshalMetadata(m)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(hash, string(data), nil)
		return err
	})
}

// Delete removes an entry and decrements totalSize/count. Missing keys are
// not an error.
func (idx *CacheIndex) Delete(hash string) error {
	var removedSize int64
	var removed bool
	err := idx.db.Update(func(tx *buntdb.Tx) error {
		v, err := tx.Delete(hash)
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		m, perr := unmarshalMetadata(v)
		if perr == nil {
			removedSize = m.SizeBytes
			removed = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	if removed {
		idx.totalSize.Add(-removedSize)
		idx.count.Add(-1)
	}
	return nil
}

// LeastRecentlyUsed returns up to n entries ordered oldest-access-first,
// for eviction.
func (idx *CacheIndex) LeastRecentlyUsed(n int) ([]Metadata, error) {
	var out []Metadata
	err := idx.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend(indexLastAccessed, func(key, value string) bool {
			m, err := unmarshalMetadata(value)
			if err != nil {
				return true
			}
			out = append(out, m)
			return len(out) < n
		})
	})
	return out, err
}

// ForEachBucket visits every entry belonging to bucket, for ClearBucket/Stats.
func (idx *CacheIndex) ForEachBucket(bucket string, fn func(Metadata) bool) error {
	return idx.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, value string) bool {
			m, err := unmarshalMetadata(value)
			if err != nil {
				return true
			}
			if m.Key.Bucket != bucket {
				return true
			}
			return fn(m)
		})
	})
}

// Snapshot returns every entry currently in the index, for periodic
// persistence to index.json (spec §4.7).
func (idx *CacheIndex) Snapshot() ([]Metadata, error) {
	var out []Metadata
	err := idx.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, value string) bool {
			m, err := unmarshalMetadata(value)
			if err != nil {
				return true
			}
			out = append(out, m)
			return true
		})
	})
	return out, err
}

// LoadSnapshot bulk-populates the index from a previously persisted
// index.json, used by ValidateAndRepair's "non-empty index" recovery path
// (spec §4.7 step 3) instead of re-parsing every <hash>.meta file.
func (idx *CacheIndex) LoadSnapshot(entries []Metadata) error {
	for _, m := range entries {
		if err := idx.Put(m); err != nil {
			return err
		}
	}
	return nil
}

// TotalSize returns the current aggregate cached byte count, lock-free.
func (idx *CacheIndex) TotalSize() int64 { return idx.totalSize.Load() }

// Count returns the current number of entries, lock-free.
func (idx *CacheIndex) Count() int64 { return idx.count.Load() }

// Close releases the in-memory database.
func (idx *CacheIndex) Close() error { return idx.db.Close() }

func marshalMetadata(m Metadata) ([]byte, error) {
	data, err := jsonMarshal(m)
	if err != nil {
		return nil, fmt.Errorf("cache: marshal metadata: %w", err)
	}
	return data, nil
}

func unmarshalMetadata(s string) (Metadata, error) {
	var m Metadata
	if err := jsonUnmarshal([]byte(s), &m); err != nil {
		return Metadata{}, fmt.Errorf("cache: unmarshal metadata: %w", err)
	}
	return m, nil
}
