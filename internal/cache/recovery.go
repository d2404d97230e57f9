package cache

import (
	"path/filepath"
	"strings"
	"time"
)

const (
	dataSuffix = ".data"
	metaSuffix = ".meta"
)

// ValidateAndRepair scans RootDir on startup and reconciles the on-disk
// entry files with the in-memory index (spec §4.7 crash recovery,
// testable invariant 2). Two shapes are handled:
//
//   - index.json present and parseable: load it, then reconcile against
//     the filesystem — delete orphan files the snapshot doesn't reference,
//     drop index entries missing either file, correct size_bytes drift,
//     and drop expired entries (spec §4.7 step 3).
//   - No usable index.json (fresh process, corrupt/missing snapshot): for
//     every hash with both a <hash>.data and a <hash>.meta file, parse the
//     meta and re-register it if not expired (spec §4.7 step 2). This is
//     what makes a restarted process able to serve a Get for the real
//     CacheKey again, not just reclaim disk space under a placeholder key.
//
// Recovery assumes no concurrent writers are touching RootDir; it is meant
// to run once, synchronously, before the cache starts serving requests.
func (c *DiskCache) ValidateAndRepair() (RecoveryReport, error) {
	var report RecoveryReport

	snapshot, snapshotErr := c.loadIndexSnapshot()
	fromSnapshot := snapshotErr == nil && len(snapshot) > 0
	if fromSnapshot {
		if err := c.index.LoadSnapshot(snapshot); err != nil {
			return report, err
		}
	}

	seen := make(map[string]bool, len(snapshot))

	shardDirs, err := c.backend.ReadDir(c.entriesDir())
	if err != nil {
		return report, err
	}

	for _, shard := range shardDirs {
		shardPath := filepath.Join(c.entriesDir(), shard)
		names, err := c.backend.ReadDir(shardPath)
		if err != nil {
			continue // shard may have been a stray non-directory file
		}

		// Every .data/.meta pair a shard holds, keyed by hash.
		hasData := make(map[string]bool, len(names))
		hasMeta := make(map[string]bool, len(names))

		for _, name := range names {
			entryPath := filepath.Join(shardPath, name)

			if strings.HasSuffix(name, ".tmp") {
				if err := c.backend.DeleteFile(entryPath); err == nil {
					report.TmpFilesRemoved++
				}
				continue
			}
			switch {
			case strings.HasSuffix(name, dataSuffix):
				hasData[strings.TrimSuffix(name, dataSuffix)] = true
			case strings.HasSuffix(name, metaSuffix):
				hasMeta[strings.TrimSuffix(name, metaSuffix)] = true
			}
		}

		for hash := range hasData {
			if !hasMeta[hash] {
				// orphan data file with no meta companion: unreadable,
				// reap it.
				c.backend.DeleteFile(c.dataPath(hash))
				continue
			}
			seen[hash] = true

			if fromSnapshot {
				c.reconcileIndexed(hash, &report)
				continue
			}
			c.recoverFromMeta(hash, &report)
		}
		for hash := range hasMeta {
			if !hasData[hash] {
				// meta with no data companion: incomplete write, reap it.
				c.backend.DeleteFile(c.metaPath(hash))
			}
		}
	}

	if fromSnapshot {
		// Drop any snapshot entry whose files are both gone from disk.
		for _, m := range snapshot {
			hash := m.Key.Hash()
			if !seen[hash] {
				c.index.Delete(hash)
			}
		}
	}

	return report, nil
}

// loadIndexSnapshot reads and parses index.json, if present. A missing or
// corrupt snapshot is not an error here: the caller falls back to a full
// per-entry meta scan.
func (c *DiskCache) loadIndexSnapshot() ([]Metadata, error) {
	data, err := c.backend.ReadFile(c.indexPath())
	if err != nil {
		return nil, err
	}
	var entries []Metadata
	if err := jsonUnmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// recoverFromMeta re-registers an index entry from its persisted
// <hash>.meta file, restoring the entry's true CacheKey/content-type/etag
// rather than a placeholder (spec §4.7 step 2).
func (c *DiskCache) recoverFromMeta(hash string, report *RecoveryReport) {
	if _, found, _ := c.index.Get(hash); found {
		report.AlreadyIndexed++
		return
	}

	raw, err := c.backend.ReadFile(c.metaPath(hash))
	if err != nil {
		report.Errors = append(report.Errors, err)
		return
	}
	m, err := unmarshalMetadata(string(raw))
	if err != nil {
		// malformed meta: cannot recover this entry's key, reap both files.
		c.backend.DeleteFile(c.dataPath(hash))
		c.backend.DeleteFile(c.metaPath(hash))
		report.Errors = append(report.Errors, err)
		return
	}

	if m.Expired(time.Now()) {
		c.backend.DeleteFile(c.dataPath(hash))
		c.backend.DeleteFile(c.metaPath(hash))
		return
	}

	if size, err := c.backend.FileSize(c.dataPath(hash)); err == nil {
		m.SizeBytes = size
	}
	m.FilePath = c.dataPath(hash)

	if err := c.index.Put(m); err != nil {
		report.Errors = append(report.Errors, err)
		return
	}
	report.Recovered++
}

// reconcileIndexed checks one filesystem-present hash against an entry
// already loaded from index.json: delete its files if the snapshot does not
// reference it, drop it if expired, correct size_bytes if it drifted from
// what's on disk (spec §4.7 step 3).
func (c *DiskCache) reconcileIndexed(hash string, report *RecoveryReport) {
	m, found, err := c.index.Get(hash)
	if err != nil {
		report.Errors = append(report.Errors, err)
		return
	}
	if !found {
		// orphan: files on disk that the loaded snapshot does not
		// reference; reap both.
		c.backend.DeleteFile(c.dataPath(hash))
		c.backend.DeleteFile(c.metaPath(hash))
		return
	}
	if m.Expired(time.Now()) {
		c.backend.DeleteFile(c.dataPath(hash))
		c.backend.DeleteFile(c.metaPath(hash))
		c.index.Delete(hash)
		return
	}
	size, err := c.backend.FileSize(c.dataPath(hash))
	if err != nil {
		report.Errors = append(report.Errors, err)
		return
	}
	if size != m.SizeBytes {
		m.SizeBytes = size
		if err := c.index.Put(m); err != nil {
			report.Errors = append(report.Errors, err)
			return
		}
	}
	report.AlreadyIndexed++
}

// RecoveryReport summarizes what ValidateAndRepair did, for startup logging.
type RecoveryReport struct {
	Recovered       int
	AlreadyIndexed  int
	TmpFilesRemoved int
	Errors          []error
}
