package cache

import (
	"os"
	"testing"
	"time"
)

func openTestCacheAt(t *testing.T, dir string) *DiskCache {
	t.Helper()
	c, err := Open(Config{RootDir: dir, MaxSizeBytes: 1 << 20, DefaultTTL: time.Minute}, NewPortableBackend())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestValidateAndRepairRecoversRealKeyWithoutIndexSnapshot(t *testing.T) {
	dir, err := os.MkdirTemp("", "s3sentry-cache-recover-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	key := Key{Bucket: "photos", Object: "cat.jpg"}
	c := openTestCacheAt(t, dir)
	if err := c.Set(key, []byte("meow"), "image/jpeg", "etag1", nil, time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash: remove the index snapshot so recovery must parse
	// the persisted .meta files directly.
	if err := os.Remove(dir + "/index.json"); err != nil {
		t.Fatal(err)
	}

	c2 := openTestCacheAt(t, dir)
	defer c2.Close()

	report, err := c2.ValidateAndRepair()
	if err != nil {
		t.Fatal(err)
	}
	if report.Recovered != 1 {
		t.Fatalf("expected 1 entry recovered, got %d", report.Recovered)
	}

	entry, found, err := c2.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected the real CacheKey to be reachable after recovery")
	}
	if string(entry.Body) != "meow" {
		t.Fatalf("unexpected body: %q", entry.Body)
	}
	if entry.Metadata.ContentType != "image/jpeg" || entry.Metadata.ETag != "etag1" {
		t.Fatalf("expected recovered metadata to match the original, got %+v", entry.Metadata)
	}
}

func TestValidateAndRepairUsesIndexSnapshotWhenPresent(t *testing.T) {
	dir, err := os.MkdirTemp("", "s3sentry-cache-recover-idx-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	key := Key{Bucket: "photos", Object: "dog.jpg"}
	c := openTestCacheAt(t, dir)
	if err := c.Set(key, []byte("woof"), "image/jpeg", "etag2", nil, time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil { // persists index.json
		t.Fatal(err)
	}

	c2 := openTestCacheAt(t, dir)
	defer c2.Close()

	report, err := c2.ValidateAndRepair()
	if err != nil {
		t.Fatal(err)
	}
	if report.AlreadyIndexed != 1 {
		t.Fatalf("expected the snapshot-loaded entry to be reconciled, got report %+v", report)
	}

	if _, found, _ := c2.Get(key); !found {
		t.Fatal("expected entry loaded from index.json to remain reachable")
	}
}

func TestValidateAndRepairDropsExpiredEntry(t *testing.T) {
	dir, err := os.MkdirTemp("", "s3sentry-cache-recover-exp-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	key := Key{Bucket: "photos", Object: "stale.jpg"}
	c := openTestCacheAt(t, dir)
	if err := c.Set(key, []byte("old"), "image/jpeg", "", nil, time.Nanosecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(dir + "/index.json"); err != nil {
		t.Fatal(err)
	}

	c2 := openTestCacheAt(t, dir)
	defer c2.Close()

	if _, err := c2.ValidateAndRepair(); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := c2.Get(key); found {
		t.Fatal("expected expired entry not to be recovered")
	}
}

func TestValidateAndRepairRemovesTmpFiles(t *testing.T) {
	dir, err := os.MkdirTemp("", "s3sentry-cache-recover-tmp-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	c := openTestCacheAt(t, dir)
	defer c.Close()

	key := Key{Bucket: "b", Object: "o"}
	if err := c.Set(key, []byte("x"), "", "", nil, time.Hour); err != nil {
		t.Fatal(err)
	}
	shard := c.shardDir(key.Hash())
	if err := os.WriteFile(shard+"/leftover.data.tmp", []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := c.ValidateAndRepair()
	if err != nil {
		t.Fatal(err)
	}
	if report.TmpFilesRemoved != 1 {
		t.Fatalf("expected 1 tmp file removed, got %d", report.TmpFilesRemoved)
	}
	if _, err := os.Stat(shard + "/leftover.data.tmp"); !os.IsNotExist(err) {
		t.Fatal("expected leftover .tmp file to be deleted")
	}
}
