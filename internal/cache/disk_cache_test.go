package cache

import (
	"os"
	"testing"
	"time"
)

func newTestCache(t *testing.T) *DiskCache {
	t.Helper()
	dir, err := os.MkdirTemp("", "s3sentry-cache-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	c, err := Open(Config{RootDir: dir, MaxSizeBytes: 1 << 20, DefaultTTL: time.Minute}, NewPortableBackend())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSetThenGetRoundTrips(t *testing.T) {
	c := newTestCache(t)
	key := Key{Bucket: "b1", Object: "o1"}

	if err := c.Set(key, []byte("hello"), "text/plain", "etag1", nil, 0); err != nil {
		t.Fatal(err)
	}
	entry, found, err := c.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected hit")
	}
	if string(entry.Body) != "hello" {
		t.Fatalf("unexpected body: %q", entry.Body)
	}
}

func TestGetMissReturnsFalse(t *testing.T) {
	c := newTestCache(t)
	_, found, err := c.Get(Key{Bucket: "b1", Object: "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected miss")
	}
}

func TestExpiredEntryIsMiss(t *testing.T) {
	c := newTestCache(t)
	key := Key{Bucket: "b1", Object: "o1"}
	if err := c.Set(key, []byte("hi"), "text/plain", "", nil, time.Nanosecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	_, found, err := c.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("expected expired entry to miss")
	}
}

func TestEvictionRespectsMaxSize(t *testing.T) {
	dir, err := os.MkdirTemp("", "s3sentry-cache-evict-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	c, err := Open(Config{RootDir: dir, MaxSizeBytes: 10}, NewPortableBackend())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Set(Key{Bucket: "b", Object: "1"}, make([]byte, 6), "", "", nil, 0); err != nil {
		t.Fatal(err)
	}
	if err := c.Set(Key{Bucket: "b", Object: "2"}, make([]byte, 6), "", "", nil, 0); err != nil {
		t.Fatal(err)
	}

	if c.Stats().TotalBytes > 10 {
		t.Fatalf("expected eviction to keep total under 10 bytes, got %d", c.Stats().TotalBytes)
	}
	if _, found, _ := c.Get(Key{Bucket: "b", Object: "1"}); found {
		t.Fatal("expected oldest entry to have been evicted")
	}
}

func TestClearBucketOnlyRemovesThatBucket(t *testing.T) {
	c := newTestCache(t)
	if err := c.Set(Key{Bucket: "a", Object: "1"}, []byte("x"), "", "", nil, 0); err != nil {
		t.Fatal(err)
	}
	if err := c.Set(Key{Bucket: "b", Object: "1"}, []byte("y"), "", "", nil, 0); err != nil {
		t.Fatal(err)
	}
	if err := c.ClearBucket("a"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := c.Get(Key{Bucket: "a", Object: "1"}); found {
		t.Fatal("expected bucket a entry removed")
	}
	if _, found, _ := c.Get(Key{Bucket: "b", Object: "1"}); !found {
		t.Fatal("expected bucket b entry to survive")
	}
}
