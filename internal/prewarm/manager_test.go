package prewarm

import (
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/s3sentry/s3sentry/internal/cache"
	"github.com/s3sentry/s3sentry/internal/config"
)

func idGenerator() func() string {
	var n int64
	return func() string {
		return "task-" + strconv.FormatInt(atomic.AddInt64(&n, 1), 10)
	}
}

func testOwner(t *testing.T) *config.Owner {
	t.Helper()
	owner := config.NewOwner()
	owner.Install(&config.Snapshot{
		Buckets: []*config.BucketEntry{
			{
				Name: "photos",
				Replicas: []*config.ReplicaConfig{
					{Name: "primary", Bucket: "photos-bucket", Region: "us-east-1", AccessKey: "a", SecretKey: "b"},
				},
			},
		},
	})
	return owner
}

func TestSubmitRejectsUnknownBucket(t *testing.T) {
	owner := testOwner(t)
	m := NewManager(owner, &cache.DiskCache{}, nil, idGenerator())

	if _, err := m.Submit("does-not-exist", ""); err == nil {
		t.Fatal("expected error for unknown bucket")
	}
}

func TestSubmitRejectsWhenCacheDisabled(t *testing.T) {
	owner := testOwner(t)
	m := NewManager(owner, nil, nil, idGenerator())

	if _, err := m.Submit("photos", ""); err == nil {
		t.Fatal("expected error when cache is nil")
	}
}

func TestCancelTransitionsRunningTaskToCancelled(t *testing.T) {
	owner := testOwner(t)
	dc, err := cache.Open(cache.Config{RootDir: t.TempDir(), MaxSizeBytes: 1 << 20}, cache.NewPortableBackend())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer dc.Close()

	m := NewManager(owner, dc, nil, idGenerator())
	task, err := m.Submit("photos", "")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if !m.Cancel(task.ID) {
		t.Fatal("expected Cancel to succeed on a fresh task")
	}

	time.Sleep(10 * time.Millisecond)
	got, ok := m.Get(task.ID)
	if !ok {
		t.Fatal("expected task to still be retrievable")
	}
	if got.Status != StatusCancelled {
		t.Fatalf("expected Cancelled, got %s", got.Status)
	}

	if m.Cancel(task.ID) {
		t.Fatal("expected a second Cancel on a terminal task to fail")
	}
}

func TestListReturnsAllSubmittedTasks(t *testing.T) {
	owner := testOwner(t)
	dc, err := cache.Open(cache.Config{RootDir: t.TempDir(), MaxSizeBytes: 1 << 20}, cache.NewPortableBackend())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer dc.Close()

	m := NewManager(owner, dc, nil, idGenerator())
	m.Submit("photos", "a/")
	m.Submit("photos", "b/")

	if len(m.List()) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(m.List()))
	}
}
