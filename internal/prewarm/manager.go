// Package prewarm implements background cache-warming tasks: given a
// bucket and an optional key prefix, list the matching objects from the
// upstream S3-compatible backend and populate the disk cache with each
// one, tracking progress so /admin/cache/prewarm/tasks/{id} can poll it.
//
// Grounded on original_source/src/cache/warming.rs (PrewarmTask/TaskStatus/
// PrewarmManager), re-expressed with goroutines in place of tokio::spawn
// and a plain map+mutex in place of Arc<Mutex<HashMap>>.
package prewarm

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/s3sentry/s3sentry/internal/cache"
	"github.com/s3sentry/s3sentry/internal/config"
)

// TaskStatus mirrors warming.rs's TaskStatus enum.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
)

// Task tracks one prewarm job's progress. Fields are read under Manager's
// lock; callers get a copy via Get/List so no external synchronization
// is needed.
type Task struct {
	ID     string     `json:"id"`
	Bucket string     `json:"bucket"`
	Prefix string     `json:"prefix"`
	Status TaskStatus `json:"status"`

	FilesScanned uint64 `json:"files_scanned"`
	FilesCached  uint64 `json:"files_cached"`
	BytesCached  uint64 `json:"bytes_cached"`

	CreatedAtUnix int64  `json:"created_at_unix"`
	StartedAtUnix int64  `json:"started_at_unix,omitempty"`
	EndedAtUnix   int64  `json:"ended_at_unix,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
}

// Manager owns every in-flight and completed prewarm task for the process
// lifetime. ConfigOwner resolves bucket -> replica credentials at task
// creation time so a submitted task always targets the replica set that
// was current when it was accepted.
type Manager struct {
	mu          sync.Mutex
	tasks       map[string]*Task
	cancel      map[string]context.CancelFunc
	ConfigOwner *config.Owner
	Cache       *cache.DiskCache
	Log         *zap.Logger

	nextID func() string
}

// NewManager constructs a Manager. idGen generates task IDs; production
// callers pass a uuid.New().String 	wrapper, tests pass a deterministic
// sequence.
func NewManager(owner *config.Owner, c *cache.DiskCache, log *zap.Logger, idGen func() string) *Manager {
	return &Manager{
		tasks:       make(map[string]*Task),
		cancel:      make(map[string]context.CancelFunc),
		ConfigOwner: owner,
		Cache:       c,
		Log:         log,
		nextID:      idGen,
	}
}

// Submit validates the bucket exists in the current snapshot, creates a
// Pending task, and starts its worker goroutine. It returns immediately;
// progress is visible through Get/List.
func (m *Manager) Submit(bucketName, prefix string) (*Task, error) {
	snap := m.ConfigOwner.Current()
	bucket, ok := snap.BucketByName(bucketName)
	if !ok {
		return nil, fmt.Errorf("prewarm: unknown bucket %q", bucketName)
	}
	if len(bucket.Replicas) == 0 {
		return nil, fmt.Errorf("prewarm: bucket %q has no replicas configured", bucketName)
	}
	if m.Cache == nil {
		return nil, fmt.Errorf("prewarm: cache is not enabled")
	}

	task := &Task{
		ID:            m.nextID(),
		Bucket:        bucketName,
		Prefix:        prefix,
		Status:        StatusPending,
		CreatedAtUnix: time.Now().Unix(),
	}

	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.tasks[task.ID] = task
	m.cancel[task.ID] = cancel
	m.mu.Unlock()

	go m.run(ctx, task.ID, bucket)

	return m.cloneLocked(task.ID), nil
}

// Get returns a snapshot copy of a task's current state.
func (m *Manager) Get(id string) (*Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

// List returns a snapshot copy of every known task.
func (m *Manager) List() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		cp := *t
		out = append(out, &cp)
	}
	return out
}

// Cancel marks a Pending or Running task Cancelled. It returns false if
// the task is unknown or already in a terminal state, matching
// warming.rs's cancel_task semantics.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return false
	}
	switch t.Status {
	case StatusPending, StatusRunning:
		t.Status = StatusCancelled
		t.EndedAtUnix = time.Now().Unix()
		if cancel, ok := m.cancel[id]; ok {
			cancel()
		}
		return true
	default:
		return false
	}
}

func (m *Manager) cloneLocked(id string) *Task {
	t := m.tasks[id]
	cp := *t
	return &cp
}

func (m *Manager) isCancelled(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return true
	}
	return t.Status == StatusCancelled
}

const listBatchSize = 100

func (m *Manager) run(ctx context.Context, id string, bucket *config.BucketEntry) {
	if m.isCancelled(id) {
		return
	}

	m.mu.Lock()
	t := m.tasks[id]
	t.Status = StatusRunning
	t.StartedAtUnix = time.Now().Unix()
	prefix := t.Prefix
	m.mu.Unlock()

	replica := bucket.Replicas[0]
	client, err := newS3Client(replica)
	if err != nil {
		m.fail(id, err)
		return
	}

	var continuationToken *string
	for {
		if m.isCancelled(id) {
			return
		}

		page, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(replica.Bucket),
			Prefix:            aws.String(prefix),
			MaxKeys:           aws.Int32(listBatchSize),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			m.fail(id, err)
			return
		}

		for _, obj := range page.Contents {
			if m.isCancelled(id) {
				return
			}
			m.scanOne(ctx, id, bucket.Name, client, replica.Bucket, *obj.Key)
		}

		if page.IsTruncated == nil || !*page.IsTruncated {
			break
		}
		continuationToken = page.NextContinuationToken
	}

	m.mu.Lock()
	if t := m.tasks[id]; t.Status == StatusRunning {
		t.Status = StatusCompleted
		t.EndedAtUnix = time.Now().Unix()
	}
	m.mu.Unlock()
}

func (m *Manager) scanOne(ctx context.Context, id, bucketName string, client *s3.Client, upstreamBucket, key string) {
	m.mu.Lock()
	t := m.tasks[id]
	t.FilesScanned++
	m.mu.Unlock()

	getCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := client.GetObject(getCtx, &s3.GetObjectInput{
		Bucket: aws.String(upstreamBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if m.Log != nil {
			m.Log.Warn("prewarm: failed to download object", zap.String("key", key), zap.Error(err))
		}
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}

	contentType := "application/octet-stream"
	if resp.ContentType != nil {
		contentType = *resp.ContentType
	}
	etag := ""
	if resp.ETag != nil {
		etag = *resp.ETag
	}

	cacheKey := cache.Key{Bucket: bucketName, Object: key}
	if err := m.Cache.Set(cacheKey, data, contentType, etag, nil, 0); err != nil {
		return
	}

	m.mu.Lock()
	t.FilesCached++
	t.BytesCached += uint64(len(data))
	m.mu.Unlock()
}

func (m *Manager) fail(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status == StatusCancelled {
		return
	}
	t.Status = StatusFailed
	t.ErrorMessage = err.Error()
	t.EndedAtUnix = time.Now().Unix()
}

func newS3Client(replica *config.ReplicaConfig) (*s3.Client, error) {
	creds := awscreds.NewStaticCredentialsProvider(replica.AccessKey, replica.SecretKey, "")
	return s3.New(s3.Options{
		Region:       replica.Region,
		Credentials:  creds,
		BaseEndpoint: endpointOrNil(replica.Endpoint),
	}), nil
}

func endpointOrNil(endpoint string) *string {
	if endpoint == "" {
		return nil
	}
	return aws.String(endpoint)
}
