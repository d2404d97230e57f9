package audit

import (
	"sync"
	"testing"
	"time"

	"github.com/s3sentry/s3sentry/internal/config"
)

type fakeSink struct {
	mu      sync.Mutex
	batches [][]Event
}

func (f *fakeSink) Write(events []Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, events)
	return nil
}

func (f *fakeSink) Close() error { return nil }

func (f *fakeSink) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestLoggerFlushesRecordedEvents(t *testing.T) {
	sink := &fakeSink{}
	l := NewLoggerWithInterval(&config.AuditConfig{BufferSize: 16}, sink, nil, 10*time.Millisecond)

	l.Record(Event{RequestID: "r1", Path: "/x"})
	l.Record(Event{RequestID: "r2", Path: "/y"})

	time.Sleep(50 * time.Millisecond)
	if sink.total() != 2 {
		t.Fatalf("expected 2 events flushed, got %d", sink.total())
	}
	l.Close()
}

func TestRedactPathStripsSignature(t *testing.T) {
	got := RedactPath("/bucket/key?X-Amz-Signature=secret&other=1")
	if got == "/bucket/key?X-Amz-Signature=secret&other=1" {
		t.Fatal("expected signature to be redacted")
	}
}

func TestLoggerDropsOldestWhenFull(t *testing.T) {
	sink := &fakeSink{}
	l := NewLoggerWithInterval(&config.AuditConfig{BufferSize: 1}, sink, nil, time.Hour)

	l.Record(Event{RequestID: "r1"})
	l.Record(Event{RequestID: "r2"})

	if l.Dropped() == 0 {
		t.Fatal("expected at least one dropped event")
	}
	l.Close()
}
