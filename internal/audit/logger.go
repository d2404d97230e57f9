package audit

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/s3sentry/s3sentry/internal/config"
)

// Logger buffers events through a bounded channel and flushes them to its
// Sink in batches on a timer, so a slow or unreachable sink never blocks
// the request path (spec §4.14). A full buffer drops the oldest queued
// event and increments Dropped.
type Logger struct {
	sink       Sink
	events     chan Event
	flushEvery time.Duration
	dropped    atomic.Int64

	mu      sync.Mutex
	queue   []Event
	done    chan struct{}
	stopped chan struct{}
	opLog   *zap.Logger
}

// NewLogger starts the background flush loop, flushing buffered events to
// sink once per second. Callers must call Close to drain and release the
// sink.
func NewLogger(cfg *config.AuditConfig, sink Sink, opLog *zap.Logger) *Logger {
	return NewLoggerWithInterval(cfg, sink, opLog, time.Second)
}

// NewLoggerWithInterval is NewLogger with an explicit flush interval,
// exposed for tests that need a tighter loop than production's default.
func NewLoggerWithInterval(cfg *config.AuditConfig, sink Sink, opLog *zap.Logger, flushEvery time.Duration) *Logger {
	bufSize := cfg.BufferSize
	if bufSize <= 0 {
		bufSize = 1024
	}
	l := &Logger{
		sink:       sink,
		events:     make(chan Event, bufSize),
		flushEvery: flushEvery,
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		opLog:      opLog,
	}
	go l.run()
	return l
}

// Record enqueues an event, redacting its path first. Never blocks: if the
// channel is full, the oldest buffered event is dropped to make room.
func (l *Logger) Record(e Event) {
	e.Path = RedactPath(e.Path)
	select {
	case l.events <- e:
	default:
		select {
		case <-l.events:
			l.dropped.Add(1)
		default:
		}
		select {
		case l.events <- e:
		default:
			l.dropped.Add(1)
		}
	}
}

// Dropped returns the count of events dropped due to a full buffer.
func (l *Logger) Dropped() int64 { return l.dropped.Load() }

func (l *Logger) run() {
	defer close(l.stopped)
	ticker := time.NewTicker(l.flushEvery)
	defer ticker.Stop()
	for {
		select {
		case e := <-l.events:
			l.mu.Lock()
			l.queue = append(l.queue, e)
			l.mu.Unlock()
		case <-ticker.C:
			l.flush()
		case <-l.done:
			l.drainChannel()
			l.flush()
			return
		}
	}
}

func (l *Logger) drainChannel() {
	for {
		select {
		case e := <-l.events:
			l.mu.Lock()
			l.queue = append(l.queue, e)
			l.mu.Unlock()
		default:
			return
		}
	}
}

func (l *Logger) flush() {
	l.mu.Lock()
	batch := l.queue
	l.queue = nil
	l.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if err := l.sink.Write(batch); err != nil && l.opLog != nil {
		l.opLog.Warn("audit sink write failed", zap.Error(err), zap.Int("batch_size", len(batch)))
	}
}

// Close stops the flush loop, waits for the final drain and flush, and
// closes the underlying sink.
func (l *Logger) Close() error {
	close(l.done)
	<-l.stopped
	return l.sink.Close()
}
