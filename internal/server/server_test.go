package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRunShutsDownCleanlyOnContextCancel(t *testing.T) {
	cfg := DefaultConfig("127.0.0.1:0")
	cfg.ShutdownTimeout = 2 * time.Second
	srv := New(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down within timeout")
	}
}
