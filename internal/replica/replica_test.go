package replica

import (
	"testing"
	"time"

	"github.com/s3sentry/s3sentry/internal/breaker"
	"github.com/s3sentry/s3sentry/internal/config"
)

func TestBuildPreservesPriorityOrder(t *testing.T) {
	cfgs := []*config.ReplicaConfig{
		{Name: "r2", Priority: 2, AccessKey: "a", SecretKey: "b", Timeout: time.Second},
		{Name: "r1", Priority: 1, AccessKey: "a", SecretKey: "b", Timeout: time.Second},
	}
	set := Build(cfgs, DefaultBreakerConfig)
	all := set.All()
	if len(all) != 2 || all[0].Name != "r1" || all[1].Name != "r2" {
		t.Fatalf("unexpected order: %#v", all)
	}
}

func TestSelectEligibleSkipsOpenBreaker(t *testing.T) {
	cfgs := []*config.ReplicaConfig{
		{Name: "r1", Priority: 1, AccessKey: "a", SecretKey: "b", Timeout: time.Second},
		{Name: "r2", Priority: 2, AccessKey: "a", SecretKey: "b", Timeout: time.Second},
	}
	bc := breaker.Config{FailureThreshold: 1, SuccessThreshold: 1, TimeoutDuration: time.Hour, HalfOpenMaxRequests: 1}
	set := Build(cfgs, bc)
	set.All()[0].Breaker.RecordFailure() // opens r1

	got := set.SelectEligible()
	if got == nil || got.Name != "r2" {
		t.Fatalf("expected r2 selected, got %#v", got)
	}
}
