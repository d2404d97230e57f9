// Package replica builds and selects across a bucket's ordered,
// priority-sorted replica set (spec §4.6), each owning its own signing
// client and circuit breaker.
package replica

import (
	"net/http"
	"sort"
	"time"

	"github.com/s3sentry/s3sentry/internal/breaker"
	"github.com/s3sentry/s3sentry/internal/config"
	"github.com/s3sentry/s3sentry/internal/sigv4"
)

// Replica is one S3-compatible backend within a bucket: its own client,
// credentials, and breaker. Credentials and breaker state are never shared
// across replicas (spec §3).
type Replica struct {
	Name      string
	Priority  uint8
	Bucket    string
	Region    string
	Endpoint  string
	Creds     sigv4.Credentials
	Timeout   time.Duration
	Client    *http.Client
	Breaker   *breaker.Breaker
}

// DefaultBreakerConfig is used when a replica does not override breaker
// tunables; spec does not name per-replica overrides, so this is process-wide.
var DefaultBreakerConfig = breaker.Config{
	FailureThreshold:    5,
	SuccessThreshold:    2,
	TimeoutDuration:     30 * time.Second,
	HalfOpenMaxRequests: 1,
}

// Set is an ordered (ascending priority) vector of replicas for one bucket.
type Set struct {
	replicas []*Replica
}

// Build constructs a Set from a bucket's replica configs, preserving
// priority order (validated unique/ascending upstream in config.Validate).
func Build(cfgs []*config.ReplicaConfig, breakerCfg breaker.Config) *Set {
	sorted := append([]*config.ReplicaConfig(nil), cfgs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	set := &Set{}
	for _, c := range sorted {
		set.replicas = append(set.replicas, &Replica{
			Name:     c.Name,
			Priority: c.Priority,
			Bucket:   c.Bucket,
			Region:   c.Region,
			Endpoint: c.Endpoint,
			Creds:    sigv4.Credentials{AccessKey: c.AccessKey, SecretKey: c.SecretKey},
			Timeout:  c.Timeout,
			Client:   &http.Client{Timeout: c.Timeout},
			Breaker:  breaker.New(breakerCfg),
		})
	}
	return set
}

// All returns the replicas in priority order.
func (s *Set) All() []*Replica {
	return s.replicas
}

// SelectEligible returns the first replica whose breaker currently permits
// traffic, or nil if none are eligible.
func (s *Set) SelectEligible() *Replica {
	for _, r := range s.replicas {
		if r.Breaker.ShouldAllowRequest() {
			return r
		}
	}
	return nil
}

// AnyHealthy reports whether at least one replica's breaker is Closed, used
// by the /ready endpoint (spec §4.8).
func (s *Set) AnyHealthy() bool {
	for _, r := range s.replicas {
		if state, _, _ := r.Breaker.Snapshot(); state == Closed {
			return true
		}
	}
	return false
}
