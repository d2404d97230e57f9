package replica

import (
	"sync/atomic"

	"github.com/s3sentry/s3sentry/internal/breaker"
	"github.com/s3sentry/s3sentry/internal/config"
)

// Registry maps bucket name to its replica Set, built fresh alongside each
// config.Snapshot install so replica/breaker state always matches the
// currently installed configuration (spec §4.9: ConfigSnapshot pointer
// atomic load/store; a Registry is swapped in lockstep with its Snapshot).
type Registry struct {
	sets map[string]*Set
}

// BuildRegistry constructs one Set per bucket in snap.
func BuildRegistry(snap *config.Snapshot, breakerCfg breaker.Config) *Registry {
	r := &Registry{sets: make(map[string]*Set, len(snap.Buckets))}
	for _, b := range snap.Buckets {
		r.sets[b.Name] = Build(b.Replicas, breakerCfg)
	}
	return r
}

// For returns the replica Set for bucketName, or nil if unknown.
func (r *Registry) For(bucketName string) *Set {
	return r.sets[bucketName]
}

// All returns every bucket name this registry has a Set for, used by the
// /ready endpoint to enumerate per-bucket health.
func (r *Registry) All() map[string]*Set {
	return r.sets
}

// Owner holds the currently installed Registry behind an atomic pointer,
// mirroring config.Owner so a reload can swap in a freshly built Registry
// without the request pipeline ever observing a half-updated one (spec
// §4.9: the Registry is swapped in lockstep with its Snapshot).
type Owner struct {
	ptr atomic.Pointer[Registry]
}

// NewOwner constructs an Owner with no Registry installed.
func NewOwner() *Owner {
	return &Owner{}
}

// Current returns the currently installed Registry, or nil if none has
// ever been installed.
func (o *Owner) Current() *Registry {
	return o.ptr.Load()
}

// Install atomically swaps in a freshly built Registry.
func (o *Owner) Install(r *Registry) {
	o.ptr.Store(r)
}
