package ratelimit

import (
	"sync"

	"github.com/OneOfOne/xxhash"
)

const shardCount = 64

// keyedShard is one of shardCount lock-protected maps, so the per-IP
// limiter doesn't serialize every request behind a single mutex.
type keyedShard struct {
	mu      sync.Mutex
	buckets map[string]*TokenBucket
}

// KeyedLimiter maintains one TokenBucket per key (client IP), sharded by xxhash of the key (teacher dependency, also used by
// aistore for consistent-hash style sharding).
type KeyedLimiter struct {
	rps    float64
	shards [shardCount]*keyedShard
}

// NewKeyedLimiter constructs a limiter where every distinct key gets its
// own bucket refilling at rps with burst rps.
func NewKeyedLimiter(rps float64) *KeyedLimiter {
	l := &KeyedLimiter{rps: rps}
	for i := range l.shards {
		l.shards[i] = &keyedShard{buckets: make(map[string]*TokenBucket)}
	}
	return l
}

func (l *KeyedLimiter) shardFor(key string) *keyedShard {
	h := xxhash.ChecksumString32(key)
	return l.shards[h%shardCount]
}

// Allow consumes one token from the bucket for key, creating it on first
// use.
func (l *KeyedLimiter) Allow(key string) bool {
	shard := l.shardFor(key)
	shard.mu.Lock()
	b, ok := shard.buckets[key]
	if !ok {
		b = NewTokenBucket(l.rps)
		shard.buckets[key] = b
	}
	shard.mu.Unlock()
	return b.Allow()
}

// Limiters bundles the three limiter scopes the admission controller
// consults per request (spec §4.4 step 5): global, per-IP, and per-bucket.
// A request is rejected if any applicable limiter denies it.
type Limiters struct {
	Global *TokenBucket
	PerIP  *KeyedLimiter

	mu      sync.Mutex
	perName map[string]*TokenBucket // keyed by routed bucket name, only when the
	// bucket defines its own rate_limit_rps override
}

// NewLimiters constructs the global and per-IP limiters from server-wide
// rates; per-bucket limiters, when configured, are supplied separately
// since their rate varies per bucket.
func NewLimiters(globalRPS, perIPRPS float64) *Limiters {
	return &Limiters{
		Global: NewTokenBucket(globalRPS),
		PerIP:  NewKeyedLimiter(perIPRPS),
	}
}

// Allow runs the global and per-IP checks, consuming a token from each.
// Short-circuits on the first denial so later limiters are not charged for
// a request that is already going to be rejected.
func (l *Limiters) Allow(clientIP string) bool {
	if !l.Global.Allow() {
		return false
	}
	return l.PerIP.Allow(clientIP)
}

// AllowBucket additionally checks a per-bucket-name limiter, used when a
// routed bucket defines rate_limit_rps.
func (l *Limiters) AllowBucket(bucketName string, rps float64) bool {
	l.mu.Lock()
	b, ok := l.perName[bucketName]
	if !ok || b.refillRate != rps {
		if l.perName == nil {
			l.perName = make(map[string]*TokenBucket)
		}
		b = NewTokenBucket(rps)
		l.perName[bucketName] = b
	}
	l.mu.Unlock()
	return b.Allow()
}
