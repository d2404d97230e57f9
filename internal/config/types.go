// Package config defines the immutable configuration snapshot consumed by
// every component of the request dataplane, and the loader that produces it
// from a YAML file on disk.
package config

import "time"

// Snapshot is the immutable, atomically swappable view of routing, auth,
// cache, replica, and limit configuration. Once installed it is never
// mutated; a reload installs a new Snapshot rather than editing this one.
type Snapshot struct {
	Generation  uint64
	ListenAddr  string
	ServerLimits ServerLimits
	RateLimits  RateLimits
	Buckets     []*BucketEntry
	JWT         *JWTConfig
	Cache       *CacheConfig
	JWKS        *JWKSConfig
	Audit       *AuditConfig
	Compression CompressionConfig

	bucketsByName map[string]*BucketEntry
}

// ServerLimits bounds the admission controller's security checks (C4.3).
type ServerLimits struct {
	MaxConcurrentRequests int
	MaxURILength          int
	MaxHeaderSize         int
	MaxBodySize           int64
}

// RateLimits carries global/per-IP RPS; burst equals RPS per spec §4.4.
type RateLimits struct {
	GlobalRPS float64
	PerIPRPS  float64
}

// BucketEntry is a routing target bound to a path prefix within a Snapshot.
type BucketEntry struct {
	Name           string
	PathPrefix     string
	Replicas       []*ReplicaConfig
	AuthRequired   bool
	CacheOverride  *CacheConfig
	Authorization  *AuthorizationConfig
	RateLimitRPS   float64 // 0 means no per-bucket limit; only the global and per-IP limits apply
}

// ReplicaConfig is one S3-compatible backend plus credentials, within a bucket.
type ReplicaConfig struct {
	Name      string
	Priority  uint8
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string // empty => AWS virtual-hosted addressing
	Timeout   time.Duration
}

// JWTConfig configures C3's token extraction, key resolution, and claim rules.
type JWTConfig struct {
	Enabled     bool
	Sources     []TokenSource
	Keys        []JWTKey
	Secret      string // legacy single HS* key
	RSAPubPath  string // legacy single RS* key
	ECDSAPubPath string // legacy single ES* key
	ClaimRules  []ClaimRule
	AdminRules  []ClaimRule
	AdminClaims []string
}

// TokenSource describes where to look for a bearer token.
type TokenSource struct {
	Kind   TokenSourceKind
	Name   string // header or query parameter name
	Prefix string // optional prefix to strip for Header sources
}

type TokenSourceKind int

const (
	TokenSourceBearer TokenSourceKind = iota
	TokenSourceHeader
	TokenSourceQuery
)

// JWTKey is one entry of a configured keys[] array, optionally keyed by kid.
type JWTKey struct {
	KID        string
	Algorithm  string // HS256, RS256, ES256, ...
	Secret     string
	PublicKeyPath string
}

// ClaimRule is one conjunct of the claim verification rule set.
type ClaimRule struct {
	Claim    string
	Operator ClaimOperator
	Value    interface{}
}

type ClaimOperator int

const (
	OpEquals ClaimOperator = iota
	OpIn
	OpContains
	OpGT
	OpLT
	OpGTE
	OpLTE
)

// JWKSConfig configures dynamic key resolution via a remote key set.
type JWKSConfig struct {
	URL             string
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
}

// CacheConfig configures the disk cache (C7).
type CacheConfig struct {
	Enabled     bool
	Dir         string
	MaxSizeBytes int64
	DefaultTTL  time.Duration
}

// AuthorizationConfig configures the optional OPA-style external policy hook (C15).
type AuthorizationConfig struct {
	Type          string
	OPAURL        string
	OPAPolicyPath string
	TimeoutMS     int64
	CacheTTL      time.Duration
	FailMode      string // "open" | "closed"
}

// AuditConfig configures the audit logger (C14).
type AuditConfig struct {
	Enabled    bool
	Output     string // file | syslog | s3
	Level      string
	FilePath   string
	BufferSize int

	SyslogNetwork string // tcp | udp, used when Output == "syslog"
	SyslogAddress string

	S3Bucket   string // used when Output == "s3"
	S3Region   string
	S3Endpoint string
	S3Prefix   string
}

// CompressionConfig configures the compression negotiator (C16).
type CompressionConfig struct {
	Enabled  bool
	Accepted []string // e.g. []string{"br", "gzip", "identity"}, preference order
}

// BucketByName returns the O(1) name-indexed lookup built at install time.
func (s *Snapshot) BucketByName(name string) (*BucketEntry, bool) {
	b, ok := s.bucketsByName[name]
	return b, ok
}

// buildIndex populates the auxiliary name index. Called by Owner.Install
// before the Snapshot is published to other goroutines.
func (s *Snapshot) buildIndex() {
	s.bucketsByName = make(map[string]*BucketEntry, len(s.Buckets))
	for _, b := range s.Buckets {
		s.bucketsByName[b.Name] = b
	}
}
