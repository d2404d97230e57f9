package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`)

// yamlDoc mirrors the on-disk shape before it is translated into the
// immutable Snapshot tree; field names follow the original source's YAML
// conventions (snake_case) rather than the internal Go types above.
type yamlDoc struct {
	Server      yamlServer      `yaml:"server"`
	RateLimits  yamlRateLimits  `yaml:"rate_limits"`
	Buckets     []yamlBucket    `yaml:"buckets"`
	JWT         *yamlJWT        `yaml:"jwt"`
	Cache       *yamlCache      `yaml:"cache"`
	Audit       *yamlAudit      `yaml:"audit_log"`
	Compression *yamlCompression `yaml:"compression"`
}

type yamlServer struct {
	ListenAddr            string `yaml:"listen_addr"`
	MaxConcurrentRequests int    `yaml:"max_concurrent_requests"`
	MaxURILength          int    `yaml:"max_uri_length"`
	MaxHeaderSize         int    `yaml:"max_header_size"`
	MaxBodySize           int64  `yaml:"max_body_size"`
}

type yamlRateLimits struct {
	GlobalRPS float64 `yaml:"global_rps"`
	PerIPRPS  float64 `yaml:"per_ip_rps"`
}

type yamlBucket struct {
	Name          string             `yaml:"name"`
	PathPrefix    string             `yaml:"path_prefix"`
	AuthRequired  bool               `yaml:"auth_required"`
	RateLimitRPS  float64            `yaml:"rate_limit_rps"`
	Replicas      []yamlReplica      `yaml:"replicas"`
	CacheOverride *yamlCache         `yaml:"cache_override"`
	Authorization *yamlAuthorization `yaml:"authorization"`
}

type yamlReplica struct {
	Name      string `yaml:"name"`
	Priority  uint8  `yaml:"priority"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"`
	TimeoutMS int64  `yaml:"timeout_ms"`
}

type yamlJWT struct {
	Enabled      bool             `yaml:"enabled"`
	Sources      []yamlTokenSrc   `yaml:"sources"`
	Keys         []yamlJWTKey     `yaml:"keys"`
	Secret       string           `yaml:"secret"`
	RSAPubPath   string           `yaml:"rsa_public_key_path"`
	ECDSAPubPath string           `yaml:"ecdsa_public_key_path"`
	ClaimRules   []yamlClaimRule  `yaml:"claim_rules"`
	AdminRules   []yamlClaimRule  `yaml:"admin_rules"`
	AdminClaims  []string         `yaml:"admin_claims"`
	JWKS         *yamlJWKS        `yaml:"jwks"`
}

type yamlTokenSrc struct {
	Kind   string `yaml:"kind"` // bearer | header | query
	Name   string `yaml:"name"`
	Prefix string `yaml:"prefix"`
}

type yamlJWTKey struct {
	KID           string `yaml:"kid"`
	Algorithm     string `yaml:"alg"`
	Secret        string `yaml:"secret"`
	PublicKeyPath string `yaml:"public_key_path"`
}

type yamlClaimRule struct {
	Claim    string      `yaml:"claim"`
	Operator string      `yaml:"operator"`
	Value    interface{} `yaml:"value"`
}

type yamlJWKS struct {
	URL                string `yaml:"url"`
	RefreshIntervalSec int64  `yaml:"refresh_interval_secs"`
	FetchTimeoutMS     int64  `yaml:"fetch_timeout_ms"`
}

type yamlCache struct {
	Enabled        bool   `yaml:"enabled"`
	Dir            string `yaml:"dir"`
	MaxSizeBytes   int64  `yaml:"max_size_bytes"`
	DefaultTTLSecs int64  `yaml:"default_ttl_secs"`
}

type yamlAuthorization struct {
	Type          string `yaml:"type"`
	OPAURL        string `yaml:"opa_url"`
	OPAPolicyPath string `yaml:"opa_policy_path"`
	TimeoutMS     int64  `yaml:"timeout_ms"`
	CacheTTLSecs  int64  `yaml:"cache_ttl_secs"`
	FailMode      string `yaml:"fail_mode"`
}

type yamlAudit struct {
	Enabled    bool   `yaml:"enabled"`
	Output     string `yaml:"output"`
	Level      string `yaml:"level"`
	FilePath   string `yaml:"file_path"`
	BufferSize int    `yaml:"buffer_size"`

	SyslogNetwork string `yaml:"syslog_network"`
	SyslogAddress string `yaml:"syslog_address"`

	S3Bucket   string `yaml:"s3_bucket"`
	S3Region   string `yaml:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Prefix   string `yaml:"s3_prefix"`
}

type yamlCompression struct {
	Enabled  bool     `yaml:"enabled"`
	Accepted []string `yaml:"accepted"`
}

// LoadFile reads path, substitutes ${VAR} references from the environment,
// parses and validates the result, and returns a freshly built Snapshot. It
// never mutates any previously installed snapshot, and a returned error
// means the caller should keep serving whatever is currently installed.
func LoadFile(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	substituted, err := substituteEnv(string(raw))
	if err != nil {
		return nil, err
	}
	var doc yamlDoc
	if err := yaml.Unmarshal([]byte(substituted), &doc); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	snap, err := translate(&doc)
	if err != nil {
		return nil, err
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return snap, nil
}

// substituteEnv replaces every ${VAR_NAME} token with its environment value.
// A referenced-but-unset variable fails the load, matching the original
// source's from_yaml_with_env fail-closed behavior.
func substituteEnv(yamlText string) (string, error) {
	var missing error
	result := envVarPattern.ReplaceAllStringFunc(yamlText, func(tok string) string {
		name := envVarPattern.FindStringSubmatch(tok)[1]
		val, ok := os.LookupEnv(name)
		if !ok {
			if missing == nil {
				missing = fmt.Errorf("environment variable %q is referenced but not set", name)
			}
			return tok
		}
		return val
	})
	if missing != nil {
		return "", missing
	}
	return result, nil
}

func translate(doc *yamlDoc) (*Snapshot, error) {
	snap := &Snapshot{
		ListenAddr: doc.Server.ListenAddr,
		ServerLimits: ServerLimits{
			MaxConcurrentRequests: doc.Server.MaxConcurrentRequests,
			MaxURILength:          doc.Server.MaxURILength,
			MaxHeaderSize:         doc.Server.MaxHeaderSize,
			MaxBodySize:           doc.Server.MaxBodySize,
		},
		RateLimits: RateLimits{
			GlobalRPS: doc.RateLimits.GlobalRPS,
			PerIPRPS:  doc.RateLimits.PerIPRPS,
		},
	}

	for _, b := range doc.Buckets {
		entry := &BucketEntry{
			Name:         b.Name,
			PathPrefix:   b.PathPrefix,
			AuthRequired: b.AuthRequired,
			RateLimitRPS: b.RateLimitRPS,
		}
		for _, r := range b.Replicas {
			entry.Replicas = append(entry.Replicas, &ReplicaConfig{
				Name:      r.Name,
				Priority:  r.Priority,
				Bucket:    r.Bucket,
				Region:    r.Region,
				AccessKey: r.AccessKey,
				SecretKey: r.SecretKey,
				Endpoint:  r.Endpoint,
				Timeout:   time.Duration(r.TimeoutMS) * time.Millisecond,
			})
		}
		if b.CacheOverride != nil {
			entry.CacheOverride = translateCache(b.CacheOverride)
		}
		if b.Authorization != nil {
			entry.Authorization = &AuthorizationConfig{
				Type:          b.Authorization.Type,
				OPAURL:        b.Authorization.OPAURL,
				OPAPolicyPath: b.Authorization.OPAPolicyPath,
				TimeoutMS:     b.Authorization.TimeoutMS,
				CacheTTL:      time.Duration(b.Authorization.CacheTTLSecs) * time.Second,
				FailMode:      b.Authorization.FailMode,
			}
		}
		snap.Buckets = append(snap.Buckets, entry)
	}

	if doc.JWT != nil {
		snap.JWT = translateJWT(doc.JWT)
		if doc.JWT.JWKS != nil {
			snap.JWKS = &JWKSConfig{
				URL:             doc.JWT.JWKS.URL,
				RefreshInterval: time.Duration(doc.JWT.JWKS.RefreshIntervalSec) * time.Second,
				FetchTimeout:    time.Duration(doc.JWT.JWKS.FetchTimeoutMS) * time.Millisecond,
			}
		}
	}
	if doc.Cache != nil {
		snap.Cache = translateCache(doc.Cache)
	}
	if doc.Audit != nil {
		snap.Audit = &AuditConfig{
			Enabled:       doc.Audit.Enabled,
			Output:        doc.Audit.Output,
			Level:         doc.Audit.Level,
			FilePath:      doc.Audit.FilePath,
			BufferSize:    doc.Audit.BufferSize,
			SyslogNetwork: doc.Audit.SyslogNetwork,
			SyslogAddress: doc.Audit.SyslogAddress,
			S3Bucket:      doc.Audit.S3Bucket,
			S3Region:      doc.Audit.S3Region,
			S3Endpoint:    doc.Audit.S3Endpoint,
			S3Prefix:      doc.Audit.S3Prefix,
		}
	}
	if doc.Compression != nil {
		snap.Compression = CompressionConfig{
			Enabled:  doc.Compression.Enabled,
			Accepted: doc.Compression.Accepted,
		}
	}
	return snap, nil
}

func translateCache(c *yamlCache) *CacheConfig {
	return &CacheConfig{
		Enabled:      c.Enabled,
		Dir:          c.Dir,
		MaxSizeBytes: c.MaxSizeBytes,
		DefaultTTL:   time.Duration(c.DefaultTTLSecs) * time.Second,
	}
}

func translateJWT(j *yamlJWT) *JWTConfig {
	cfg := &JWTConfig{
		Enabled:      j.Enabled,
		Secret:       j.Secret,
		RSAPubPath:   j.RSAPubPath,
		ECDSAPubPath: j.ECDSAPubPath,
		AdminClaims:  j.AdminClaims,
	}
	for _, s := range j.Sources {
		var kind TokenSourceKind
		switch s.Kind {
		case "header":
			kind = TokenSourceHeader
		case "query":
			kind = TokenSourceQuery
		default:
			kind = TokenSourceBearer
		}
		cfg.Sources = append(cfg.Sources, TokenSource{Kind: kind, Name: s.Name, Prefix: s.Prefix})
	}
	for _, k := range j.Keys {
		cfg.Keys = append(cfg.Keys, JWTKey{
			KID: k.KID, Algorithm: k.Algorithm, Secret: k.Secret, PublicKeyPath: k.PublicKeyPath,
		})
	}
	for _, r := range j.ClaimRules {
		cfg.ClaimRules = append(cfg.ClaimRules, translateClaimRule(r))
	}
	for _, r := range j.AdminRules {
		cfg.AdminRules = append(cfg.AdminRules, translateClaimRule(r))
	}
	return cfg
}

func translateClaimRule(r yamlClaimRule) ClaimRule {
	var op ClaimOperator
	switch r.Operator {
	case "in":
		op = OpIn
	case "contains":
		op = OpContains
	case "gt":
		op = OpGT
	case "lt":
		op = OpLT
	case "gte":
		op = OpGTE
	case "lte":
		op = OpLTE
	default:
		op = OpEquals
	}
	return ClaimRule{Claim: r.Claim, Operator: op, Value: r.Value}
}
