package config

import (
	"fmt"
	"sort"
	"strings"
)

// Validate enforces spec §3/§8 invariant 1: path prefixes are pairwise
// distinct and every bucket has at least one replica with strictly
// positive, unique priority.
func (s *Snapshot) Validate() error {
	seenPrefix := make(map[string]string, len(s.Buckets))
	seenName := make(map[string]bool, len(s.Buckets))

	for _, b := range s.Buckets {
		if b.Name == "" {
			return fmt.Errorf("bucket with empty name")
		}
		if seenName[b.Name] {
			return fmt.Errorf("duplicate bucket name %q", b.Name)
		}
		seenName[b.Name] = true

		if !strings.HasPrefix(b.PathPrefix, "/") {
			return fmt.Errorf("bucket %q: path_prefix %q must start with /", b.Name, b.PathPrefix)
		}
		if other, ok := seenPrefix[b.PathPrefix]; ok {
			return fmt.Errorf("bucket %q: path_prefix %q collides with bucket %q", b.Name, b.PathPrefix, other)
		}
		seenPrefix[b.PathPrefix] = b.Name

		if len(b.Replicas) == 0 {
			return fmt.Errorf("bucket %q: must have at least one replica", b.Name)
		}
		if err := validateReplicas(b.Name, b.Replicas); err != nil {
			return err
		}
	}
	return nil
}

func validateReplicas(bucket string, replicas []*ReplicaConfig) error {
	seenPriority := make(map[uint8]string, len(replicas))
	seenName := make(map[string]bool, len(replicas))
	prev := uint8(0)
	sorted := append([]*ReplicaConfig(nil), replicas...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	for _, r := range sorted {
		if r.Priority < 1 {
			return fmt.Errorf("bucket %q: replica %q priority must be >= 1", bucket, r.Name)
		}
		if r.Priority < prev {
			return fmt.Errorf("bucket %q: replica priorities out of order", bucket)
		}
		prev = r.Priority
		if other, ok := seenPriority[r.Priority]; ok {
			return fmt.Errorf("bucket %q: replicas %q and %q share priority %d", bucket, other, r.Name, r.Priority)
		}
		seenPriority[r.Priority] = r.Name
		if seenName[r.Name] {
			return fmt.Errorf("bucket %q: duplicate replica name %q", bucket, r.Name)
		}
		seenName[r.Name] = true
		if r.AccessKey == "" || r.SecretKey == "" {
			return fmt.Errorf("bucket %q: replica %q missing credentials", bucket, r.Name)
		}
		if r.Timeout <= 0 {
			return fmt.Errorf("bucket %q: replica %q must set a positive timeout", bucket, r.Name)
		}
	}
	return nil
}
