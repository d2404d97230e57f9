package router

import (
	"testing"

	"github.com/s3sentry/s3sentry/internal/config"
)

func TestNormalizeCollapsesSlashes(t *testing.T) {
	cases := map[string]string{
		"//a//b///c": "/a/b/c",
		"a/b":        "/a/b",
		"":           "/",
		"/":          "/",
	}
	for in, want := range cases {
		got := Normalize(in)
		if got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"//public//file.txt", "/a/b/c", "///"}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q vs %q", in, once, twice)
		}
	}
}

func TestRouteLongestPrefix(t *testing.T) {
	snap := &config.Snapshot{Buckets: []*config.BucketEntry{
		{Name: "short", PathPrefix: "/public"},
		{Name: "long", PathPrefix: "/public/nested"},
	}}
	b := Route(snap, "/public/nested/file.txt")
	if b == nil || b.Name != "long" {
		t.Fatalf("expected longest prefix match 'long', got %#v", b)
	}
}

func TestRouteNoMatch(t *testing.T) {
	snap := &config.Snapshot{Buckets: []*config.BucketEntry{{Name: "b", PathPrefix: "/public"}}}
	if got := Route(snap, "/other/x"); got != nil {
		t.Fatalf("expected no match, got %#v", got)
	}
}

func TestExtractKeyStripsPrefixAndSlash(t *testing.T) {
	b := &config.BucketEntry{Name: "b", PathPrefix: "/public"}
	key := ExtractKey(b, "/public/file.txt")
	if key != "file.txt" {
		t.Fatalf("got %q", key)
	}
}
