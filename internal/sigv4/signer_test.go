package sigv4

import "testing"

func TestSignDeterministic(t *testing.T) {
	req := Request{
		Method:      "GET",
		URI:         "/test.txt",
		Query:       "",
		PayloadHash: EmptyBodyHash,
		Region:      "us-east-1",
		Date:        "20260101",
		DateTime:    "20260101T000000Z",
		Headers: map[string]string{
			"host":                 "bucket.s3.us-east-1.amazonaws.com",
			"x-amz-date":           "20260101T000000Z",
			"x-amz-content-sha256": EmptyBodyHash,
		},
	}
	creds := Credentials{AccessKey: "AKID", SecretKey: "SECRET"}

	a, err := Sign(req, creds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Sign(req, creds)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Fatalf("signature not deterministic: %q != %q", a, b)
	}
}

func TestSignRejectsCRLFHeader(t *testing.T) {
	req := Request{
		Method:      "GET",
		URI:         "/x",
		PayloadHash: EmptyBodyHash,
		Region:      "us-east-1",
		Date:        "20260101",
		DateTime:    "20260101T000000Z",
		Headers: map[string]string{
			"host":                 "bucket.s3.us-east-1.amazonaws.com\r\nEvil: 1",
			"x-amz-date":           "20260101T000000Z",
			"x-amz-content-sha256": EmptyBodyHash,
		},
	}
	if _, err := Sign(req, Credentials{AccessKey: "a", SecretKey: "b"}); err == nil {
		t.Fatalf("expected error for CRLF in header value")
	}
}

func TestResolveVirtualHosted(t *testing.T) {
	a := Resolve("mybucket", "us-west-2", "", "path/to/obj")
	if a.Host != "mybucket.s3.us-west-2.amazonaws.com" {
		t.Fatalf("unexpected host: %s", a.Host)
	}
	if a.URI != "/path/to/obj" {
		t.Fatalf("unexpected uri: %s", a.URI)
	}
}

func TestResolvePathStyleStripsPort(t *testing.T) {
	a := Resolve("mybucket", "us-east-1", "http://127.0.0.1:9000", "k")
	if a.Host != "127.0.0.1" {
		t.Fatalf("unexpected host: %s", a.Host)
	}
	if a.URI != "/mybucket/k" {
		t.Fatalf("unexpected uri: %s", a.URI)
	}
}
