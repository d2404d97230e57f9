// Package sigv4 implements AWS Signature Version 4 request signing
// (HMAC-SHA256) against S3-compatible backends. The signer is pure and
// deterministic: identical inputs always produce identical output.
package sigv4

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// ErrInvalidHeaderValue is returned when a header value to be signed
// contains CR/LF or is not valid UTF-8 (spec §4.1).
type ErrInvalidHeaderValue struct {
	Header string
}

func (e *ErrInvalidHeaderValue) Error() string {
	return fmt.Sprintf("sigv4: invalid header value for %q", e.Header)
}

// Credentials identifies the signing principal.
type Credentials struct {
	AccessKey string
	SecretKey string
}

// Request is the minimal set of inputs the signer needs. Headers must
// already include "host", "x-amz-date", and "x-amz-content-sha256".
type Request struct {
	Method      string
	URI         string // S3-addressing form, already path- or vhost-style
	Query       string // canonical query string, already encoded
	Headers     map[string]string
	PayloadHash string // hex SHA-256 of the body; empty-body hash for GET/HEAD
	Region      string
	Date        string // YYYYMMDD
	DateTime    string // YYYYMMDDTHHMMSSZ, same UTC instant as Date
}

const service = "s3"
const algorithm = "AWS4-HMAC-SHA256"

// Sign computes the canonical request, string-to-sign, and signature, and
// returns the Authorization header value (spec §4.1 steps 1-5).
func Sign(req Request, creds Credentials) (string, error) {
	signedHeaders, canonicalHeaders, err := canonicalizeHeaders(req.Headers)
	if err != nil {
		return "", err
	}

	canonicalRequest := strings.Join([]string{
		req.Method,
		req.URI,
		req.Query,
		canonicalHeaders,
		"",
		signedHeaders,
		req.PayloadHash,
	}, "\n")

	scope := fmt.Sprintf("%s/%s/%s/aws4_request", req.Date, req.Region, service)
	stringToSign := strings.Join([]string{
		algorithm,
		req.DateTime,
		scope,
		hexSHA256([]byte(canonicalRequest)),
	}, "\n")

	signingKey := deriveSigningKey(creds.SecretKey, req.Date, req.Region)
	signature := hex.EncodeToString(hmacSHA256(signingKey, stringToSign))

	return fmt.Sprintf(
		"%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm, creds.AccessKey, scope, signedHeaders, signature,
	), nil
}

// canonicalizeHeaders lowercases header names, sorts them, trims values, and
// returns (signed-headers, canonical-headers-block).
func canonicalizeHeaders(headers map[string]string) (signedHeaders, canonicalHeaders string, err error) {
	names := make([]string, 0, len(headers))
	lower := make(map[string]string, len(headers))
	for name, value := range headers {
		if !isValidHeaderValue(value) {
			return "", "", &ErrInvalidHeaderValue{Header: name}
		}
		ln := strings.ToLower(name)
		lower[ln] = strings.TrimSpace(value)
		names = append(names, ln)
	}
	sort.Strings(names)

	var headerLines strings.Builder
	for _, n := range names {
		headerLines.WriteString(n)
		headerLines.WriteByte(':')
		headerLines.WriteString(lower[n])
		headerLines.WriteByte('\n')
	}
	return strings.Join(names, ";"), headerLines.String(), nil
}

func isValidHeaderValue(v string) bool {
	if !utf8.ValidString(v) {
		return false
	}
	for i := 0; i < len(v); i++ {
		if v[i] == '\r' || v[i] == '\n' {
			return false
		}
	}
	return true
}

func deriveSigningKey(secret, date, region string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), date)
	kRegion := hmacSHA256(kDate, region)
	kService := hmacSHA256(kRegion, service)
	return hmacSHA256(kService, "aws4_request")
}

func hmacSHA256(key []byte, data string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

func hexSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// EmptyBodyHash is the hex SHA-256 of an empty payload, used for GET/HEAD
// requests that carry no body.
const EmptyBodyHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// HashPayload returns the hex SHA-256 of body.
func HashPayload(body []byte) string {
	return hexSHA256(body)
}
