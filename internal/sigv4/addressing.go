package sigv4

import (
	"fmt"
	"net"
	"strings"
)

// Addressing resolves the Host header and URI path for a replica, per
// spec §4.1: AWS-hosted replicas use virtual-hosted style
// (<bucket>.s3.<region>.amazonaws.com, URI "/<key>"); replicas with a
// custom endpoint use path style (endpoint host without port, URI
// "/<bucket>/<key>").
type Addressing struct {
	Host string
	URI  string
}

// Resolve computes the Host/URI pair that is signed and sent as the upstream
// request's Host header and path. endpoint is empty for AWS-hosted backends.
func Resolve(bucket, region, endpoint, objectKey string) Addressing {
	key := "/" + strings.TrimPrefix(objectKey, "/")
	if endpoint == "" {
		return Addressing{
			Host: fmt.Sprintf("%s.s3.%s.amazonaws.com", bucket, region),
			URI:  key,
		}
	}
	host := endpoint
	if h, _, err := net.SplitHostPort(stripScheme(endpoint)); err == nil {
		host = h
	} else {
		host = stripScheme(endpoint)
	}
	return Addressing{
		Host: host,
		URI:  "/" + bucket + key,
	}
}

func stripScheme(endpoint string) string {
	if i := strings.Index(endpoint, "://"); i >= 0 {
		return endpoint[i+3:]
	}
	return endpoint
}
