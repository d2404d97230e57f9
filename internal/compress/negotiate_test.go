package compress

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/s3sentry/s3sentry/internal/config"
)

func TestCompress(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Compress Suite")
}

var _ = Describe("content negotiation", func() {
	var cfg config.CompressionConfig

	Context("when compression is disabled", func() {
		BeforeEach(func() {
			cfg = config.CompressionConfig{Enabled: false, Accepted: []string{"gzip"}}
		})

		It("never negotiates an encoding", func() {
			Expect(Negotiate("gzip", cfg)).To(Equal(Algorithm("")))
		})
	})

	Context("when compression is enabled", func() {
		BeforeEach(func() {
			cfg = config.CompressionConfig{Enabled: true, Accepted: []string{"gzip", "br"}}
		})

		It("prefers the highest q-value among accepted encodings", func() {
			Expect(Negotiate("gzip;q=0.5, br;q=0.9", cfg)).To(Equal(Brotli))
		})

		It("skips encodings explicitly weighted to zero", func() {
			Expect(Negotiate("gzip;q=0", config.CompressionConfig{Enabled: true, Accepted: []string{"gzip"}})).To(Equal(Algorithm("")))
		})

		It("is idempotent for the same Accept-Encoding header", func() {
			header := "gzip;q=0.5, br;q=0.9, *;q=0.1"
			Expect(Negotiate(header, cfg)).To(Equal(Negotiate(header, cfg)))
		})
	})
})
