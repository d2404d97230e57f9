package audit

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/s3sentry/s3sentry/internal/config"
)

// loadAWSConfig builds the aws-sdk-go-v2 config used solely for mirroring
// audit batches to S3; it relies on the SDK's own credential chain
// (environment, shared config, IMDS) rather than the replica credentials
// in config.ReplicaConfig, since the audit bucket is a separate, operator-
// owned destination.
func loadAWSConfig(cfg *config.AuditConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	return awsconfig.LoadDefaultConfig(context.Background(), opts...)
}
