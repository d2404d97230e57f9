package audit

import (
	"bytes"
	"context"
	"log/syslog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	jsoniter "github.com/json-iterator/go"

	"github.com/s3sentry/s3sentry/internal/config"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Sink writes a batch of audit events to a durable destination.
type Sink interface {
	Write(events []Event) error
	Close() error
}

// NewSink builds the Sink named by cfg.Output ("file", "syslog", or "s3").
func NewSink(cfg *config.AuditConfig) (Sink, error) {
	switch cfg.Output {
	case "syslog":
		return newSyslogSink(cfg)
	case "s3":
		return newS3Sink(cfg)
	default:
		return newFileSink(cfg)
	}
}

// fileSink appends newline-delimited JSON to a local file, matching the
// plain structured-log convention used elsewhere in the proxy.
type fileSink struct {
	f *os.File
}

func newFileSink(cfg *config.AuditConfig) (*fileSink, error) {
	path := cfg.FilePath
	if path == "" {
		path = "audit.log"
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileSink{f: f}, nil
}

func (s *fileSink) Write(events []Event) error {
	var buf bytes.Buffer
	for _, e := range events {
		data, err := jsonAPI.Marshal(e)
		if err != nil {
			continue
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	_, err := s.f.Write(buf.Bytes())
	return err
}

func (s *fileSink) Close() error { return s.f.Close() }

// syslogSink writes each event as one RFC5424-framed message.
type syslogSink struct {
	w *syslog.Writer
}

func newSyslogSink(cfg *config.AuditConfig) (*syslogSink, error) {
	network := cfg.SyslogNetwork
	if network == "" {
		network = "udp"
	}
	w, err := syslog.Dial(network, cfg.SyslogAddress, syslog.LOG_INFO|syslog.LOG_AUTH, "s3sentry-audit")
	if err != nil {
		return nil, err
	}
	return &syslogSink{w: w}, nil
}

func (s *syslogSink) Write(events []Event) error {
	for _, e := range events {
		data, err := jsonAPI.Marshal(e)
		if err != nil {
			continue
		}
		if err := s.w.Info(string(data)); err != nil {
			return err
		}
	}
	return nil
}

func (s *syslogSink) Close() error { return s.w.Close() }

// s3Sink mirrors audit batches into an S3 bucket as newline-delimited JSON
// objects, one per flush, using aws-sdk-go-v2's own request signing (the
// dataplane's hand-rolled signer is deliberately not reused here, since
// this is a control-plane write, not a proxied client request).
type s3Sink struct {
	client *s3.Client
	bucket string
	prefix string
}

func newS3Sink(cfg *config.AuditConfig) (*s3Sink, error) {
	awsCfg, err := loadAWSConfig(cfg)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
	})
	return &s3Sink{client: client, bucket: cfg.S3Bucket, prefix: cfg.S3Prefix}, nil
}

func (s *s3Sink) Write(events []Event) error {
	var buf bytes.Buffer
	for _, e := range events {
		data, err := jsonAPI.Marshal(e)
		if err != nil {
			continue
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	key := s.prefix + time.Now().UTC().Format("2006/01/02/15-04-05.999999999") + ".ndjson"
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	return err
}

func (s *s3Sink) Close() error { return nil }
