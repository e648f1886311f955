package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds configuration for the S3 exporter.
type S3Config struct {
	// Bucket is the S3 bucket name.
	Bucket string

	// Region is the AWS region (optional, uses SDK default if empty).
	Region string

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible services).
	Endpoint string

	// KeyPrefix is prepended to all record keys (e.g., "calls/").
	// Should end with "/" if non-empty.
	KeyPrefix string

	// AccessKeyID and SecretAccessKey select static credentials, typically
	// for MinIO-style deployments. When empty the SDK credential chain
	// applies.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle forces path-style addressing (required for Localstack/MinIO).
	ForcePathStyle bool

	// Metrics is an optional metrics collector
	Metrics ExporterMetrics
}

// S3Exporter writes one JSON object per archived call to an S3 bucket.
type S3Exporter struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	metrics   ExporterMetrics
}

// NewS3Exporter creates an S3 exporter with an existing client.
func NewS3Exporter(client *s3.Client, config S3Config) *S3Exporter {
	return &S3Exporter{
		client:    client,
		bucket:    config.Bucket,
		keyPrefix: config.KeyPrefix,
		metrics:   config.Metrics,
	}
}

// NewS3ExporterFromConfig creates an S3 exporter by creating an S3 client
// from config. This is the preferred constructor when you don't have an
// existing S3 client.
func NewS3ExporterFromConfig(ctx context.Context, config S3Config) (*S3Exporter, error) {
	// Build AWS SDK config options
	var opts []func(*awsconfig.LoadOptions) error

	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}

	if config.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	// Load AWS configuration
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Build S3 client options
	var s3Opts []func(*s3.Options)

	if config.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
		})
	}

	if config.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	// Create S3 client
	client := s3.NewFromConfig(awsCfg, s3Opts...)

	return NewS3Exporter(client, config), nil
}

// key returns the full S3 key for a call record.
func (e *S3Exporter) key(callID string) string {
	return e.keyPrefix + callID + ".json"
}

// Export uploads the record as {key_prefix}{call_id}.json. Uploads for the
// same call overwrite, so re-driving a call is safe.
func (e *S3Exporter) Export(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal archive record: %w", err)
	}

	start := time.Now()

	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(e.key(rec.CallID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})

	if e.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		e.metrics.RecordExport(status, time.Since(start))
		if err == nil {
			e.metrics.RecordExportBytes(int64(len(body)))
		}
	}

	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}

	return nil
}

// Ensure S3Exporter implements Exporter.
var _ Exporter = (*S3Exporter)(nil)
