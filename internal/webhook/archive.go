package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver stores raw verified webhook payloads for audit. Archival is
// best-effort: failures are logged by the processor and never block
// acknowledgment.
type Archiver interface {
	Archive(ctx context.Context, eventID string, payload []byte) error
}

// S3ArchiverConfig holds configuration for the payload archiver.
type S3ArchiverConfig struct {
	BucketName      string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	KeyPrefix       string // Default: "webhooks"
}

// S3Archiver writes payloads to an S3-compatible bucket, keyed by event id.
type S3Archiver struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	timeNow   func() time.Time // For testability
}

// NewS3Archiver creates an archiver against an S3-compatible endpoint.
func NewS3Archiver(cfg S3ArchiverConfig) (*S3Archiver, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("access key ID is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("secret access key is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "webhooks"
	}

	client := s3.New(s3.Options{
		Region: "auto",
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true,
	})

	return &S3Archiver{
		client:    client,
		bucket:    cfg.BucketName,
		keyPrefix: cfg.KeyPrefix,
		timeNow:   time.Now,
	}, nil
}

// Archive stores the payload under <prefix>/<date>/<eventID>.json.
func (a *S3Archiver) Archive(ctx context.Context, eventID string, payload []byte) error {
	key := fmt.Sprintf("%s/%s/%s.json", a.keyPrefix, a.timeNow().UTC().Format("2006-01-02"), eventID)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive payload for event %s: %w", eventID, err)
	}
	return nil
}
