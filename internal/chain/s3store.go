package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectStore is the narrow capability BlockSource needs from the object
// store client.
type ObjectStore interface {
	// Get fetches the object at key. ok is false (err nil) when the key
	// does not exist — the caller then tries the next source or falls
	// back to RPC.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
}

// S3ObjectStore fetches block payloads from GCS/S3-compatible object
// storage via the AWS SDK (the bucket is configured as
// INDEXER_GCS_BUCKET; GCS's S3-compatible XML API is reached through the
// same client).
type S3ObjectStore struct {
	client *s3.Client
	bucket string

	maxAttempts int
	backoff     time.Duration
}

// NewS3ObjectStore builds an S3ObjectStore for bucket using the default
// AWS credential chain (env vars, shared config, or ADC when running on
// GCP with workload identity federation).
func NewS3ObjectStore(ctx context.Context, bucket string) (*S3ObjectStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &S3ObjectStore{
		client:      s3.NewFromConfig(cfg),
		bucket:      bucket,
		maxAttempts: 3,
		backoff:     200 * time.Millisecond,
	}, nil
}

// Get fetches key from the bucket. A NoSuchKey/404 response is reported
// as (nil, false, nil) rather than an error; any other error is retried
// with exponential backoff and then surfaced.
func (s *S3ObjectStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var lastErr error
	wait := s.backoff

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err == nil {
			defer out.Body.Close()
			data, readErr := io.ReadAll(out.Body)
			if readErr != nil {
				lastErr = fmt.Errorf("reading object body for %s: %w", key, readErr)
				continue
			}
			return data, true, nil
		}

		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, false, nil
		}
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, false, nil
		}

		lastErr = err
		if attempt < s.maxAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, false, ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
		}
	}
	return nil, false, fmt.Errorf("fetching object %s after %d attempts: %w", key, s.maxAttempts, lastErr)
}
