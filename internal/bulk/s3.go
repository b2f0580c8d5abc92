package bulk

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/avolkov/featurepipe/internal/logging"
	"github.com/avolkov/featurepipe/internal/model"
)

// S3Sink writes the derived-feature CSV to an S3-compatible bucket. The
// object is uploaded under a staging key and copied over the final key only
// after the upload fully succeeds, so an aborted run leaves the previous
// output object untouched.
type S3Sink struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Sink creates an S3 sink. If endpoint is non-empty, path-style
// addressing is enabled (for MinIO and similar).
func NewS3Sink(ctx context.Context, bucket, key, region, endpoint string) (*S3Sink, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Sink{
		client: s3.NewFromConfig(cfg, s3opts...),
		bucket: bucket,
		key:    key,
	}, nil
}

// Write uploads the full stream to a staging key and commits it by copy.
func (s *S3Sink) Write(ctx context.Context, recs []model.DerivedRecord) error {
	data, err := Encode(recs)
	if err != nil {
		return fmt.Errorf("encode bulk output: %w", err)
	}

	staging := s.key + ".staging"
	contentType := "text/csv"
	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(staging),
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	}); err != nil {
		return fmt.Errorf("s3 put staging object: %w", err)
	}

	// Commit: server-side copy onto the final key, then drop the staging
	// object. CopyObject is atomic per object, so readers never observe a
	// partial overwrite.
	if _, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(s.key),
		CopySource: aws.String(url.PathEscape(s.bucket + "/" + staging)),
	}); err != nil {
		return fmt.Errorf("s3 commit object: %w", err)
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(staging),
	}); err != nil {
		// The committed output is durable; a leftover staging object is
		// harmless and overwritten on the next run.
		logging.L(ctx).Warn("failed to delete staging object", "key", staging, "error", err)
	}

	logging.L(ctx).Info("bulk output committed",
		"bucket", s.bucket, "key", s.key, "records", len(recs))
	return nil
}
