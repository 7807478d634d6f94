// Package s3assets stores uploaded asset bytes in an S3 bucket.
package s3assets

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the subset of the S3 client used here.
type PutObjectAPI interface {
	// PutObject uploads an object to S3
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Backend implements store.AssetBackend on top of S3.
type Backend struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// New creates a Backend using the default AWS credential chain.
//
// Example:
//
//	b, err := s3assets.New(ctx, "my-bucket", "arena/", "eu-west-1")
func New(ctx context.Context, bucket, prefix, region string) (*Backend, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	var loadOpts []func(*config.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewWithClient(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// NewWithClient creates a Backend around an existing client.
func NewWithClient(client PutObjectAPI, bucket, prefix string) *Backend {
	return &Backend{client: client, bucket: bucket, prefix: prefix}
}

// Put uploads data under prefix/key and returns its s3:// location.
func (b *Backend) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	objectKey := path.Join(b.prefix, key)

	input := &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := b.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to put s3://%s/%s: %w", b.bucket, objectKey, err)
	}
	return fmt.Sprintf("s3://%s/%s", b.bucket, objectKey), nil
}
