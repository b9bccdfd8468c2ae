package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of *s3.Client the store uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps images in an S3 bucket under a key prefix.
type S3Store struct {
	client S3API
	bucket string
	region string
	prefix string
}

// NewS3Store builds a store backed by client.
func NewS3Store(client S3API, bucket, region, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, region: region, prefix: prefix}
}

// NewS3StoreFromEnv resolves AWS credentials the default way (environment,
// shared config, instance role) and returns a store for bucket.
func NewS3StoreFromEnv(ctx context.Context, bucket, region, prefix string) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewS3Store(s3.NewFromConfig(cfg), bucket, cfg.Region, prefix), nil
}

// Save uploads img as prefix+key.
func (s *S3Store) Save(ctx context.Context, key string, img Image) error {
	name, err := cleanKey(key)
	if err != nil {
		return err
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.prefix + name),
		Body:   img.Body,
	}
	if img.ContentType != "" {
		input.ContentType = aws.String(img.ContentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("uploading %s to s3://%s: %w", name, s.bucket, err)
	}
	return nil
}

// URL returns the virtual-hosted style URL of key.
func (s *S3Store) URL(key string) string {
	host := s.bucket + ".s3.amazonaws.com"
	if s.region != "" {
		host = fmt.Sprintf("%s.s3.%s.amazonaws.com", s.bucket, s.region)
	}
	return "https://" + host + "/" + strings.TrimLeft(s.prefix+key, "/")
}
