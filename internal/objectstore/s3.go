package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config configures an S3 or R2 bucket.
type S3Config struct {
	// Endpoint overrides the AWS endpoint, e.g. https://<account>.r2.cloudflarestorage.com.
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	// PublicBaseURL is the prefix of returned URLs. Defaults to Endpoint.
	PublicBaseURL string
}

// S3 stores objects through the AWS SDK.
type S3 struct {
	client *s3.Client
	bucket string
	base   string
}

// NewS3 loads AWS configuration with static credentials and builds a client.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	base := cfg.PublicBaseURL
	if base == "" {
		base = cfg.Endpoint
	}
	if base == "" {
		base = fmt.Sprintf("https://s3.%s.amazonaws.com", region)
	}
	return &S3{client: client, bucket: cfg.Bucket, base: base}, nil
}

// Bucket returns the configured bucket name.
func (s *S3) Bucket() string { return s.bucket }

// Put uploads data into the bucket.
func (s *S3) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return joinURL(s.base, s.bucket, key), nil
}

// Get downloads the object bytes.
func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer out.Body.Close()
	buf, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return buf, nil
}
