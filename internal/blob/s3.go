package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds construction parameters for the S3 driver. Endpoint and
// PathStyle are for S3-compatible services such as MinIO.
type S3Config struct {
	Bucket     string
	Region     string
	Endpoint   string
	PathStyle  bool
	PublicBase string // prefix for references; defaults to s3://<bucket>
}

// S3 stores objects in a single bucket.
type S3 struct {
	client     *s3.Client
	bucket     string
	publicBase string
}

// NewS3 loads the default AWS credential chain and returns an S3 store.
func NewS3(ctx context.Context, cfg S3Config, optFns ...func(*config.LoadOptions) error) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := append([]func(*config.LoadOptions) error{config.WithRegion(region)}, optFns...)
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3WithClient(client, cfg), nil
}

// NewS3WithClient wraps an existing client.
func NewS3WithClient(client *s3.Client, cfg S3Config) *S3 {
	base := cfg.PublicBase
	if base == "" {
		base = "s3://" + cfg.Bucket
	}
	return &S3{client: client, bucket: cfg.Bucket, publicBase: base}
}

func (s *S3) Driver() Driver { return DriverS3 }

func (s *S3) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return Info{}, err
	}
	// Emulate create-only via Head first.
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &k}); err == nil {
		return Info{}, fmt.Errorf("blob %s already exists", k)
	}
	// uploads are size-capped by the HTTP layer; a seekable body lets the SDK sign the payload
	body, err := io.ReadAll(r)
	if err != nil {
		return Info{}, fmt.Errorf("read %s: %w", k, err)
	}
	input := &s3.PutObjectInput{Bucket: &s.bucket, Key: &k, Body: bytes.NewReader(body)}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return Info{}, fmt.Errorf("put %s: %w", k, err)
	}
	return Info{Key: k, Ref: joinRef(s.publicBase, k), Size: int64(len(body)), ContentType: opts.ContentType}, nil
}

func (s *S3) Delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
