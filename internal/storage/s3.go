package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Compile-time check that S3Storage implements Storage.
var _ Storage = (*S3Storage)(nil)

// DefaultPresignTTL is used when neither the caller nor the config sets one.
const DefaultPresignTTL = time.Hour

// S3Config holds the configuration for S3 storage.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional: for custom S3-compatible endpoints
	AccessKeyID     string // Optional: AWS access key ID
	SecretAccessKey string // Optional: AWS secret access key
	PresignTTL      time.Duration
}

// S3Storage stores job objects in an S3 bucket and signs URLs for them.
type S3Storage struct {
	client   *s3.Client
	presign  *s3.PresignClient
	bucket   string
	region   string
	endpoint string
	ttl      time.Duration
	now      func() time.Time
}

// NewS3Storage creates a new S3Storage instance.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, ErrBucketRequired
	}
	if cfg.Region == "" {
		return nil, ErrRegionRequired
	}
	if cfg.PresignTTL > MaxPresignTTL {
		return nil, ErrInvalidTTL
	}

	var configOpts []func(*config.LoadOptions) error
	configOpts = append(configOpts, config.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	var clientOpts []func(*s3.Options)
	if endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)

	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}

	return &S3Storage{
		client:   client,
		presign:  s3.NewPresignClient(client),
		bucket:   cfg.Bucket,
		region:   cfg.Region,
		endpoint: endpoint,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// Bucket returns the configured bucket name.
func (s *S3Storage) Bucket() string {
	return s.bucket
}

// Upload stores data in S3 and returns the object URL.
func (s *S3Storage) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", ErrKeyRequired
	}
	if len(data) == 0 {
		return "", ErrEmptyObject
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("upload to S3: %w", err)
	}
	return s.objectURL(key), nil
}

// PresignGet returns a presigned GET URL for key.
func (s *S3Storage) PresignGet(ctx context.Context, key string, ttl time.Duration) (*PresignedURL, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return nil, ErrKeyRequired
	}
	ttl, err := s.lifetime(ttl)
	if err != nil {
		return nil, err
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return nil, fmt.Errorf("presign S3 get: %w", err)
	}
	return &PresignedURL{
		URL:     req.URL,
		Method:  req.Method,
		Expires: s.now().Add(ttl),
		Header:  req.SignedHeader,
	}, nil
}

// PresignPut returns a presigned PUT URL for key. The signature covers the
// host only. When contentType is set it is returned in Header so uploaders
// send it and S3 stores the object with that type, but S3 does not reject a
// PUT that sends a different one.
func (s *S3Storage) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (*PresignedURL, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return nil, ErrKeyRequired
	}
	ttl, err := s.lifetime(ttl)
	if err != nil {
		return nil, err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	req, err := s.presign.PresignPutObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return nil, fmt.Errorf("presign S3 put: %w", err)
	}
	header := req.SignedHeader.Clone()
	if header == nil {
		header = http.Header{}
	}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return &PresignedURL{
		URL:     req.URL,
		Method:  req.Method,
		Expires: s.now().Add(ttl),
		Header:  header,
	}, nil
}

func (s *S3Storage) lifetime(ttl time.Duration) (time.Duration, error) {
	if ttl <= 0 {
		return s.ttl, nil
	}
	if ttl > MaxPresignTTL {
		return 0, ErrInvalidTTL
	}
	return ttl, nil
}

func (s *S3Storage) objectURL(key string) string {
	if s.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}
