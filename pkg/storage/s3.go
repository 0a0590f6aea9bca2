package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds the S3 connection settings.
type Config struct {
	// Endpoint is a host[:port] or URL, e.g. "s3.amazonaws.com".
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UseSSL          bool
}

// DefaultConfig returns the AWS S3 defaults.
func DefaultConfig() Config {
	return Config{
		Endpoint: "s3.amazonaws.com",
		Region:   "us-east-1",
		UseSSL:   true,
	}
}

// S3Writer writes objects with the minio-go SDK.
type S3Writer struct {
	client    *minio.Client
	transport *http.Transport
	logger    zerolog.Logger
}

// NewS3Writer creates a writer for the given S3 endpoint.
func NewS3Writer(cfg Config) (*S3Writer, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("s3 credentials are required")
	}

	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid s3 endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	transport, err := minio.DefaultTransport(useSSL)
	if err != nil {
		return nil, fmt.Errorf("create s3 transport: %w", err)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:    useSSL,
		Region:    cfg.Region,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &S3Writer{
		client:    client,
		transport: transport,
		logger:    log.With().Str("component", "s3-writer").Logger(),
	}, nil
}

// PutObject uploads r to bucket/key, replacing any existing object. With
// size -1 the SDK performs a multipart upload; an error returned by r aborts
// the upload without creating the object.
func (s *S3Writer) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	if err := validateTarget(bucket, key); err != nil {
		return err
	}

	info, err := s.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return classifyMinioError(err)
	}

	s.logger.Info().
		Str("bucket", bucket).
		Str("key", key).
		Int64("size", info.Size).
		Str("etag", info.ETag).
		Msg("Object written")

	return nil
}

// GetObject reads an object back.
func (s *S3Writer) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyMinioError(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classifyMinioError(err)
	}
	return data, nil
}

// EnsureBucket creates bucket when it does not exist.
func (s *S3Writer) EnsureBucket(ctx context.Context, bucket, region string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return classifyMinioError(err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return classifyMinioError(err)
	}
	return nil
}

// Close releases idle connections held by the SDK transport.
func (s *S3Writer) Close() error {
	s.transport.CloseIdleConnections()
	return nil
}

// classifyMinioError maps SDK error responses to readable errors.
func classifyMinioError(err error) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey":
		return fmt.Errorf("%w: %s", ErrObjectNotFound, resp.Message)
	case "NoSuchBucket":
		return fmt.Errorf("bucket not found: %w", err)
	case "AccessDenied":
		return fmt.Errorf("permission denied: %w", err)
	case "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return fmt.Errorf("invalid credentials: %w", err)
	}
	return err
}
