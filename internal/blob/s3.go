package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	lru "github.com/hashicorp/golang-lru/v2"
)

// signedURLCacheSize bounds the presigned-URL cache. Bulk runs reuse the
// same key at most once, but the HTTP surface may re-sign hot images.
const signedURLCacheSize = 512

type cachedURL struct {
	url     string
	expires time.Time
}

// S3Options configures an S3Store.
type S3Options struct {
	Bucket string
	Prefix string
	Region string
	// PublicBaseURL overrides the default virtual-hosted URL, for
	// CDN-fronted buckets.
	PublicBaseURL string
}

// S3Store stores images in an S3 bucket. Presigned URLs are cached until
// shortly before they expire so repeated signing of the same key does
// not hit the SDK every time.
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	opts    S3Options
	urls    *lru.Cache[string, cachedURL]
	logger  *slog.Logger
	now     func() time.Time
}

var _ Store = (*S3Store)(nil)

// NewS3Store loads the default AWS config and prepares the store. The
// bucket is not touched here; call BucketExists before the first upload.
func NewS3Store(ctx context.Context, opts S3Options, logger *slog.Logger) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("storage bucket must be configured")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	if opts.Prefix != "" && !strings.HasSuffix(opts.Prefix, "/") {
		opts.Prefix += "/"
	}

	client := s3.NewFromConfig(cfg)
	urls, err := lru.New[string, cachedURL](signedURLCacheSize)
	if err != nil {
		return nil, err
	}

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		opts:    opts,
		urls:    urls,
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (s *S3Store) key(key string) string {
	return s.opts.Prefix + key
}

// Put uploads the object.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(s.key(key)),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	s.logger.Debug("blob_uploaded",
		slog.String("key", key),
		slog.Int("bytes", len(data)))
	return nil
}

// SignedURL mints a presigned GET URL for key, serving from the cache
// while the previous URL still has at least a minute of life left.
func (s *S3Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	full := s.key(key)
	if c, ok := s.urls.Get(full); ok && s.now().Add(time.Minute).Before(c.expires) {
		return c.url, nil
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(full),
	}, func(po *s3.PresignOptions) {
		po.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL for %s: %w", key, err)
	}

	s.urls.Add(full, cachedURL{url: req.URL, expires: s.now().Add(ttl)})
	return req.URL, nil
}

// PublicURL builds the unauthenticated URL for key.
func (s *S3Store) PublicURL(key string) string {
	full := s.key(key)
	if s.opts.PublicBaseURL != "" {
		return strings.TrimSuffix(s.opts.PublicBaseURL, "/") + "/" + full
	}
	if s.opts.Region != "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.opts.Bucket, s.opts.Region, full)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.opts.Bucket, full)
}

// BucketExists performs a HeadBucket call and maps missing-bucket
// responses to ErrBucketNotFound.
func (s *S3Store) BucketExists(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.opts.Bucket),
	})
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchBucket":
			return fmt.Errorf("%w: %s", ErrBucketNotFound, s.opts.Bucket)
		}
	}
	return fmt.Errorf("failed to check bucket %s: %w", s.opts.Bucket, err)
}
