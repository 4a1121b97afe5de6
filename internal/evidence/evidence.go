// Package evidence stores checklist photo evidence in S3-compatible storage.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// MaxPhotoSize caps a single upload.
const MaxPhotoSize = 10 << 20

var (
	ErrDisabled        = errors.New("evidence storage not configured")
	ErrUnsupportedType = errors.New("unsupported evidence content type")
	ErrTooLarge        = errors.New("evidence photo too large")
)

var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config holds S3-compatible storage configuration.
type Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

type Store struct {
	bucket string
	client s3Client
}

// New returns a store for cfg. Without a bucket and credentials the store is
// disabled and every call returns ErrDisabled.
func New(cfg Config) *Store {
	s := &Store{bucket: cfg.Bucket}
	if cfg.Bucket != "" && cfg.AccessKey != "" && cfg.SecretKey != "" {
		s.client = newS3Client(cfg)
	}
	return s
}

func newS3Client(cfg Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func (s *Store) Enabled() bool {
	return s != nil && s.client != nil
}

// Key builds the object key for a photo of one checklist item.
func Key(orgID, taskID, itemID int64, ext string) string {
	return path.Join(
		fmt.Sprintf("org/%d/tasks/%d/items/%d", orgID, taskID, itemID),
		uuid.NewString()+ext,
	)
}

// Put uploads one photo and returns its key.
func (s *Store) Put(ctx context.Context, orgID, taskID, itemID int64, contentType string, body io.Reader, size int64) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	ext, ok := allowedTypes[strings.ToLower(mediaType)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, mediaType)
	}
	if size > MaxPhotoSize {
		return "", ErrTooLarge
	}

	key := Key(orgID, taskID, itemID, ext)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(mediaType),
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("upload evidence: %w", err)
	}
	return key, nil
}

// Get opens a stored photo. The caller closes the reader.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if !s.Enabled() {
		return nil, "", ErrDisabled
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("download evidence: %w", err)
	}
	return out.Body, aws.ToString(out.ContentType), nil
}

// OwnedBy reports whether key belongs to the given organisation and task.
func OwnedBy(key string, orgID, taskID int64) bool {
	return strings.HasPrefix(key, fmt.Sprintf("org/%d/tasks/%d/", orgID, taskID))
}
