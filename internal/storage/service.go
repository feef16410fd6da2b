// Package storage issues pre-signed credentials for direct vault-blob uploads
// and downloads against an S3-compatible object store. The store never sees
// plaintext: callers upload sealed blobs to the signed URL themselves.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MIME types accepted for vault objects. Sealed blobs are opaque bytes; the
// remaining types cover raw-document uploads scanned client-side.
const (
	MIMEOctetStream = "application/octet-stream"
	MIMETextPlain   = "text/plain"
	MIMEJSON        = "application/json"
	MIMEPDF         = "application/pdf"
	MIMEImagePNG    = "image/png"
	MIMEImageJPEG   = "image/jpeg"
)

// Validation errors.
var (
	ErrUnsupportedType = errors.New("unsupported content type")
	ErrBlobTooLarge    = errors.New("blob size exceeds maximum allowed")
	ErrEmptyKey        = errors.New("object key cannot be empty")
	ErrEmptyFileName   = errors.New("file name cannot be empty")
)

// AllowedContentTypes is the set of MIME types the presign service accepts.
var AllowedContentTypes = map[string]bool{
	MIMEOctetStream: true,
	MIMETextPlain:   true,
	MIMEJSON:        true,
	MIMEPDF:         true,
	MIMEImagePNG:    true,
	MIMEImageJPEG:   true,
}

// UploadCredential is a time-limited write grant for one object key.
type UploadCredential struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// DownloadCredential is a time-limited read grant for one object key.
type DownloadCredential struct {
	URL       string    `json:"url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service generates pre-signed PUT and GET URLs for the vault bucket.
type Service struct {
	presign        *s3.PresignClient
	bucket         string
	maxSizeBytes   int64
	uploadExpiry   time.Duration
	downloadExpiry time.Duration
	timeNow        func() time.Time // for testability
}

// Config holds configuration for the storage service.
type Config struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // optional, for S3-compatible stores
	MaxSizeMB       int    // default 15
	UploadExpiry    time.Duration // default 60s, the write-credential lifetime
	DownloadExpiry  time.Duration // default 1h
}

// NewService creates the presign service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("access key ID is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("secret access key is required")
	}

	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 15
	}
	if cfg.UploadExpiry <= 0 {
		cfg.UploadExpiry = 60 * time.Second
	}
	if cfg.DownloadExpiry <= 0 {
		cfg.DownloadExpiry = time.Hour
	}

	opts := s3.Options{
		Region: cfg.Region,
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	client := s3.New(opts)

	return &Service{
		presign:        s3.NewPresignClient(client),
		bucket:         cfg.Bucket,
		maxSizeBytes:   int64(cfg.MaxSizeMB) * 1024 * 1024,
		uploadExpiry:   cfg.UploadExpiry,
		downloadExpiry: cfg.DownloadExpiry,
		timeNow:        time.Now,
	}, nil
}

// ValidateContentType checks the MIME type against the allowlist.
func ValidateContentType(contentType string) error {
	if !AllowedContentTypes[contentType] {
		return ErrUnsupportedType
	}
	return nil
}

// ValidateSize checks a declared blob size against the configured maximum.
func (s *Service) ValidateSize(sizeBytes int64) error {
	if sizeBytes <= 0 {
		return errors.New("blob size must be positive")
	}
	if sizeBytes > s.maxSizeBytes {
		return ErrBlobTooLarge
	}
	return nil
}

// GenerateObjectKey creates a unique vault key for a file name.
// Pattern: vault-{unix ms}-{sanitized name}.
func (s *Service) GenerateObjectKey(fileName string) (string, error) {
	sanitized := sanitizeFileName(fileName)
	if sanitized == "" {
		return "", ErrEmptyFileName
	}
	return fmt.Sprintf("vault-%d-%s", s.timeNow().UnixMilli(), sanitized), nil
}

// sanitizeFileName keeps alphanumerics, dots, hyphens, and underscores.
func sanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), ".")
}

// SignUpload issues a pre-signed PUT URL for a fresh object key derived from
// fileName.
func (s *Service) SignUpload(ctx context.Context, fileName, contentType string) (*UploadCredential, error) {
	if err := ValidateContentType(contentType); err != nil {
		return nil, err
	}

	key, err := s.GenerateObjectKey(fileName)
	if err != nil {
		return nil, err
	}

	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.uploadExpiry))
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}

	return &UploadCredential{
		URL:       req.URL,
		Key:       key,
		ExpiresAt: s.timeNow().Add(s.uploadExpiry),
	}, nil
}

// SignDownload issues a pre-signed GET URL for an existing object key.
func (s *Service) SignDownload(ctx context.Context, key string) (*DownloadCredential, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.downloadExpiry))
	if err != nil {
		return nil, fmt.Errorf("presign download: %w", err)
	}

	return &DownloadCredential{
		URL:       req.URL,
		Key:       key,
		ExpiresAt: s.timeNow().Add(s.downloadExpiry),
	}, nil
}
