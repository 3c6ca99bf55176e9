// Package blobstore wraps S3 as the Blob Store Adapter (spec §4.1):
// presigned URL issuance, object upload/download, and plain-text
// read/write for user scripts and generated artifacts.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrObjectNotFound is returned when a requested key does not exist.
var ErrObjectNotFound = errors.New("blobstore: object not found")

// Config configures a new Store.
type Config struct {
	Region          string
	Bucket          string
	Endpoint        string // non-empty for S3-compatible backends (minio, R2, ...)
	PublicEndpoint  string // rewrite target for presigned URLs handed to clients
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
	PresignTTL      time.Duration
}

// Store is the Blob Store Adapter.
type Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
	bucket   string
	endpoint string
	public   string
	ttl      time.Duration
}

// New builds a Store from static credentials and an optional
// S3-compatible endpoint override.
func New(ctx context.Context, cfg Config) (*Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("blobstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &Store{
		client:   client,
		uploader: manager.NewUploader(client),
		presign:  s3.NewPresignClient(client),
		bucket:   cfg.Bucket,
		endpoint: cfg.Endpoint,
		public:   cfg.PublicEndpoint,
		ttl:      ttl,
	}, nil
}

// Upload streams r to key, returning a presigned GET URL for it.
func (s *Store) Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("blobstore: upload %s: %w", key, err)
	}
	return s.PresignGet(ctx, key)
}

// Download retrieves the object at key into memory. Used for inputs
// small enough to buffer (scripts, manifests); large media objects are
// downloaded to the working directory via DownloadToFile.
func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("blobstore: get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("blobstore: read %s: %w", key, err)
	}
	return data, nil
}

// DownloadToFile streams the object at key into w using the S3 download
// manager, which issues ranged concurrent gets for large objects (source
// videos in this domain can run into the gigabytes).
func (s *Store) DownloadToFile(ctx context.Context, key string, w io.WriterAt) error {
	downloader := manager.NewDownloader(s.client)
	_, err := downloader.Download(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return fmt.Errorf("blobstore: download %s: %w", key, err)
	}
	return nil
}

// ReadText is a convenience wrapper over Download for plain-text
// objects (user-supplied scripts, generated narration scripts).
func (s *Store) ReadText(ctx context.Context, key string) (string, error) {
	data, err := s.Download(ctx, key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteText uploads a plain-text object and returns its presigned URL.
func (s *Store) WriteText(ctx context.Context, key, text string) (string, error) {
	return s.Upload(ctx, key, bytes.NewReader([]byte(text)), "text/plain; charset=utf-8")
}

// Exists reports whether an object is present at key.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("blobstore: head %s: %w", key, err)
	}
	return true, nil
}

// Delete removes the object at key.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("blobstore: delete %s: %w", key, err)
	}
	return nil
}

// PresignGet issues a presigned GET URL for key, rewriting the
// internal endpoint hostname to the configured public endpoint (the
// output bucket is reachable from the public internet through a
// different hostname than the one this adapter uses internally).
func (s *Store) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("blobstore: presign %s: %w", key, err)
	}
	return s.rewriteToPublic(req.URL), nil
}

func (s *Store) rewriteToPublic(internalURL string) string {
	if s.public == "" || s.endpoint == "" {
		return internalURL
	}
	if len(internalURL) >= len(s.endpoint) && internalURL[:len(s.endpoint)] == s.endpoint {
		return s.public + internalURL[len(s.endpoint):]
	}
	return internalURL
}

func isNotFound(err error) bool {
	var nf *s3.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *s3.NoSuchKey
	return errors.As(err, &nsk)
}

// Key layout helpers, matching the object-store layout named in spec §4.8.

// SourceVideoKey returns the key a source video is uploaded/read at.
func SourceVideoKey(videoID string) string {
	return fmt.Sprintf("videos/%s", videoID)
}

// UserScriptKey returns the key a user-supplied script lives at.
func UserScriptKey(jobID string) string {
	return fmt.Sprintf("videos/%s/script.txt", jobID)
}

// OutputVideoKey returns the key the rendered recap is uploaded to.
func OutputVideoKey(jobID string) string {
	return fmt.Sprintf("output/%s/final_recap.mp4", jobID)
}

// OutputScriptKey returns the key the generated narration script is
// uploaded to.
func OutputScriptKey(jobID string) string {
	return fmt.Sprintf("output/%s/script.txt", jobID)
}
