// Package s3 stores blobs in an S3 compatible bucket (AWS, MinIO). The
// access token embedded in download URLs lives in the object's user metadata
// and is replaced on every upload.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alfianlosari/arinventory/pkg/blobstore"
	"github.com/alfianlosari/arinventory/pkg/config"
	"github.com/alfianlosari/arinventory/pkg/logger"
)

// tokenMetadataKey is stored as x-amz-meta-download-token.
const tokenMetadataKey = "download-token"

type objectAPI interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type uploader interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type Store struct {
	api      objectAPI
	uploader uploader
	bucket   string
	baseURL  string
}

// New loads the default AWS credential chain and points the client at the
// configured bucket. A custom endpoint targets MinIO or another S3 clone.
func New(ctx context.Context, cfg config.S3Config, logg *logger.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	awsConfig, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	store := &Store{
		api:      client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		baseURL:  publicBaseURL(cfg),
	}
	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("s3 health check failed: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "s3 blob store initialized")
	}
	return store, nil
}

func publicBaseURL(cfg config.S3Config) string {
	switch {
	case cfg.PublicBaseURL != "":
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	case cfg.Endpoint != "":
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
}

func (s *Store) Put(ctx context.Context, path, contentType string, data []byte, onProgress blobstore.ProgressFunc) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(path),
		Body:          blobstore.NewProgressReader(bytes.NewReader(data), int64(len(data)), onProgress),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata:      map[string]string{tokenMetadataKey: blobstore.NewToken()},
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	return nil
}

func (s *Store) DownloadURL(ctx context.Context, path string) (string, error) {
	token, err := s.currentToken(ctx, path)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set(blobstore.TokenParam, token)
	return s.baseURL + "/" + url.PathEscape(path) + "?" + q.Encode(), nil
}

// Delete reports ErrNotFound for missing keys even though S3 deletes are idempotent.
func (s *Store) Delete(ctx context.Context, path string) error {
	if _, err := s.currentToken(ctx, path); err != nil {
		return err
	}
	if _, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	}); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// Download fetches the object a download URL points at. URLs carrying a
// superseded token resolve to ErrNotFound.
func (s *Store) Download(ctx context.Context, downloadURL string, w io.Writer) error {
	path, err := s.PathFromURL(downloadURL)
	if err != nil {
		return err
	}
	token, _ := blobstore.TokenFromURL(downloadURL)

	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return blobstore.ErrNotFound
		}
		return fmt.Errorf("download %s: %w", path, err)
	}
	defer func() { _ = out.Body.Close() }()

	if out.Metadata[tokenMetadataKey] != token {
		return blobstore.ErrNotFound
	}
	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("download %s: %w", path, err)
	}
	return nil
}

func (s *Store) PathFromURL(downloadURL string) (string, error) {
	if !strings.HasPrefix(downloadURL, s.baseURL+"/") {
		return "", fmt.Errorf("download url %q does not belong to bucket %s", downloadURL, s.bucket)
	}
	rest := strings.TrimPrefix(downloadURL, s.baseURL+"/")
	rest, _, _ = strings.Cut(rest, "?")
	path, err := url.PathUnescape(rest)
	if err != nil {
		return "", fmt.Errorf("parse download url: %w", err)
	}
	if path == "" {
		return "", fmt.Errorf("download url %q has no object path", downloadURL)
	}
	return path, nil
}

func (s *Store) Ping(ctx context.Context) error {
	_, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

func (s *Store) currentToken(ctx context.Context, path string) (string, error) {
	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return "", blobstore.ErrNotFound
		}
		return "", fmt.Errorf("head %s: %w", path, err)
	}
	token := out.Metadata[tokenMetadataKey]
	if token == "" {
		return "", fmt.Errorf("object %s has no download token", path)
	}
	return token, nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}
