package objectclient

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	cfg "github.com/markdave123-py/corpora-indexer/internal/config"
	"github.com/markdave123-py/corpora-indexer/internal/core"
	"github.com/markdave123-py/corpora-indexer/internal/logger"
)

var _ core.ObjectClient = (*S3Client)(nil)

type S3Client struct {
	client *s3.Client
	region string
}

// NewS3Client builds an S3 client. A custom endpoint switches to path-style
// addressing so MinIO deployments work unchanged.
func NewS3Client(ctx context.Context, cfg *cfg.Config) (*S3Client, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name not set")
	}
	if cfg.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AwsRegion)}
	if cfg.AwsAccessKey != "" && cfg.AwsSecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Info("object storage client ready", "region", cfg.AwsRegion, "endpoint", cfg.S3Endpoint)

	return &S3Client{
		client: client,
		region: cfg.AwsRegion,
	}, nil
}

// FetchToFile downloads the object next to dst and renames it into place,
// so an interrupted download never looks like a complete local copy.
func (c *S3Client) FetchToFile(ctx context.Context, bucket, key, dst string) error {
	ctxGet, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create mirror dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	downloader := manager.NewDownloader(c.client)
	_, err = downloader.Download(ctxGet, tmp, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	closeErr := tmp.Close()
	if err = errors.Join(err, closeErr); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("s3 download failed: %w", err)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("move download into place: %w", err)
	}
	return nil
}
