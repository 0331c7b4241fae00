package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/malbeclabs/stakewatch/pkg/analysis"
)

// S3API is the slice of the S3 client the uploader uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3StoreConfig struct {
	Logger *slog.Logger
	Client S3API
	Bucket string
	// Prefix is prepended to object keys, e.g. "reports/mainnet".
	Prefix string
}

func (cfg *S3StoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("s3 client is required")
	}
	if cfg.Bucket == "" {
		return errors.New("bucket is required")
	}
	return nil
}

// S3Store archives each report as one JSON object per run.
type S3Store struct {
	log *slog.Logger
	cfg S3StoreConfig
}

func NewS3Store(cfg S3StoreConfig) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &S3Store{log: cfg.Logger, cfg: cfg}, nil
}

func (s *S3Store) Upload(ctx context.Context, report *analysis.Report) (string, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	key := fmt.Sprintf("epoch-%d/%s%s.json", report.Epoch.Epoch, filePrefix, report.RunID)
	if s.cfg.Prefix != "" {
		key = s.cfg.Prefix + "/" + key
	}

	_, err = s.cfg.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report to s3: %w", err)
	}

	s.log.Info("snapshot: uploaded report", "bucket", s.cfg.Bucket, "key", key, "bytes", len(data))
	return key, nil
}
