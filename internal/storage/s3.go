package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vultisig/xmr-bridge/internal/tss"
)

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Prefix    string
}

// S3Publisher uploads bridge-keys summaries to a shared bucket (S3 or MinIO).
type S3Publisher struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3Publisher(ctx context.Context, cfg S3Config) (*S3Publisher, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true // Required for MinIO/localstack
	})

	return &S3Publisher{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Publish uploads the epoch file and the current combined file.
func (p *S3Publisher) Publish(ctx context.Context, keys *tss.BridgeKeys) ([]string, error) {
	content, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode bridge keys: %w", err)
	}

	names := []string{
		path.Join(p.prefix, EpochFileName(keys.Epoch)),
		path.Join(p.prefix, bridgeKeysFileName),
	}
	for _, name := range names {
		if err := p.uploadFile(ctx, name, content); err != nil {
			return nil, fmt.Errorf("failed to upload %s: %w", name, err)
		}
	}
	return names, nil
}

func (p *S3Publisher) uploadFile(ctx context.Context, key string, data []byte) error {
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	return err
}
