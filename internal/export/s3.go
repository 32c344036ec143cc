package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/TheMichaelB/scoutsync/internal/config"
	"github.com/TheMichaelB/scoutsync/internal/events"
	"github.com/TheMichaelB/scoutsync/internal/models"
)

// S3Publisher uploads exports to an S3-compatible bucket.
type S3Publisher struct {
	client  *s3.Client
	bucket  string
	prefix  string
	timeout time.Duration
	logger  *events.Logger
}

// NewS3Publisher builds a client from the export configuration. Static
// credentials are used when configured, otherwise the default AWS chain.
// A custom endpoint switches to path-style addressing.
func NewS3Publisher(ctx context.Context, cfg *config.ExportConfig, logger *events.Logger) (*S3Publisher, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("%w: export.s3_bucket is empty", models.ErrInvalidConfig)
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Publisher{
		client:  client,
		bucket:  cfg.S3Bucket,
		prefix:  cfg.S3Prefix,
		timeout: 30 * time.Second,
		logger:  logger.WithField("component", "s3_publisher"),
	}, nil
}

// Publish puts data under prefix+name and returns the s3:// location.
func (p *S3Publisher) Publish(ctx context.Context, name string, data []byte) (string, error) {
	key := p.buildKey(name)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"source": "scoutsync",
		},
	})
	if err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}

	p.logger.WithFields(map[string]interface{}{
		"key":  key,
		"size": len(data),
	}).Debug("Uploaded export")

	return fmt.Sprintf("s3://%s/%s", p.bucket, key), nil
}

func (p *S3Publisher) buildKey(name string) string {
	if p.prefix == "" {
		return name
	}
	return strings.TrimSuffix(p.prefix, "/") + "/" + name
}
