// Package receipts archives verified store responses to S3-compatible
// object storage for later audits.
package receipts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Receipt is one verified purchase response.
type Receipt struct {
	UserID    string
	ProductID string
	Body      json.RawMessage
	At        time.Time
}

// Archive stores receipts and returns the object key.
type Archive interface {
	Store(ctx context.Context, r Receipt) (string, error)
}

// S3Config holds object storage settings.
type S3Config struct {
	AccessKey    string
	SecretKey    string
	Bucket       string
	Region       string
	BaseEndpoint string
}

type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var (
	loadDefaultAWSConfig  = config.LoadDefaultConfig
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) putObjectAPI {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Archive writes receipts as JSON objects.
type S3Archive struct {
	api    putObjectAPI
	bucket string
	newID  func() string
}

// NewS3Archive builds an archive with static credentials. A non-empty
// BaseEndpoint selects path-style addressing for MinIO and similar stores.
func NewS3Archive(ctx context.Context, cfg S3Config) (*S3Archive, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archive{api: client, bucket: cfg.Bucket, newID: uuid.NewString}, nil
}

// Key lays receipts out by UTC day and user:
// receipts/2025/01/31/<user>/<id>.json.
func Key(r Receipt, id string) string {
	d := r.At.UTC()
	return fmt.Sprintf("receipts/%04d/%02d/%02d/%s/%s.json", d.Year(), d.Month(), d.Day(), r.UserID, id)
}

func (a *S3Archive) Store(ctx context.Context, r Receipt) (string, error) {
	key := Key(r, a.newID())

	_, err := a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(r.Body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"user-id":    r.UserID,
			"product-id": r.ProductID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("put receipt %s: %w", key, err)
	}
	return key, nil
}

// Noop discards receipts.
type Noop struct{}

func (Noop) Store(context.Context, Receipt) (string, error) { return "", nil }
