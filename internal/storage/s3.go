package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Config addresses an S3-compatible bucket (AWS, Wasabi, MinIO in S3 mode).
type S3Config struct {
	Endpoint  string // empty for AWS
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// S3Presigner signs PUT URLs with aws-sdk-go-v2.
type S3Presigner struct {
	client *s3.PresignClient
	bucket string
}

// NewS3Presigner loads an AWS config with static credentials and builds a path-style presign client.
func NewS3Presigner(ctx context.Context, cfg S3Config) (*S3Presigner, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}
	return NewS3PresignerFromConfig(awsCfg, cfg.Endpoint, cfg.Bucket), nil
}

// NewS3PresignerFromConfig builds a presigner from an already resolved aws.Config.
func NewS3PresignerFromConfig(awsCfg aws.Config, endpoint, bucket string) *S3Presigner {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Presigner{client: s3.NewPresignClient(client), bucket: bucket}
}

// PresignPut signs a PutObject request for key.
func (p *S3Presigner) PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := p.client.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) {
			return "", fmt.Errorf("s3 presign %s: %s", ae.ErrorCode(), ae.ErrorMessage())
		}
		return "", fmt.Errorf("s3 presign: %w", err)
	}
	return req.URL, nil
}
