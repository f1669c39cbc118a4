package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type R2Config struct {
	Bucket          string
	Endpoint        string // https://<account-id>.r2.cloudflarestorage.com
	AccessKeyID     string
	SecretAccessKey string
	PublicDomain    string // custom domain or r2.dev URL
}

// R2Client stores objects in Cloudflare R2 through its S3 API.
type R2Client struct {
	s3     *s3.Client
	bucket string
	domain string
}

func NewR2Client(ctx context.Context, c R2Config) (*R2Client, error) {
	if c.Bucket == "" || c.AccessKeyID == "" || c.SecretAccessKey == "" || c.Endpoint == "" {
		return nil, fmt.Errorf("missing r2 settings (bucket, endpoint, access_key_id, secret_access_key)")
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, ""),
		),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("r2 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(c.Endpoint)
		o.UsePathStyle = true // required for R2
	})

	return &R2Client{s3: client, bucket: c.Bucket, domain: strings.TrimRight(c.PublicDomain, "/")}, nil
}

func (r *R2Client) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := r.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
		CacheControl:  aws.String("no-cache"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return r.publicURL(key), nil
}

func (r *R2Client) Delete(ctx context.Context, key string) error {
	_, err := r.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (r *R2Client) publicURL(key string) string {
	if r.domain == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/%s", r.domain, r.bucket, key)
}
