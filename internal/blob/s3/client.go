// Package s3blob archives action history to S3-compatible object storage
// (AWS, MinIO, Cloudflare R2) using AWS SDK v2.
package s3blob

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig selects the archive bucket. Endpoint is empty for AWS and set
// for MinIO, R2 and other S3-compatible stores, which usually also need
// ForcePathStyle.
type ClientConfig struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	UseSSL         bool // scheme for an Endpoint given without one
	ForcePathStyle bool
	Prefix         string // prepended to every key, e.g. "marginterm/"
}

// Client wraps the AWS S3 SDK client, the bucket and the key prefix shared
// by the reader and writer.
type Client struct {
	s3     *s3.Client
	bucket string
	prefix string
}

// New creates the archive bucket client. Static credentials are used when
// an access key is configured; otherwise the default AWS chain applies
// (environment, shared config, instance role).
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	var missing []string
	if cfg.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if cfg.Region == "" {
		missing = append(missing, "region")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("s3blob: missing %s", strings.Join(missing, ", "))
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithRetryMaxAttempts(5),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(normaliseEndpoint(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return &Client{s3: client, bucket: cfg.Bucket, prefix: normalisePrefix(cfg.Prefix)}, nil
}

// Health checks that the archive bucket is reachable with the configured
// credentials.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("s3blob: bucket %s: %w", c.bucket, err)
	}
	return nil
}

// S3 returns the underlying AWS SDK S3 client.
func (c *Client) S3() *s3.Client {
	return c.s3
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// Key returns the object key of path under the configured prefix.
func (c *Client) Key(path string) string {
	return c.prefix + strings.TrimPrefix(path, "/")
}

// normalisePrefix strips leading slashes and guarantees one trailing slash
// on a non-empty prefix.
func normalisePrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

// normaliseEndpoint prepends a scheme to a bare host, chosen by useSSL.
func normaliseEndpoint(endpoint string, useSSL bool) string {
	parsed, err := url.Parse(endpoint)
	if err == nil && parsed.Scheme != "" {
		return endpoint
	}
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return scheme + "://" + endpoint
}
