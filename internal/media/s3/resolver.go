// Package s3 presigns GET links for media mirrored into an S3-compatible bucket.
package s3

import (
	"context"
	"fmt"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/zhouzirui/pollinator-bot/backend/internal/media"
)

var _ media.Resolver = (*Resolver)(nil)

const (
	defaultRegion = "us-east-1"
	defaultExpiry = 24 * time.Hour
)

// Config holds construction parameters. Static credentials are optional and
// fall back to the default AWS credential chain.
type Config struct {
	Region          string
	Bucket          string
	Prefix          string // prepended to every media ref to build the object key
	Endpoint        string // optional; MinIO and other S3-compatible stores
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
	Expiry          time.Duration
}

// Resolver presigns object GET URLs.
type Resolver struct {
	presign *s3.PresignClient
	bucket  string
	prefix  string
	expiry  time.Duration
}

// New creates a Resolver from cfg.
func New(ctx context.Context, cfg Config) (*Resolver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = defaultExpiry
	}
	return &Resolver{
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		expiry:  expiry,
	}, nil
}

// Key returns the object key for a media reference.
func (r *Resolver) Key(ref string) string {
	if r.prefix == "" {
		return ref
	}
	return strings.TrimRight(r.prefix, "/") + "/" + ref
}

// Resolve implements media.Resolver.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", media.ErrEmptyRef
	}
	key := r.Key(ref)
	req, err := r.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(r.expiry))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}
