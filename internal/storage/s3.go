package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/moddengine/devstock/internal/config"
)

// Location is a parsed s3://bucket/prefix download path.
type Location struct {
	Bucket string
	Prefix string
}

// ParseLocation reports whether path names an S3 location and splits it.
func ParseLocation(path string) (Location, bool) {
	rest, ok := strings.CutPrefix(path, "s3://")
	if !ok {
		return Location{}, false
	}
	bucket, prefix, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Location{}, false
	}
	return Location{Bucket: bucket, Prefix: strings.Trim(prefix, "/")}, true
}

// Key joins the prefix and name into an object key.
func (l Location) Key(name string) string {
	if l.Prefix == "" {
		return name
	}
	return l.Prefix + "/" + name
}

// Uploader stores one object and returns a link to it.
type Uploader interface {
	Upload(ctx context.Context, bucket string, key string, contentType string, data []byte) (string, error)
}

type S3 struct {
	client   *s3.Client
	endpoint string
}

// NewS3 builds a client from the server config. A custom endpoint switches
// to path style addressing for S3 compatible stores.
func NewS3(ctx context.Context, cfg *config.Server) (*S3, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3Key, cfg.S3Secret, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimRight(cfg.S3Endpoint, "/")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", cfg.S3Region)
	}
	return &S3{client: client, endpoint: endpoint}, nil
}

func (s *S3) Upload(ctx context.Context, bucket string, key string, contentType string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("%s/%s/%s", s.endpoint, bucket, key), nil
}
