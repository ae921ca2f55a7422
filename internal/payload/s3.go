package payload

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/example/multichannel/internal/messaging"
)

var ErrInvalidS3Config = errors.New("s3 store requires bucket and region")

// S3Client is the subset of *s3.Client used by S3Store.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Config struct {
	Bucket         string
	Region         string
	Prefix         string
	AccessKeyID    string
	SecretKey      string
	Endpoint       string
	ForcePathStyle bool
}

// S3Store keeps image and video payloads as objects.
type S3Store struct {
	client S3Client
	bucket string
	prefix string
	newKey func() string
}

func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, ErrInvalidS3Config
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return NewS3StoreWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

func NewS3StoreWithClient(client S3Client, bucket, prefix string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		newKey: uuid.NewString,
	}
}

// Store uploads content and returns an s3:// reference to it.
func (s *S3Store) Store(ctx context.Context, typ messaging.MediaType, content string) (string, error) {
	key := path.Join(s.prefix, s.newKey())
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(content),
		ContentType: aws.String(contentType(typ)),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

func contentType(typ messaging.MediaType) string {
	switch {
	case typ == messaging.MediaBlob:
		return "application/octet-stream"
	case typ == messaging.MediaVideo:
		return "video/mp4"
	default:
		return string(typ)
	}
}
