package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonboulle/clockwork"

	"eco-challenge-engine/logger"
)

// R2Config addresses a Cloudflare R2 bucket through its S3 API.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

// objectAPI is the slice of the S3 client the store needs.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type R2Store struct {
	client     objectAPI
	bucket     string
	cdnBaseURL string
	Policy     UploadPolicy
	Clock      clockwork.Clock
	log        *logger.Logger
}

func NewR2Store(ctx context.Context, cfg R2Config, policy UploadPolicy, log *logger.Logger) (*R2Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("r2: bucket name is required")
	}
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	cdn := cfg.CDNBaseURL
	if cdn == "" {
		cdn = endpoint + "/" + cfg.Bucket
	}
	return newR2Store(client, cfg.Bucket, cdn, policy, log), nil
}

func newR2Store(client objectAPI, bucket, cdnBaseURL string, policy UploadPolicy, log *logger.Logger) *R2Store {
	return &R2Store{
		client:     client,
		bucket:     bucket,
		cdnBaseURL: strings.TrimRight(cdnBaseURL, "/"),
		Policy:     policy,
		Clock:      clockwork.NewRealClock(),
		log:        log.With("store", "r2"),
	}
}

// Store uploads the artifact and returns its public CDN URL as the reference.
func (s *R2Store) Store(ctx context.Context, u Upload) (StoredArtifact, error) {
	data, contentType, err := s.Policy.Read(u.Reader)
	if err != nil {
		return StoredArtifact{}, err
	}

	key := ObjectKey(u.Prefix, u.Filename, s.Clock.Now())
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return StoredArtifact{}, fmt.Errorf("failed to upload to R2: %w", err)
	}

	s.log.Info("artifact uploaded", "key", key, "bytes", len(data), "content_type", contentType)
	return StoredArtifact{
		Ref:              fmt.Sprintf("%s/%s", s.cdnBaseURL, key),
		Key:              key,
		ContentType:      contentType,
		Size:             int64(len(data)),
		OriginalFilename: u.Filename,
	}, nil
}

func (s *R2Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from R2: %w", err)
	}
	return nil
}
