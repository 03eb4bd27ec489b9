package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// FolderSessions is the S3 prefix for archived recording sessions.
const FolderSessions = "recording-sessions"

// S3Config holds S3 client configuration.
type S3Config struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ArchiveBucket        string
	PresignExpireMinutes int
}

// S3 archives session snapshots and issues pre-signed download URLs.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 client. Static credentials are used when both keys are set, otherwise
// the default AWS credential chain.
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
		logger.Info("S3 client using static credentials", zap.String("region", cfg.Region), zap.String("bucket", cfg.ArchiveBucket))
	} else {
		logger.Info("S3 client using default credential chain", zap.String("region", cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &S3{
		client:   client,
		uploader: manager.NewUploader(client),
		presign:  s3.NewPresignClient(client),
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// SessionArchiveKey returns the object key: recording-sessions/{room_id}/{session_id}.json.
func SessionArchiveKey(roomID, sessionID string) string {
	return path.Join(FolderSessions, path.Base(roomID), path.Base(sessionID)+".json")
}

// PresignExpire returns the configured presign duration.
func (s *S3) PresignExpire() time.Duration {
	return presignExpire(s.cfg.PresignExpireMinutes)
}

func presignExpire(minutes int) time.Duration {
	if minutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(minutes) * time.Minute
}

// ArchiveBucket returns the archive bucket name.
func (s *S3) ArchiveBucket() string { return s.cfg.ArchiveBucket }

// UploadSessionArchive writes a JSON snapshot of a session, server-side encrypted.
func (s *S3) UploadSessionArchive(ctx context.Context, roomID, sessionID string, body []byte) (string, error) {
	key := SessionArchiveKey(roomID, sessionID)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.cfg.ArchiveBucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	s.logger.Debug("session archive uploaded", zap.String("key", key), zap.Int("bytes", len(body)))
	return key, nil
}

// PresignSessionArchive returns a pre-signed GET URL for a session archive.
func (s *S3) PresignSessionArchive(ctx context.Context, roomID, sessionID string) (string, time.Duration, error) {
	expires := s.PresignExpire()
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.ArchiveBucket),
		Key:    aws.String(SessionArchiveKey(roomID, sessionID)),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", 0, fmt.Errorf("presign get: %w", err)
	}
	return req.URL, expires, nil
}
