// internal/services/storage_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/partner-engine/internal/config"
)

// StorageService stores settlement exports in S3, or under a local directory
// when no AWS credentials are configured.
type StorageService struct {
	s3Client *s3.S3
	config   config.AWSConfig
}

type UploadResult struct {
	URL         string `json:"url"`
	DownloadURL string `json:"download_url,omitempty"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	MimeType    string `json:"mime_type"`
}

const downloadURLTTL = 15 * time.Minute

func NewStorageService(cfg config.AWSConfig) (*StorageService, error) {
	if cfg.AccessKeyID == "" {
		return &StorageService{config: cfg}, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &StorageService{
		s3Client: s3.New(sess),
		config:   cfg,
	}, nil
}

// Put writes data under the export prefix and returns where it landed.
func (s *StorageService) Put(ctx context.Context, name, contentType string, data []byte) (*UploadResult, error) {
	key := strings.TrimSuffix(s.config.ExportPrefix, "/") + "/" + name
	key = strings.TrimPrefix(key, "/")

	if s.s3Client == nil {
		return s.uploadToLocal(data, key, contentType)
	}

	result, err := s.uploadToS3(ctx, data, key, contentType)
	if err != nil {
		return nil, err
	}
	if url, err := s.PresignedURL(key, downloadURLTTL); err == nil {
		result.DownloadURL = url
	} else {
		logrus.WithError(err).WithField("key", key).Warn("Failed to presign export download")
	}
	return result, nil
}

func (s *StorageService) uploadToS3(ctx context.Context, data []byte, key, contentType string) (*UploadResult, error) {
	params := &s3.PutObjectInput{
		Bucket:               aws.String(s.config.S3Bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(data),
		ContentType:          aws.String(contentType),
		ContentLength:        aws.Int64(int64(len(data))),
		ServerSideEncryption: aws.String(s3.ServerSideEncryptionAes256),
	}

	if _, err := s.s3Client.PutObjectWithContext(ctx, params); err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &UploadResult{
		URL:      fmt.Sprintf("s3://%s/%s", s.config.S3Bucket, key),
		Key:      key,
		Size:     int64(len(data)),
		MimeType: contentType,
	}, nil
}

func (s *StorageService) uploadToLocal(data []byte, key, contentType string) (*UploadResult, error) {
	path := filepath.Join(s.config.LocalExportDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write export: %w", err)
	}

	return &UploadResult{
		URL:      "file://" + path,
		Key:      key,
		Size:     int64(len(data)),
		MimeType: contentType,
	}, nil
}

// PresignedURL returns a time-limited download link for an S3 export.
func (s *StorageService) PresignedURL(key string, expiration time.Duration) (string, error) {
	if s.s3Client == nil {
		return "", fmt.Errorf("S3 client not configured")
	}

	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.config.S3Bucket),
		Key:    aws.String(key),
	})

	url, err := req.Presign(expiration)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return url, nil
}
