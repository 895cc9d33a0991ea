package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const (
	// FolderTemplates is the S3 prefix for organization templates.
	FolderTemplates = "templates"
	// FolderDocuments is the S3 prefix for recipient supporting documents.
	FolderDocuments = "documents"
)

// S3Config holds S3 client configuration.
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	TemplatesBucket string
	DocumentsBucket string
}

// S3 uploads templates and supporting documents.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 client using credentials from config or the environment (AWS_ACCESS_KEY_ID,
// AWS_SECRET_ACCESS_KEY), falling back to the default credential chain.
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	accessKey := cfg.AccessKeyID
	secretKey := cfg.SecretAccessKey
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
		logger.Info("S3 client using static credentials",
			zap.String("region", cfg.Region),
			zap.String("templates_bucket", cfg.TemplatesBucket),
			zap.String("documents_bucket", cfg.DocumentsBucket))
	} else {
		logger.Warn("S3 client using default credential chain (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY not set)")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &S3{
		client:   client,
		uploader: manager.NewUploader(client),
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// TemplateKey returns the object key for an organization template: templates/{ngo_id}/{filename}.
func TemplateKey(ngoID, filename string) string {
	return path.Join(FolderTemplates, ngoID, cleanName(filename))
}

// DocumentKey returns the object key for a supporting document:
// documents/{ngo_id}/{submission_id}/{filename}.
func DocumentKey(ngoID, submissionID, filename string) string {
	return path.Join(FolderDocuments, ngoID, submissionID, cleanName(filename))
}

func cleanName(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "unnamed"
	}
	return name
}

// ObjectURL returns the virtual-hosted URL of an object.
func (s *S3) ObjectURL(bucket, key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, s.cfg.Region, key)
}

// Upload streams body to bucket/key and returns the object URL.
func (s *S3) Upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if contentLength > 0 {
		input.ContentLength = aws.Int64(contentLength)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	s.logger.Debug("object uploaded", zap.String("bucket", bucket), zap.String("key", key))
	return s.ObjectURL(bucket, key), nil
}

// UploadTemplate stores a template file for ngoID.
func (s *S3) UploadTemplate(ctx context.Context, ngoID, filename, contentType string, body io.Reader, size int64) (string, error) {
	return s.Upload(ctx, s.cfg.TemplatesBucket, TemplateKey(ngoID, filename), contentType, body, size)
}

// UploadDocument stores a supporting document of a recipient submission.
func (s *S3) UploadDocument(ctx context.Context, ngoID, submissionID, filename, contentType string, body io.Reader, size int64) (string, error) {
	return s.Upload(ctx, s.cfg.DocumentsBucket, DocumentKey(ngoID, submissionID, filename), contentType, body, size)
}

// DeleteTemplate removes a template file stored by UploadTemplate.
func (s *S3) DeleteTemplate(ctx context.Context, ngoID, filename string) error {
	return s.DeleteObject(ctx, s.cfg.TemplatesBucket, TemplateKey(ngoID, filename))
}

// DeleteObject removes an object.
func (s *S3) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	s.logger.Debug("object deleted", zap.String("bucket", bucket), zap.String("key", key))
	return nil
}
