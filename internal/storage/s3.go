package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3aws "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	apperrors "acme-dns-manager/internal/errors"
	"acme-dns-manager/internal/logger"
)

// CertificateContentType 证书链的 MIME 类型
const CertificateContentType = "application/pem-certificate-chain"

// S3Client S3Storage 使用的 S3 接口
type S3Client interface {
	PutObject(ctx context.Context, params *s3aws.PutObjectInput, optFns ...func(*s3aws.Options)) (*s3aws.PutObjectOutput, error)
}

// S3Storage S3 对象存储
type S3Storage struct {
	client S3Client
	log    *zap.Logger
}

// NewS3Storage 使用 AWS 配置创建 S3 存储
func NewS3Storage(cfg aws.Config, log *zap.Logger) *S3Storage {
	return NewS3StorageWithClient(s3aws.NewFromConfig(cfg), log)
}

// NewS3StorageWithClient 使用指定客户端创建 S3 存储
func NewS3StorageWithClient(client S3Client, log *zap.Logger) *S3Storage {
	return &S3Storage{client: client, log: logger.OrNop(log)}
}

// Write 上传对象，已存在时覆盖
func (s *S3Storage) Write(ctx context.Context, bucket, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3aws.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(CertificateContentType),
	})
	if err != nil {
		return classifyS3Error(err, "上传证书到 s3://"+bucket+"/"+key)
	}

	s.log.Info("证书已上传", zap.String("bucket", bucket), zap.String("key", key))
	return nil
}

// classifyS3Error 将 S3 错误归类
func classifyS3Error(err error, op string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return apperrors.Config(op, fmt.Errorf("%w: 存储桶不存在", apperrors.ErrInvalidOutput))
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			return apperrors.Config(op, fmt.Errorf("%w: 存储桶不存在", apperrors.ErrInvalidOutput))
		case "AccessDenied":
			return apperrors.Config(op, fmt.Errorf("AWS凭证无权限: %w", err))
		default:
			return apperrors.Provider(op, fmt.Errorf("S3接口错误 (code: %s): %w", apiErr.ErrorCode(), err))
		}
	}
	return apperrors.Provider(op, err)
}
