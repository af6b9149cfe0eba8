package storage

import (
	"context"
	"fmt"
	"strings"

	apperrors "acme-dns-manager/internal/errors"
)

// S3Scheme S3 输出地址前缀
const S3Scheme = "s3://"

// Target 解析后的输出位置
type Target struct {
	Bucket string // 为空表示本地文件
	Key    string // S3 对象键或本地路径
}

// IsS3 是否输出到 S3
func (t Target) IsS3() bool {
	return t.Bucket != ""
}

// ParseTarget 解析输出位置：本地路径或 s3://bucket/key
func ParseTarget(target string) (Target, error) {
	if target == "" {
		return Target{}, apperrors.Config("解析输出位置", fmt.Errorf("%w: 为空", apperrors.ErrInvalidOutput))
	}

	if !strings.Contains(target, "://") {
		return Target{Key: target}, nil
	}
	if !strings.HasPrefix(target, S3Scheme) {
		return Target{}, apperrors.Config("解析输出位置", fmt.Errorf("%w: 不支持的地址 %s", apperrors.ErrInvalidOutput, target))
	}

	bucket, key, _ := strings.Cut(strings.TrimPrefix(target, S3Scheme), "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return Target{}, apperrors.Config("解析输出位置", fmt.Errorf("%w: %s 缺少存储桶或对象键", apperrors.ErrInvalidOutput, target))
	}
	return Target{Bucket: bucket, Key: key}, nil
}

// Writer 按输出位置写入本地文件或 S3
type Writer struct {
	file *FileStorage
	s3   *S3Storage
}

// NewWriter 创建 Writer，s3 为空时不支持 s3:// 地址
func NewWriter(file *FileStorage, s3 *S3Storage) *Writer {
	return &Writer{file: file, s3: s3}
}

// Write 写入证书
func (w *Writer) Write(ctx context.Context, target string, data []byte) error {
	t, err := ParseTarget(target)
	if err != nil {
		return err
	}

	if !t.IsS3() {
		return w.file.Write(t.Key, data)
	}
	if w.s3 == nil {
		return apperrors.Config("写入证书", fmt.Errorf("%w: 未配置 AWS，无法写入 %s", apperrors.ErrInvalidOutput, target))
	}
	return w.s3.Write(ctx, t.Bucket, t.Key, data)
}
