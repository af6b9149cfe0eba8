// Package storage 将签发的证书写入本地文件或 S3 对象
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"acme-dns-manager/internal/logger"
)

// FileStorage 本地文件存储
type FileStorage struct {
	log *zap.Logger
}

// NewFileStorage 创建文件存储
func NewFileStorage(log *zap.Logger) *FileStorage {
	return &FileStorage{log: logger.OrNop(log)}
}

// Write 写入文件，先写临时文件再重命名，避免读到半个证书
func (s *FileStorage) Write(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("写入证书失败: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("设置文件权限失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("写入证书失败: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("保存证书失败: %w", err)
	}

	s.log.Info("证书文件已保存", zap.String("path", path))
	return nil
}
