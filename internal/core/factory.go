package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"

	"acme-dns-manager/internal/config"
	apperrors "acme-dns-manager/internal/errors"
	"acme-dns-manager/internal/logger"
	"acme-dns-manager/internal/provider"
	"acme-dns-manager/internal/provider/aliyun"
	"acme-dns-manager/internal/provider/awsdns"
	"acme-dns-manager/internal/provider/huawei"
	"acme-dns-manager/internal/provider/tencent"
	"acme-dns-manager/internal/storage"
)

// Factory 根据配置创建 DNS 后端和输出存储
type Factory struct {
	config *config.Config
	log    *zap.Logger

	awsOnce sync.Once
	awsCfg  aws.Config
	awsErr  error
}

// NewFactory 创建工厂
func NewFactory(cfg *config.Config, log *zap.Logger) *Factory {
	return &Factory{config: cfg, log: logger.OrNop(log)}
}

// awsConfig 加载一次 AWS 配置，多个后端共用
func (f *Factory) awsConfig(ctx context.Context) (aws.Config, error) {
	f.awsOnce.Do(func() {
		f.awsCfg, f.awsErr = awsdns.LoadConfig(ctx, awsdns.Config{
			Region:          f.config.AWS.Region,
			AccessKeyID:     f.config.AWS.AccessKeyID,
			SecretAccessKey: f.config.AWS.SecretAccessKey,
			Profile:         f.config.AWS.Profile,
		})
	})
	return f.awsCfg, f.awsErr
}

// Backend 创建指定名称的 DNS 后端
func (f *Factory) Backend(ctx context.Context, name string) (provider.Backend, error) {
	switch name {
	case provider.Lightsail, provider.Route53:
		if f.config.AWS.Disabled {
			return nil, apperrors.Config("创建DNS后端", fmt.Errorf("AWS 已禁用，无法使用 %s", name))
		}
		cfg, err := f.awsConfig(ctx)
		if err != nil {
			return nil, apperrors.Config("创建DNS后端", err)
		}
		if name == provider.Lightsail {
			return awsdns.NewLightsail(cfg, f.log), nil
		}
		return awsdns.NewRoute53(cfg, f.log), nil

	case provider.Aliyun:
		if f.config.Providers.Aliyun == nil {
			return nil, apperrors.Config("创建DNS后端", fmt.Errorf("阿里云DNS提供商未配置"))
		}
		return aliyun.NewDNSProvider(f.config.Providers.Aliyun, f.log)

	case provider.Tencent:
		if f.config.Providers.Tencent == nil {
			return nil, apperrors.Config("创建DNS后端", fmt.Errorf("腾讯云DNS提供商未配置"))
		}
		return tencent.NewDNSProvider(f.config.Providers.Tencent, f.log)

	case provider.Huawei:
		if f.config.Providers.Huawei == nil {
			return nil, apperrors.Config("创建DNS后端", fmt.Errorf("华为云DNS提供商未配置"))
		}
		return huawei.NewDNSProvider(f.config.Providers.Huawei, f.log)

	default:
		return nil, apperrors.Config("创建DNS后端", fmt.Errorf("%w: %s", apperrors.ErrUnknownDNS, name))
	}
}

// Backends 创建全部已启用的 DNS 后端，顺序与配置一致
func (f *Factory) Backends(ctx context.Context) ([]provider.Backend, error) {
	var backends []provider.Backend
	for _, name := range f.config.EnabledBackends() {
		b, err := f.Backend(ctx, name)
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
	}
	return backends, nil
}

// Writer 创建证书输出，禁用 AWS 时不支持 s3:// 地址
func (f *Factory) Writer(ctx context.Context) (*storage.Writer, error) {
	file := storage.NewFileStorage(f.log)
	if f.config.AWS.Disabled {
		return storage.NewWriter(file, nil), nil
	}
	cfg, err := f.awsConfig(ctx)
	if err != nil {
		return nil, apperrors.Config("创建证书输出", err)
	}
	return storage.NewWriter(file, storage.NewS3Storage(cfg, f.log)), nil
}
