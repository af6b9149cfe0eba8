// Package awsdns 实现 Lightsail DNS 和 Route53 两个 DNS 后端
package awsdns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// LightsailRegion Lightsail 域名接口只在 us-east-1 提供
const LightsailRegion = "us-east-1"

// Config AWS 访问配置
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Profile         string
}

// LoadConfig 加载 AWS SDK 配置
// 未提供静态凭证时使用默认凭证链（环境变量、共享配置、实例角色）
func LoadConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	region := cfg.Region
	if region == "" {
		region = LightsailRegion
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("加载AWS配置失败: %w", err)
	}
	return awsCfg, nil
}
