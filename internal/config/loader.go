package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"acme-dns-manager/internal/domain"
	apperrors "acme-dns-manager/internal/errors"
	"acme-dns-manager/internal/logger"
	"acme-dns-manager/internal/provider"
)

// DefaultResolvers 默认用于查询验证记录的公共DNS
var DefaultResolvers = []string{"8.8.8.8:53", "1.1.1.1:53"}

// Load 加载并验证配置文件
func Load(path string) (*Config, error) {
	config, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := validate(config); err != nil {
		return nil, apperrors.Config("验证配置", err)
	}
	return config, nil
}

// Read 读取配置文件并填充默认值，不做完整性验证
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 环境变量覆盖文件中的配置
	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}

	applyDefaults(&config)
	return &config, nil
}

// applyDefaults 设置默认值
func applyDefaults(config *Config) {
	if config.ACME.DirectoryURL == "" {
		config.ACME.DirectoryURL = LetsEncryptStaging
	}
	if config.ACME.AccountFile == "" {
		config.ACME.AccountFile = "./account.json"
	}
	if !config.AWS.Disabled && len(config.AWS.Backends) == 0 {
		config.AWS.Backends = []string{provider.Lightsail, provider.Route53}
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 4
	}
	if config.PropagationTimeout <= 0 {
		config.PropagationTimeout = 90
	}
	if len(config.Resolvers) == 0 {
		config.Resolvers = DefaultResolvers
	}
	if config.CheckInterval == 0 {
		config.CheckInterval = 24
	}
	if config.Log == (logger.Config{}) {
		config.Log = logger.DefaultConfig()
	}

	// CNAME 映射统一为小写
	if len(config.CNAME) > 0 {
		normalized := make(map[string]string, len(config.CNAME))
		for from, to := range config.CNAME {
			normalized[domain.Normalize(from)] = domain.Normalize(to)
		}
		config.CNAME = normalized
	}

	for i := range config.Certificates {
		req := &config.Certificates[i]
		if req.Output == "" && req.CSRFile != "" {
			req.Output = strings.TrimSuffix(req.CSRFile, filepath.Ext(req.CSRFile)) + ".crt"
		}
		req.DNSProvider = strings.ToLower(req.DNSProvider)
	}
}

// EnabledBackends 返回已启用的 DNS 后端名称
func (c *Config) EnabledBackends() []string {
	var names []string
	if !c.AWS.Disabled {
		for _, name := range c.AWS.Backends {
			names = append(names, strings.ToLower(name))
		}
	}
	if c.Providers.Aliyun != nil {
		names = append(names, provider.Aliyun)
	}
	if c.Providers.Tencent != nil {
		names = append(names, provider.Tencent)
	}
	if c.Providers.Huawei != nil {
		names = append(names, provider.Huawei)
	}
	return names
}

// validate 验证配置
func validate(config *Config) error {
	if len(config.Certificates) == 0 {
		return fmt.Errorf("未配置任何证书请求")
	}

	for _, name := range config.AWS.Backends {
		if name := strings.ToLower(name); name != provider.Lightsail && name != provider.Route53 {
			return fmt.Errorf("%w: aws.backends 不支持 %s", apperrors.ErrUnknownDNS, name)
		}
	}
	if err := validateProviderConfig(config); err != nil {
		return err
	}

	if config.CheckInterval <= 0 {
		return fmt.Errorf("check_interval 必须大于0")
	}

	backends := config.EnabledBackends()
	if len(backends) == 0 {
		return fmt.Errorf("未启用任何DNS后端")
	}

	for i, req := range config.Certificates {
		if req.CSRFile == "" {
			return fmt.Errorf("第 %d 个证书请求: csr_file 不能为空", i+1)
		}
		if req.DNSProvider != "" && !slices.Contains(backends, req.DNSProvider) {
			return fmt.Errorf("证书请求 %s: %w: %s", req.CSRFile, apperrors.ErrUnknownDNS, req.DNSProvider)
		}
		for _, target := range []string{req.Output, req.ChainOutput} {
			if scheme, _, ok := strings.Cut(target, "://"); ok && scheme != "s3" {
				return fmt.Errorf("证书请求 %s: %w: %s", req.CSRFile, apperrors.ErrInvalidOutput, target)
			}
		}
		if req.RenewDays < 0 {
			return fmt.Errorf("证书请求 %s: renew_days 不能为负数", req.CSRFile)
		}
	}

	for from, to := range config.CNAME {
		if !domain.IsValidHostname(from) || !domain.IsValidHostname(to) {
			return fmt.Errorf("无效的CNAME映射: %s -> %s", from, to)
		}
	}

	return nil
}

// validateProviderConfig 验证已配置的云平台凭证是否完整
func validateProviderConfig(config *Config) error {
	if p := config.Providers.Aliyun; p != nil && (p.AccessKeyID == "" || p.AccessKeySecret == "") {
		return fmt.Errorf("aliyun 凭证不完整")
	}
	if p := config.Providers.Tencent; p != nil && (p.SecretID == "" || p.SecretKey == "") {
		return fmt.Errorf("tencent 凭证不完整")
	}
	if p := config.Providers.Huawei; p != nil && (p.AccessKey == "" || p.SecretKey == "") {
		return fmt.Errorf("huawei 凭证不完整")
	}
	return nil
}
