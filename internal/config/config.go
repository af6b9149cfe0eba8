package config

import (
	"time"

	"acme-dns-manager/internal/domain"
	"acme-dns-manager/internal/logger"
)

// Let's Encrypt 目录地址
const (
	LetsEncryptStaging    = "https://acme-staging-v02.api.letsencrypt.org/directory"
	LetsEncryptProduction = "https://acme-v02.api.letsencrypt.org/directory"
)

// Config 配置结构
type Config struct {
	// ACME 账号配置
	ACME ACMEConfig `yaml:"acme"`

	// DNS 后端凭证配置
	AWS       AWSConfig       `yaml:"aws"`
	Providers ProvidersConfig `yaml:"providers"`

	// CNAME 重映射: 域名 -> 实际托管验证记录的域名
	CNAME map[string]string `yaml:"cname,omitempty"`

	// 证书请求
	Certificates []CertificateRequest `yaml:"certificates"`

	// 全局配置
	Concurrency        int      `yaml:"concurrency" env:"ACME_CONCURRENCY"`                        // 并发签发数，默认4
	PropagationTimeout int      `yaml:"propagation_timeout" env:"ACME_PROPAGATION_TIMEOUT"`        // DNS生效等待时间（秒），默认90
	Resolvers          []string `yaml:"resolvers,omitempty" env:"ACME_RESOLVERS" envSeparator:","` // 查询验证记录的DNS服务器
	CheckInterval      int      `yaml:"check_interval" env:"ACME_CHECK_INTERVAL"`                  // 守护模式检查间隔（小时）
	PostCommand        string   `yaml:"post_command"`                                              // 全局后置命令

	// Webhook 通知配置
	Webhook *WebhookConfig `yaml:"webhook,omitempty"`

	// 日志配置
	Log logger.Config `yaml:"log"`
}

// ACMEConfig ACME 账号配置
type ACMEConfig struct {
	DirectoryURL string `yaml:"directory_url" env:"ACME_DIRECTORY_URL"`
	Email        string `yaml:"email" env:"ACME_EMAIL"`
	AccountFile  string `yaml:"account_file" env:"ACME_ACCOUNT_FILE"` // 账号信息，私钥保存在同名 .key 文件
}

// AWSConfig AWS 凭证配置，未填写时使用默认凭证链
type AWSConfig struct {
	Region          string   `yaml:"region" env:"ACME_AWS_REGION"`
	AccessKeyID     string   `yaml:"access_key_id"`
	SecretAccessKey string   `yaml:"secret_access_key"`
	Profile         string   `yaml:"profile" env:"ACME_AWS_PROFILE"`
	Backends        []string `yaml:"backends"` // 启用的后端: lightsail, route53，默认全部
	Disabled        bool     `yaml:"disabled"` // 不使用 AWS
}

// ProvidersConfig 其他云平台凭证配置
type ProvidersConfig struct {
	Aliyun  *AliyunConfig  `yaml:"aliyun,omitempty"`
	Tencent *TencentConfig `yaml:"tencent,omitempty"`
	Huawei  *HuaweiConfig  `yaml:"huawei,omitempty"`
}

// AliyunConfig 阿里云配置
type AliyunConfig struct {
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
	Region          string `yaml:"region"`
}

// TencentConfig 腾讯云配置
type TencentConfig struct {
	SecretID  string `yaml:"secret_id"`
	SecretKey string `yaml:"secret_key"`
}

// HuaweiConfig 华为云配置
type HuaweiConfig struct {
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
}

// CertificateRequest 证书请求配置
type CertificateRequest struct {
	CSRFile     string `yaml:"csr_file"`
	Output      string `yaml:"output"`                 // 证书输出位置: 本地路径或 s3://bucket/key
	ChainOutput string `yaml:"chain_output,omitempty"` // 完整证书链输出位置（可选）

	// DNSProvider 限定只在该后端查找区域，为空时查找全部后端
	DNSProvider string `yaml:"dns_provider,omitempty"`

	RenewDays    int    `yaml:"renew_days,omitempty"`    // 线上证书剩余天数大于该值时跳过，0 表示总是签发
	CheckAddress string `yaml:"check_address,omitempty"` // 检查线上证书的地址，默认 CN:443
	PostCommand  string `yaml:"post_command,omitempty"`
}

// WebhookConfig Webhook 通知配置
type WebhookConfig struct {
	Enabled      bool              `yaml:"enabled"`                 // 是否启用
	URL          string            `yaml:"url"`                     // Webhook URL
	Headers      map[string]string `yaml:"headers,omitempty"`       // 自定义请求头
	Events       []string          `yaml:"events,omitempty"`        // 订阅的事件类型
	Timeout      int               `yaml:"timeout,omitempty"`       // 请求超时时间（秒），默认30
	Retries      int               `yaml:"retries,omitempty"`       // 重试次数，默认3
	BodyTemplate string            `yaml:"body_template,omitempty"` // 请求体模板（JSON格式）
}

// CanonicalHost 返回 CNAME 重映射后的域名，未配置时原样返回
func (c *Config) CanonicalHost(hostname string) string {
	if target, ok := c.CNAME[domain.Normalize(hostname)]; ok {
		return domain.Normalize(target)
	}
	return hostname
}

// PropagationBudget DNS 生效等待时间
func (c *Config) PropagationBudget() time.Duration {
	return time.Duration(c.PropagationTimeout) * time.Second
}

// GetPostCommand 获取后置命令，未单独配置时使用全局命令
func (r *CertificateRequest) GetPostCommand(global string) string {
	if r.PostCommand != "" {
		return r.PostCommand
	}
	return global
}
