package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "acme-dns-manager/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "acme.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("填充默认值", func(t *testing.T) {
		path := writeConfig(t, `
acme:
  email: admin@example.com
cname:
  _acme-challenge.WWW.example.com: _acme-challenge.example.net
certificates:
  - csr_file: certs/www.csr
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, LetsEncryptStaging, cfg.ACME.DirectoryURL)
		assert.Equal(t, "./account.json", cfg.ACME.AccountFile)
		assert.Equal(t, []string{"lightsail", "route53"}, cfg.EnabledBackends())
		assert.Equal(t, 4, cfg.Concurrency)
		assert.Equal(t, 90*time.Second, cfg.PropagationBudget())
		assert.Equal(t, DefaultResolvers, cfg.Resolvers)
		assert.Equal(t, 24, cfg.CheckInterval)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "certs/www.crt", cfg.Certificates[0].Output)
		assert.Equal(t, "_acme-challenge.example.net", cfg.CanonicalHost("_acme-challenge.www.example.com"))
	})

	t.Run("环境变量覆盖配置文件", func(t *testing.T) {
		t.Setenv("ACME_DIRECTORY_URL", LetsEncryptProduction)
		t.Setenv("ACME_CONCURRENCY", "2")
		path := writeConfig(t, `
acme:
  directory_url: https://example.invalid/directory
concurrency: 8
certificates:
  - csr_file: www.csr
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, LetsEncryptProduction, cfg.ACME.DirectoryURL)
		assert.Equal(t, 2, cfg.Concurrency)
	})

	t.Run("未知DNS后端", func(t *testing.T) {
		path := writeConfig(t, `
certificates:
  - csr_file: www.csr
    dns_provider: cloudflare
`)
		_, err := Load(path)
		assert.ErrorIs(t, err, apperrors.ErrUnknownDNS)
		assert.True(t, apperrors.IsConfig(err))
	})

	t.Run("不支持的输出协议", func(t *testing.T) {
		path := writeConfig(t, `
certificates:
  - csr_file: www.csr
    output: https://example.com/www.crt
`)
		_, err := Load(path)
		assert.ErrorIs(t, err, apperrors.ErrInvalidOutput)
	})

	t.Run("没有证书请求", func(t *testing.T) {
		_, err := Load(writeConfig(t, "concurrency: 1\n"))
		assert.Error(t, err)
	})

	t.Run("凭证不完整", func(t *testing.T) {
		path := writeConfig(t, `
providers:
  tencent:
    secret_id: id
certificates:
  - csr_file: www.csr
`)
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("关闭AWS后只剩其他云平台", func(t *testing.T) {
		path := writeConfig(t, `
aws:
  disabled: true
providers:
  aliyun:
    access_key_id: id
    access_key_secret: secret
certificates:
  - csr_file: www.csr
    dns_provider: Aliyun
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"aliyun"}, cfg.EnabledBackends())
		assert.Equal(t, "aliyun", cfg.Certificates[0].DNSProvider)
	})

	t.Run("检查间隔为负数", func(t *testing.T) {
		path := writeConfig(t, `
check_interval: -1
certificates:
  - csr_file: www.csr
`)
		_, err := Load(path)
		assert.ErrorContains(t, err, "check_interval")
	})

	t.Run("环境变量中的检查间隔为负数", func(t *testing.T) {
		t.Setenv("ACME_CHECK_INTERVAL", "-3")
		path := writeConfig(t, `
certificates:
  - csr_file: www.csr
`)
		_, err := Load(path)
		assert.ErrorContains(t, err, "check_interval")
	})

	t.Run("未设置检查间隔时使用默认值", func(t *testing.T) {
		path := writeConfig(t, `
certificates:
  - csr_file: www.csr
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 24, cfg.CheckInterval)
	})

	t.Run("文件不存在", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
}

func TestCanonicalHost(t *testing.T) {
	cfg := &Config{CNAME: map[string]string{"_acme-challenge.www.example.com": "_acme-challenge.example.net"}}
	assert.Equal(t, "_acme-challenge.example.net", cfg.CanonicalHost("_acme-challenge.www.example.com"))
	assert.Equal(t, "api.example.com", cfg.CanonicalHost("api.example.com"))
}

func TestGetPostCommand(t *testing.T) {
	req := CertificateRequest{}
	assert.Equal(t, "systemctl reload nginx", req.GetPostCommand("systemctl reload nginx"))
	req.PostCommand = "echo done"
	assert.Equal(t, "echo done", req.GetPostCommand("systemctl reload nginx"))
}
