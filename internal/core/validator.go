package core

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"acme-dns-manager/internal/domain"
	"acme-dns-manager/internal/logger"
)

// Validator 检查线上证书是否需要续期
type Validator struct {
	log *zap.Logger

	// fetch 获取 address 上的证书，测试时替换
	fetch func(ctx context.Context, address, serverName string) (*x509.Certificate, error)
	now   func() time.Time
}

// NewValidator 创建验证器
func NewValidator(log *zap.Logger) *Validator {
	return &Validator{log: logger.OrNop(log), fetch: fetchCertificate, now: time.Now}
}

// fetchCertificate 连接 address 读取对端证书，不校验证书链
func fetchCertificate(ctx context.Context, address, serverName string) (*x509.Certificate, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: 10 * time.Second},
		Config: &tls.Config{
			ServerName:         serverName,
			InsecureSkipVerify: true,
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("连接失败: %w", err)
	}
	defer conn.Close()

	certs := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil, fmt.Errorf("未找到证书")
	}
	return certs[0], nil
}

// RenewCheck 线上证书检查结果
type RenewCheck struct {
	NeedRenew     bool
	Expiry        time.Time
	DaysRemaining int
}

// NeedRenew 判断是否需要续期：无法获取证书、域名不匹配或剩余天数不足时返回 true
// names 中每个域名都必须被线上证书覆盖
func (v *Validator) NeedRenew(ctx context.Context, address string, names []string, renewDays int) RenewCheck {
	serverName := ""
	if len(names) > 0 {
		serverName = names[0]
	}
	log := v.log.With(zap.String("address", address))

	cert, err := v.fetch(ctx, address, serverName)
	if err != nil {
		log.Info("无法获取线上证书，将签发新证书", zap.Error(err))
		return RenewCheck{NeedRenew: true}
	}

	certDomains := cert.DNSNames
	if cert.Subject.CommonName != "" {
		certDomains = append([]string{cert.Subject.CommonName}, certDomains...)
	}
	for _, name := range names {
		if !matchDomain(certDomains, name) {
			log.Info("线上证书域名不匹配，需要重新签发",
				zap.Strings("cert_domains", certDomains),
				zap.String("domain", name))
			return RenewCheck{NeedRenew: true, Expiry: cert.NotAfter}
		}
	}

	days := int(cert.NotAfter.Sub(v.now()).Hours() / 24)
	log.Info("线上证书有效期",
		zap.Int("days_remaining", days),
		zap.String("expiry", cert.NotAfter.Format("2006-01-02")))
	return RenewCheck{NeedRenew: days <= renewDays, Expiry: cert.NotAfter, DaysRemaining: days}
}

// matchDomain 检查目标域名是否在证书域名列表中匹配
func matchDomain(certDomains []string, targetDomain string) bool {
	for _, certDomain := range certDomains {
		if domain.MatchDomain(certDomain, targetDomain) {
			return true
		}
	}
	return false
}
