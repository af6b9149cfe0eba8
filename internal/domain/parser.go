package domain

import (
	"strings"

	"github.com/miekg/dns"
)

// ChallengeLabel DNS-01 验证记录前缀
const ChallengeLabel = "_acme-challenge"

// Normalize 统一域名格式：小写、去除首尾空白和末尾的点
func Normalize(name string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
}

// IsValidHostname 检查是否为合法的 DNS 名称（允许通配符首标签）
func IsValidHostname(name string) bool {
	if name == "" || name == "." {
		return false
	}
	_, ok := dns.IsDomainName(name)
	return ok
}

// InZone 检查 hostname 是否属于 zone（完全相同或以 ".zone" 结尾）
// 例如: www.example.com 属于 example.com，badexample.com 不属于
func InZone(hostname, zone string) bool {
	return hostname == zone || strings.HasSuffix(hostname, "."+zone)
}

// RelativeName 提取相对 zone 的主机记录（用于DNS记录的RR值）
// 例如: _acme-challenge.www.example.com 相对 example.com 为 _acme-challenge.www
func RelativeName(fqdn, zone string) string {
	if fqdn == zone {
		return "@"
	}
	if strings.HasSuffix(fqdn, "."+zone) {
		return strings.TrimSuffix(fqdn, "."+zone)
	}
	return fqdn
}

// ChallengeRecordName 返回 hostname 对应的验证记录名
// 通配符域名 *.example.com 与 example.com 共用 _acme-challenge.example.com
func ChallengeRecordName(hostname string) string {
	return ChallengeLabel + "." + strings.TrimPrefix(hostname, "*.")
}

// MatchDomain 检查证书域名是否覆盖目标域名（支持通配符，只匹配一级）
func MatchDomain(certDomain, targetDomain string) bool {
	certDomain = Normalize(certDomain)
	targetDomain = Normalize(targetDomain)

	// 完全匹配
	if certDomain == targetDomain {
		return true
	}

	// 通配符匹配
	if strings.HasPrefix(certDomain, "*.") {
		parent := strings.TrimPrefix(certDomain, "*.")
		label, rest, ok := strings.Cut(targetDomain, ".")
		return ok && label != "" && rest == parent
	}

	return false
}
