// Package csr 解析 PEM 编码的证书签名请求并提取需要验证的域名
package csr

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"acme-dns-manager/internal/domain"
	apperrors "acme-dns-manager/internal/errors"
)

// Request 解析后的证书签名请求，创建后不可修改
type Request struct {
	DER      []byte   // 原始 DER 编码，提交给 ACME 服务端
	Subject  string   // 主题 CN（小写）
	AltNames []string // SAN 中的 DNS 名称（小写）
}

// ParseFile 从文件读取并解析 CSR
func ParseFile(path string) (*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取CSR文件失败: %w", err)
	}
	req, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return req, nil
}

// Parse 解析 PEM 编码的 CSR
func Parse(data []byte) (*Request, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, invalid("未找到PEM数据块")
	}
	if block.Type != "CERTIFICATE REQUEST" && block.Type != "NEW CERTIFICATE REQUEST" {
		return nil, invalid(fmt.Sprintf("PEM类型 %q 不是证书签名请求", block.Type))
	}

	parsed, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, apperrors.Config("解析CSR", fmt.Errorf("%w: %v", apperrors.ErrInvalidCSR, err))
	}

	subject := domain.Normalize(parsed.Subject.CommonName)
	if subject == "" {
		return nil, invalid("缺少主题CN")
	}
	if !domain.IsValidHostname(subject) {
		return nil, invalid(fmt.Sprintf("主题CN %q 不是合法域名", subject))
	}

	// 只读取 DNS 类型的 SAN，其余类型忽略
	altNames := make([]string, 0, len(parsed.DNSNames))
	for _, name := range parsed.DNSNames {
		name = domain.Normalize(name)
		if !domain.IsValidHostname(name) {
			return nil, invalid(fmt.Sprintf("SAN %q 不是合法域名", name))
		}
		altNames = append(altNames, name)
	}

	return &Request{
		DER:      block.Bytes,
		Subject:  subject,
		AltNames: altNames,
	}, nil
}

// Names 返回主题和 SAN 中的全部域名，去重并保持顺序
func (r *Request) Names() []string {
	seen := make(map[string]struct{}, len(r.AltNames)+1)
	names := make([]string, 0, len(r.AltNames)+1)
	for _, name := range append([]string{r.Subject}, r.AltNames...) {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

func invalid(msg string) error {
	return apperrors.Config("解析CSR", fmt.Errorf("%w: %s", apperrors.ErrInvalidCSR, msg))
}
