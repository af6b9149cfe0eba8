package csr

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "acme-dns-manager/internal/errors"
)

func newCSR(t *testing.T, cn string, dnsNames []string, ips []net.IP) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	der, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject:     pkix.Name{CommonName: cn},
		DNSNames:    dnsNames,
		IPAddresses: ips,
	}, key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der})
}

func TestParse(t *testing.T) {
	t.Run("主题和SAN统一为小写", func(t *testing.T) {
		data := newCSR(t, "WWW.Example.COM", []string{"alt1.example.com", "ALT2.example.com"}, nil)

		req, err := Parse(data)
		require.NoError(t, err)
		assert.Equal(t, "www.example.com", req.Subject)
		assert.Equal(t, []string{"alt1.example.com", "alt2.example.com"}, req.AltNames)
		assert.NotEmpty(t, req.DER)
	})

	t.Run("重复解析结果相同", func(t *testing.T) {
		data := newCSR(t, "www.example.com", []string{"alt1.example.com"}, nil)

		first, err := Parse(data)
		require.NoError(t, err)
		second, err := Parse(data)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("忽略非DNS类型的SAN", func(t *testing.T) {
		data := newCSR(t, "www.example.com", []string{"alt1.example.com"}, []net.IP{net.ParseIP("192.0.2.1")})

		req, err := Parse(data)
		require.NoError(t, err)
		assert.Equal(t, []string{"alt1.example.com"}, req.AltNames)
	})

	t.Run("缺少CN", func(t *testing.T) {
		data := newCSR(t, "", []string{"alt1.example.com"}, nil)

		_, err := Parse(data)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidCSR))
		assert.True(t, apperrors.IsConfig(err))
	})

	t.Run("不是PEM数据", func(t *testing.T) {
		_, err := Parse([]byte("not a csr"))
		assert.True(t, errors.Is(err, apperrors.ErrInvalidCSR))
	})

	t.Run("PEM类型错误", func(t *testing.T) {
		data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{1, 2, 3}})
		_, err := Parse(data)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidCSR))
	})

	t.Run("DER结构错误", func(t *testing.T) {
		data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: []byte{1, 2, 3}})
		_, err := Parse(data)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidCSR))
	})
}

func TestNames(t *testing.T) {
	req := &Request{Subject: "www.example.com", AltNames: []string{"www.example.com", "alt1.example.com", "alt2.example.com"}}
	assert.Equal(t, []string{"www.example.com", "alt1.example.com", "alt2.example.com"}, req.Names())
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "www.csr")
	require.NoError(t, os.WriteFile(path, newCSR(t, "www.example.com", nil, nil), 0600))

	req, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"www.example.com"}, req.Names())

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.csr"))
	assert.Error(t, err)
}
