package core

import (
	"context"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestValidator(cert *x509.Certificate, err error, now time.Time) *Validator {
	v := NewValidator(nil)
	v.fetch = func(context.Context, string, string) (*x509.Certificate, error) {
		return cert, err
	}
	v.now = func() time.Time { return now }
	return v
}

func TestNeedRenew(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cert := &x509.Certificate{
		Subject:  pkix.Name{CommonName: "example.com"},
		DNSNames: []string{"example.com", "*.example.com"},
		NotAfter: now.Add(40 * 24 * time.Hour),
	}

	tests := []struct {
		name      string
		cert      *x509.Certificate
		err       error
		names     []string
		renewDays int
		want      bool
		wantDays  int
	}{
		{"有效期充足", cert, nil, []string{"example.com", "www.example.com"}, 30, false, 40},
		{"有效期不足", cert, nil, []string{"example.com"}, 45, true, 40},
		{"通配符只匹配一级", cert, nil, []string{"a.b.example.com"}, 30, true, 0},
		{"无法连接", nil, errors.New("refused"), []string{"example.com"}, 30, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestValidator(tt.cert, tt.err, now)
			check := v.NeedRenew(context.Background(), "example.com:443", tt.names, tt.renewDays)
			assert.Equal(t, tt.want, check.NeedRenew)
			assert.Equal(t, tt.wantDays, check.DaysRemaining)
		})
	}
}
