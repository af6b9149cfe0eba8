package notification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"acme-dns-manager/internal/config"
)

func newTestNotifier(t *testing.T, cfg *config.WebhookConfig) *WebhookNotifier {
	t.Helper()
	w := NewWebhookNotifier(cfg, nil)
	require.NotNil(t, w)
	w.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return w
}

func TestNewWebhookNotifierDisabled(t *testing.T) {
	assert.Nil(t, NewWebhookNotifier(nil, nil))
	assert.Nil(t, NewWebhookNotifier(&config.WebhookConfig{URL: "http://localhost"}, nil))

	var w *WebhookNotifier
	assert.False(t, w.IsEnabled())
	assert.NoError(t, w.NotifyCertFailed(context.Background(), "www.example.com", "run-1", "boom"))
}

func TestShouldNotify(t *testing.T) {
	w := newTestNotifier(t, &config.WebhookConfig{Enabled: true, URL: "http://localhost", Events: []string{"cert_failed"}})
	assert.True(t, w.ShouldNotify(EventCertFailed))
	assert.False(t, w.ShouldNotify(EventCertRenewed))

	w = newTestNotifier(t, &config.WebhookConfig{Enabled: true, URL: "http://localhost"})
	assert.True(t, w.ShouldNotify(EventCertRenewed))
}

func TestNotify(t *testing.T) {
	t.Run("默认JSON格式和自定义请求头", func(t *testing.T) {
		var got EventData
		var token string
		srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			token = r.Header.Get("X-Token")
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			rw.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		w := newTestNotifier(t, &config.WebhookConfig{Enabled: true, URL: srv.URL, Headers: map[string]string{"X-Token": "secret"}})
		err := w.NotifyCertRenewed(context.Background(), "www.example.com", "run-1", "s3://certs/www.crt", []string{"www.example.com"})
		require.NoError(t, err)

		assert.Equal(t, "secret", token)
		assert.Equal(t, "cert_renewed", got.Event)
		assert.Equal(t, "www.example.com", got.Domain)
		assert.Equal(t, "run-1", got.RunID)
		assert.Equal(t, "s3://certs/www.crt", got.Data["output"])
	})

	t.Run("服务端错误时重试", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				rw.WriteHeader(http.StatusBadGateway)
				return
			}
			rw.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		w := newTestNotifier(t, &config.WebhookConfig{Enabled: true, URL: srv.URL, Retries: 3})
		require.NoError(t, w.NotifyCertFailed(context.Background(), "www.example.com", "run-1", "boom"))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("重试次数用完", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			rw.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		w := newTestNotifier(t, &config.WebhookConfig{Enabled: true, URL: srv.URL, Retries: 2})
		err := w.NotifyDNSValidationTimeout(context.Background(), "www.example.com", "run-1", "timeout")
		assert.ErrorContains(t, err, "503")
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("客户端错误不重试", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			rw.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		w := newTestNotifier(t, &config.WebhookConfig{Enabled: true, URL: srv.URL, Retries: 3})
		assert.Error(t, w.NotifyCertExpiring(context.Background(), "www.example.com", "run-1", 5))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("自定义模板", func(t *testing.T) {
		var body string
		srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			body = string(b)
		}))
		defer srv.Close()

		w := newTestNotifier(t, &config.WebhookConfig{
			Enabled:      true,
			URL:          srv.URL,
			BodyTemplate: `{"text":"{{.Event}} {{.Domain}}","data":{{toJson .Data}}}`,
		})
		require.NoError(t, w.NotifyCertExpiring(context.Background(), "www.example.com", "run-1", 5))
		assert.JSONEq(t, `{"text":"cert_expiring www.example.com","data":{"days_remaining":5}}`, body)
	})
}
