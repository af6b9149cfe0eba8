// Package notification 通过 Webhook 发送证书事件通知
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"text/template"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"acme-dns-manager/internal/config"
	"acme-dns-manager/internal/logger"
)

// EventType 事件类型
type EventType string

const (
	EventCertExpiring         EventType = "cert_expiring" // 证书即将过期
	EventCertRenewed          EventType = "cert_renewed"  // 证书签发成功
	EventCertFailed           EventType = "cert_failed"   // 证书签发失败
	EventDNSValidationTimeout EventType = "dns_timeout"   // 验证记录生效超时
)

// EventData 事件数据
type EventData struct {
	Event     string         `json:"event"`          // 事件类型
	Domain    string         `json:"domain"`         // 域名
	RunID     string         `json:"run_id"`         // 本次签发的标识
	Timestamp string         `json:"timestamp"`      // 时间戳
	Message   string         `json:"message"`        // 消息
	Data      map[string]any `json:"data,omitempty"` // 额外数据
}

// WebhookNotifier Webhook 通知器
type WebhookNotifier struct {
	config *config.WebhookConfig
	client *http.Client
	log    *zap.Logger

	newBackOff func() backoff.BackOff
}

// NewWebhookNotifier 创建 Webhook 通知器，未启用时返回 nil
func NewWebhookNotifier(cfg *config.WebhookConfig, log *zap.Logger) *WebhookNotifier {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &WebhookNotifier{
		config:     cfg,
		client:     &http.Client{Timeout: timeout},
		log:        logger.OrNop(log),
		newBackOff: defaultBackOff,
	}
}

// defaultBackOff 指数退避：1s, 2s, 4s ...
func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return b
}

// IsEnabled 检查是否启用
func (w *WebhookNotifier) IsEnabled() bool {
	return w != nil && w.config != nil && w.config.Enabled
}

// ShouldNotify 检查是否应该发送该事件的通知
func (w *WebhookNotifier) ShouldNotify(eventType EventType) bool {
	if !w.IsEnabled() {
		return false
	}
	// 没有配置事件列表时发送所有事件
	if len(w.config.Events) == 0 {
		return true
	}
	return slices.Contains(w.config.Events, string(eventType))
}

// Notify 发送通知，失败时按指数退避重试
func (w *WebhookNotifier) Notify(ctx context.Context, eventType EventType, domain, runID, message string, data map[string]any) error {
	if !w.ShouldNotify(eventType) {
		return nil
	}

	eventData := EventData{
		Event:     string(eventType),
		Domain:    domain,
		RunID:     runID,
		Timestamp: time.Now().Format(time.RFC3339),
		Message:   message,
		Data:      data,
	}

	body, err := w.buildBody(eventData)
	if err != nil {
		return err
	}

	retries := w.config.Retries
	if retries <= 0 {
		retries = 3
	}

	attempt := 0
	send := func() error {
		attempt++
		return w.send(ctx, body)
	}
	onRetry := func(err error, next time.Duration) {
		w.log.Warn("Webhook 通知失败，稍后重试",
			zap.Error(err),
			zap.Duration("backoff", next),
			zap.Int("attempt", attempt),
			zap.Int("retries", retries))
	}

	b := backoff.WithContext(backoff.WithMaxRetries(w.newBackOff(), uint64(retries-1)), ctx)
	if err := backoff.RetryNotify(send, b, onRetry); err != nil {
		w.log.Error("Webhook 通知发送失败", zap.Int("attempts", attempt), zap.Error(err))
		return err
	}

	w.log.Info("Webhook 通知发送成功",
		zap.String("url", w.config.URL),
		zap.String("event", string(eventType)),
		zap.String("domain", domain))
	return nil
}

func (w *WebhookNotifier) send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("创建请求失败: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range w.config.Headers {
		req.Header.Set(key, value)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	err = fmt.Errorf("Webhook 返回错误状态码: %d", resp.StatusCode)
	// 4xx 重试也不会成功
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}
	return err
}

// buildBody 生成请求体，配置了模板时优先使用模板
func (w *WebhookNotifier) buildBody(eventData EventData) ([]byte, error) {
	if w.config.BodyTemplate != "" {
		body, err := renderTemplate(w.config.BodyTemplate, eventData)
		if err == nil {
			return body, nil
		}
		w.log.Warn("渲染 Webhook 请求体模板失败，使用默认格式", zap.Error(err))
	}

	body, err := json.Marshal(eventData)
	if err != nil {
		return nil, fmt.Errorf("序列化事件数据失败: %w", err)
	}
	return body, nil
}

// renderTemplate 渲染模板
func renderTemplate(tmplStr string, data EventData) ([]byte, error) {
	funcMap := template.FuncMap{
		"toJson": func(v any) string {
			b, err := json.Marshal(v)
			if err != nil {
				return "null"
			}
			return string(b)
		},
	}

	tmpl, err := template.New("webhook").Funcs(funcMap).Parse(tmplStr)
	if err != nil {
		return nil, fmt.Errorf("解析模板失败: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("渲染模板失败: %w", err)
	}
	return buf.Bytes(), nil
}

// NotifyCertExpiring 通知证书即将过期
func (w *WebhookNotifier) NotifyCertExpiring(ctx context.Context, domain, runID string, daysRemaining int) error {
	message := fmt.Sprintf("证书即将过期: %s (剩余 %d 天)", domain, daysRemaining)
	return w.Notify(ctx, EventCertExpiring, domain, runID, message, map[string]any{
		"days_remaining": daysRemaining,
	})
}

// NotifyCertRenewed 通知证书签发成功
func (w *WebhookNotifier) NotifyCertRenewed(ctx context.Context, domain, runID, output string, names []string) error {
	message := fmt.Sprintf("证书签发成功: %s", domain)
	return w.Notify(ctx, EventCertRenewed, domain, runID, message, map[string]any{
		"output": output,
		"names":  names,
	})
}

// NotifyCertFailed 通知证书签发失败
func (w *WebhookNotifier) NotifyCertFailed(ctx context.Context, domain, runID, reason string) error {
	message := fmt.Sprintf("证书签发失败: %s", domain)
	return w.Notify(ctx, EventCertFailed, domain, runID, message, map[string]any{
		"reason": reason,
	})
}

// NotifyDNSValidationTimeout 通知验证记录生效超时
func (w *WebhookNotifier) NotifyDNSValidationTimeout(ctx context.Context, domain, runID, reason string) error {
	message := fmt.Sprintf("DNS 验证超时: %s", domain)
	return w.Notify(ctx, EventDNSValidationTimeout, domain, runID, message, map[string]any{
		"reason": reason,
	})
}
