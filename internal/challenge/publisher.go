// Package challenge 发布 DNS-01 验证记录并等待其对外可见
package challenge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"acme-dns-manager/internal/logger"
	"acme-dns-manager/internal/provider"
)

// Record 已发布的验证记录
type Record struct {
	Name  string        // 完整记录名，如 _acme-challenge.www.example.com
	Value string        // TXT 值
	Zone  provider.Zone // 所在区域
	Wait  provider.InitialWait
}

// BackendSource 按名称查找 DNS 后端
type BackendSource interface {
	Backend(name string) (provider.Backend, error)
}

// Publisher 按区域所属后端写入 TXT 记录
type Publisher struct {
	backends BackendSource
	log      *zap.Logger
}

// NewPublisher 创建 Publisher
func NewPublisher(backends BackendSource, log *zap.Logger) *Publisher {
	return &Publisher{backends: backends, log: logger.OrNop(log)}
}

// Publish 在 zone 中创建或覆盖名为 name 的 TXT 记录
// 后端写入成功不代表记录已对外可见，需要再调用 Verifier
func (p *Publisher) Publish(ctx context.Context, zone provider.Zone, name, value string) (Record, error) {
	backend, err := p.backends.Backend(zone.Provider)
	if err != nil {
		return Record{}, err
	}

	wait, err := backend.PublishTXT(ctx, zone, name, value)
	if err != nil {
		return Record{}, fmt.Errorf("发布验证记录 %s 失败: %w", name, err)
	}

	p.log.Info("验证记录已发布",
		zap.String("record", name),
		zap.String("zone", zone.Name),
		zap.String("backend", zone.Provider),
		zap.Stringer("wait", wait))
	return Record{Name: name, Value: value, Zone: zone, Wait: wait}, nil
}
