// Package zone 汇总各 DNS 后端的托管区域，并按域名查找所属区域
package zone

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"acme-dns-manager/internal/domain"
	apperrors "acme-dns-manager/internal/errors"
	"acme-dns-manager/internal/logger"
	"acme-dns-manager/internal/provider"
)

// Registry 全部后端的托管区域，加载后只读，可并发使用
type Registry struct {
	zones    []provider.Zone
	backends map[string]provider.Backend
}

// Load 并发调用每个后端的 ListZones，任一后端失败则整体失败
// 结果按后端顺序拼接
func Load(ctx context.Context, log *zap.Logger, backends ...provider.Backend) (*Registry, error) {
	log = logger.OrNop(log)
	results := make([][]provider.Zone, len(backends))

	g, gctx := errgroup.WithContext(ctx)
	for i, b := range backends {
		g.Go(func() error {
			zones, err := b.ListZones(gctx)
			if err != nil {
				return fmt.Errorf("加载 %s 托管区域失败: %w", b.Name(), err)
			}
			results[i] = zones
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r := &Registry{backends: make(map[string]provider.Backend, len(backends))}
	for i, b := range backends {
		r.backends[b.Name()] = b
		r.zones = append(r.zones, results[i]...)
		log.Info("已加载托管区域", zap.String("backend", b.Name()), zap.Int("count", len(results[i])))
	}
	return r, nil
}

// New 使用已知区域创建 Registry
func New(zones []provider.Zone, backends ...provider.Backend) *Registry {
	r := &Registry{zones: zones, backends: make(map[string]provider.Backend, len(backends))}
	for _, b := range backends {
		r.backends[b.Name()] = b
	}
	return r
}

// Zones 返回全部区域
func (r *Registry) Zones() []provider.Zone {
	return r.zones
}

// FindZone 返回 hostname 所属的区域：在 zone 名等于 hostname 或为其上级域名的区域中
// 选名称最长的一个，长度相同时取先出现的
//
// 注意: 不检查 NS 委派。若区域内某个子域名已通过 NS 记录委派给其他服务器，
// 仍会匹配到上级区域，写入的记录对外不可见，最终以 DNS 生效超时失败。
func (r *Registry) FindZone(hostname string) (provider.Zone, bool) {
	hostname = domain.Normalize(hostname)

	var (
		best  provider.Zone
		found bool
	)
	for _, z := range r.zones {
		if !domain.InZone(hostname, z.Name) {
			continue
		}
		if !found || len(z.Name) > len(best.Name) {
			best, found = z, true
		}
	}
	return best, found
}

// Backend 返回区域所属的后端
func (r *Registry) Backend(name string) (provider.Backend, error) {
	b, ok := r.backends[name]
	if !ok {
		return nil, apperrors.Config("查找DNS后端", fmt.Errorf("%w: %s", apperrors.ErrUnknownDNS, name))
	}
	return b, nil
}

// Only 返回只包含指定后端区域的视图
func (r *Registry) Only(name string) *Registry {
	view := &Registry{backends: r.backends}
	for _, z := range r.zones {
		if z.Provider == name {
			view.zones = append(view.zones, z)
		}
	}
	return view
}
