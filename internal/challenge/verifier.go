package challenge

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	apperrors "acme-dns-manager/internal/errors"
	"acme-dns-manager/internal/logger"
	"acme-dns-manager/internal/provider"
)

// DefaultPollInterval DNS 查询间隔
const DefaultPollInterval = 10 * time.Second

// Resolver 不使用本地缓存的 TXT 查询
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Verifier 等待验证记录对外可见
type Verifier struct {
	resolver Resolver
	interval time.Duration
	log      *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// VerifierOption Verifier 配置项
type VerifierOption func(*Verifier)

// WithPollInterval 设置查询间隔
func WithPollInterval(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		v.interval = d
	}
}

// WithClock 替换时间来源和等待函数
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) VerifierOption {
	return func(v *Verifier) {
		v.now = now
		v.sleep = sleep
	}
}

// NewVerifier 创建 Verifier
func NewVerifier(resolver Resolver, log *zap.Logger, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		resolver: resolver,
		interval: DefaultPollInterval,
		log:      logger.OrNop(log),
		now:      time.Now,
		sleep:    Sleep,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// WaitForPropagation 等待 rec 对外可见，timeout 包含初始等待阶段
//
// 初始阶段按发布时返回的策略等待（固定等待或轮询后端变更状态），
// 之后每个间隔查询一次 TXT 记录，查到完全相同的值即成功。
func (v *Verifier) WaitForPropagation(ctx context.Context, rec Record, timeout time.Duration) error {
	start := v.now()
	elapsed := func() time.Duration { return v.now().Sub(start) }
	log := v.log.With(zap.String("record", rec.Name))

	// 1. 初始等待
	switch rec.Wait.Kind {
	case provider.WaitConstantDelay:
		if d := rec.Wait.Delay - v.interval; d > 0 {
			log.Debug("等待后端同步", zap.Duration("delay", d))
			if err := v.sleep(ctx, d); err != nil {
				return err
			}
		}
	case provider.WaitTrackChange:
		for elapsed() < timeout {
			inSync, err := rec.Wait.Tracker.ChangeInSync(ctx, rec.Wait.ChangeID)
			if err != nil {
				return err
			}
			if inSync {
				log.Debug("后端变更已同步", zap.Duration("elapsed", elapsed()))
				break
			}
			if err := v.sleep(ctx, v.interval); err != nil {
				return err
			}
		}
	}

	// 2. 轮询 DNS
	attempts := 0
	for elapsed() < timeout {
		if err := v.sleep(ctx, v.interval); err != nil {
			return err
		}
		attempts++

		values, err := v.resolver.LookupTXT(ctx, rec.Name)
		if err != nil {
			log.Debug("查询TXT记录失败", zap.Int("attempt", attempts), zap.Error(err))
			continue
		}
		if slices.Contains(values, rec.Value) {
			log.Info("验证记录已生效", zap.Int("attempts", attempts), zap.Duration("elapsed", elapsed()))
			return nil
		}
	}

	return apperrors.Timeout("等待DNS生效",
		fmt.Errorf("%w: %s 在 %s 内未查到预期的值", apperrors.ErrDNSUpdateTimeout, rec.Name, timeout))
}

// Sleep 等待 d，ctx 取消时提前返回
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
