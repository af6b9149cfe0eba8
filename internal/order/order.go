// Package order 驱动单个证书请求的 ACME 订单：发布验证记录、等待验证、提交 CSR、下载证书
package order

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"acme-dns-manager/internal/acme"
	"acme-dns-manager/internal/challenge"
	"acme-dns-manager/internal/csr"
	"acme-dns-manager/internal/domain"
	apperrors "acme-dns-manager/internal/errors"
	"acme-dns-manager/internal/logger"
	"acme-dns-manager/internal/provider"
)

const (
	// DefaultPropagationTimeout 单条验证记录的生效等待时间
	DefaultPropagationTimeout = 90 * time.Second

	readyAttempts = 3
	readyInterval = 5 * time.Second
	certAttempts  = 12
	certInterval  = 5 * time.Second
)

// ZoneFinder 查找域名所属的 DNS 区域
type ZoneFinder interface {
	FindZone(hostname string) (provider.Zone, bool)
}

// Publisher 写入验证记录
type Publisher interface {
	Publish(ctx context.Context, zone provider.Zone, name, value string) (challenge.Record, error)
}

// Verifier 等待验证记录生效
type Verifier interface {
	WaitForPropagation(ctx context.Context, rec challenge.Record, timeout time.Duration) error
}

// Option Order 配置项
type Option func(*Order)

// WithPropagationTimeout 设置每条验证记录的生效等待时间
func WithPropagationTimeout(d time.Duration) Option {
	return func(o *Order) {
		if d > 0 {
			o.propagationTimeout = d
		}
	}
}

// WithCanonicalHost 设置 CNAME 重映射函数
func WithCanonicalHost(fn func(string) string) Option {
	return func(o *Order) {
		if fn != nil {
			o.canonical = fn
		}
	}
}

// WithSleep 替换等待函数
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Order) {
		o.sleep = sleep
	}
}

// Order 单个证书请求的订单
type Order struct {
	session   acme.Session
	zones     ZoneFinder
	publisher Publisher
	verifier  Verifier
	log       *zap.Logger

	propagationTimeout time.Duration
	canonical          func(string) string
	sleep              func(ctx context.Context, d time.Duration) error

	state     State
	req       *csr.Request
	acmeOrder *acme.Order
}

// New 创建订单
func New(session acme.Session, zones ZoneFinder, publisher Publisher, verifier Verifier, log *zap.Logger, opts ...Option) *Order {
	o := &Order{
		session:            session,
		zones:              zones,
		publisher:          publisher,
		verifier:           verifier,
		log:                logger.OrNop(log),
		propagationTimeout: DefaultPropagationTimeout,
		canonical:          func(s string) string { return s },
		sleep:              challenge.Sleep,
		state:              StateInit,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State 返回当前状态
func (o *Order) State() State {
	return o.state
}

func (o *Order) advance(to State) error {
	if err := transition(o.state, to); err != nil {
		return err
	}
	o.log.Debug("订单状态变更", zap.Stringer("from", o.state), zap.Stringer("to", to))
	o.state = to
	return nil
}

// fail 进入 Failed 状态并原样返回 err
func (o *Order) fail(err error) error {
	if !o.state.Terminal() {
		o.state = StateFailed
	}
	return err
}

// LoadCSR 载入 CSR，并确认每个域名都有对应的 DNS 区域
// 在任何 ACME 请求之前完成检查
func (o *Order) LoadCSR(req *csr.Request) error {
	if err := transition(o.state, StateCsrLoaded); err != nil {
		return err
	}

	for _, name := range req.Names() {
		host := o.canonical(name)
		if _, ok := o.zones.FindZone(host); !ok {
			return o.fail(apperrors.Config("检查DNS区域", fmt.Errorf("%w: %s", apperrors.ErrNoDNSZone, host)))
		}
	}

	o.req = req
	return o.advance(StateCsrLoaded)
}

// pendingChallenge 需要完成的 DNS-01 挑战
type pendingChallenge struct {
	hostname  string
	challenge acme.Challenge
}

// Issue 完成订单并返回签发的证书
func (o *Order) Issue(ctx context.Context) (*IssuedCertificate, error) {
	if o.state != StateCsrLoaded {
		return nil, transition(o.state, StateOrderSubmitted)
	}
	log := o.log.With(zap.String("domain", o.req.Subject))

	// 1. 创建订单
	names := o.req.Names()
	order, err := o.session.SubmitOrder(ctx, names)
	if err != nil {
		return nil, o.fail(fmt.Errorf("创建订单失败: %w", err))
	}
	o.acmeOrder = order
	if err := o.advance(StateOrderSubmitted); err != nil {
		return nil, o.fail(err)
	}
	log.Info("订单已创建", zap.String("order", order.URL), zap.Strings("names", names))

	// 2. 收集待完成的挑战，缺少 DNS-01 时不发布任何记录
	pending, err := o.collectChallenges(ctx)
	if err != nil {
		return nil, o.fail(err)
	}

	// 3. 逐个发布验证记录，生效后通知服务端验证
	for _, p := range pending {
		if err := o.solve(ctx, log, p); err != nil {
			return nil, o.fail(err)
		}
	}
	if err := o.advance(StateChallengesPublished); err != nil {
		return nil, o.fail(err)
	}

	// 4. 等待订单就绪
	if err := o.advance(StateValidating); err != nil {
		return nil, o.fail(err)
	}
	if err := o.waitReady(ctx, log); err != nil {
		return nil, o.fail(err)
	}

	// 5. 提交 CSR
	if err := o.advance(StateFinalizing); err != nil {
		return nil, o.fail(err)
	}
	if err := o.session.Finalize(ctx, o.acmeOrder, o.req.DER); err != nil {
		return nil, o.fail(fmt.Errorf("提交CSR失败: %w", err))
	}

	// 6. 下载证书
	if err := o.advance(StatePolling); err != nil {
		return nil, o.fail(err)
	}
	cert, err := o.pollCertificate(ctx)
	if err != nil {
		return nil, o.fail(err)
	}
	if err := o.advance(StateIssued); err != nil {
		return nil, o.fail(err)
	}

	log.Info("证书签发成功", zap.String("order", o.acmeOrder.URL))
	return cert, nil
}

func (o *Order) collectChallenges(ctx context.Context) ([]pendingChallenge, error) {
	authzs, err := o.session.Authorizations(ctx, o.acmeOrder)
	if err != nil {
		return nil, fmt.Errorf("读取授权失败: %w", err)
	}

	var pending []pendingChallenge
	for _, authz := range authzs {
		// valid、invalid 等状态无需处理
		if authz.Status != acme.StatusPending {
			continue
		}
		ch, ok := authz.Find(acme.ChallengeDNS01)
		if !ok {
			return nil, apperrors.Protocol("收集挑战", fmt.Errorf("%w: %s", apperrors.ErrDNSChallengeNotSupported, authz.Identifier))
		}
		pending = append(pending, pendingChallenge{hostname: authz.Identifier, challenge: ch})
	}
	return pending, nil
}

// solve 发布单个挑战的 TXT 记录，确认生效后通知服务端验证。
// 同一 CSR 中的 example.com 与 *.example.com 共用 _acme-challenge.example.com，
// 后发布的值会覆盖先前的值，因此必须在前一个挑战提交验证后再处理下一个。
func (o *Order) solve(ctx context.Context, log *zap.Logger, p pendingChallenge) error {
	value, err := o.session.DNS01Value(p.challenge)
	if err != nil {
		return err
	}

	recordName := o.canonical(domain.ChallengeRecordName(p.hostname))
	zone, ok := o.zones.FindZone(recordName)
	if !ok {
		return apperrors.Config("查找DNS区域", fmt.Errorf("%w: %s", apperrors.ErrNoDNSZone, recordName))
	}

	rec, err := o.publisher.Publish(ctx, zone, recordName, value)
	if err != nil {
		return err
	}
	if err := o.verifier.WaitForPropagation(ctx, rec, o.propagationTimeout); err != nil {
		return err
	}

	if err := o.session.MarkReady(ctx, p.challenge); err != nil {
		return fmt.Errorf("通知验证 %s 失败: %w", p.hostname, err)
	}
	log.Info("挑战已提交验证", zap.String("hostname", p.hostname), zap.String("record", recordName))
	return nil
}

func (o *Order) waitReady(ctx context.Context, log *zap.Logger) error {
	for attempt := 1; attempt <= readyAttempts; attempt++ {
		status, err := o.session.OrderStatus(ctx, o.acmeOrder)
		if err != nil {
			return fmt.Errorf("读取订单状态失败: %w", err)
		}

		switch status {
		case acme.StatusReady, acme.StatusValid:
			return nil
		case acme.StatusProcessing:
			return o.sleep(ctx, readyInterval)
		case acme.StatusPending:
			log.Debug("订单仍在验证中", zap.Int("attempt", attempt))
			if attempt < readyAttempts {
				if err := o.sleep(ctx, readyInterval); err != nil {
					return err
				}
			}
		default:
			return apperrors.Protocol("等待订单就绪", fmt.Errorf("%w: 订单状态 %s", apperrors.ErrAcmeChallengeIncomplete, status))
		}
	}
	return apperrors.Protocol("等待订单就绪", fmt.Errorf("%w: 尝试 %d 次后仍未就绪", apperrors.ErrAcmeChallengeIncomplete, readyAttempts))
}

func (o *Order) pollCertificate(ctx context.Context) (*IssuedCertificate, error) {
	for attempt := 1; attempt <= certAttempts; attempt++ {
		if err := o.sleep(ctx, certInterval); err != nil {
			return nil, err
		}
		bundle, err := o.session.Certificate(ctx, o.acmeOrder)
		if err != nil {
			return nil, fmt.Errorf("下载证书失败: %w", err)
		}
		if len(bundle) > 0 {
			return SplitBundle(bundle)
		}
	}
	return nil, apperrors.Timeout("下载证书", apperrors.ErrCertificateIssueTimeout)
}
