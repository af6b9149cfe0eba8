// Package core 协调多个证书请求的签发流程
package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"acme-dns-manager/internal/acme"
	"acme-dns-manager/internal/challenge"
	"acme-dns-manager/internal/config"
	"acme-dns-manager/internal/csr"
	apperrors "acme-dns-manager/internal/errors"
	"acme-dns-manager/internal/logger"
	"acme-dns-manager/internal/notification"
	"acme-dns-manager/internal/order"
	"acme-dns-manager/internal/storage"
	"acme-dns-manager/internal/zone"
)

// DefaultConcurrency 同时处理的证书请求数
const DefaultConcurrency = 4

// IssueFunc 处理单个证书请求
type IssueFunc func(ctx context.Context, req config.CertificateRequest) error

// Manager 证书管理器
type Manager struct {
	config    *config.Config
	factory   *Factory
	validator *Validator
	executor  *Executor
	notifier  *notification.WebhookNotifier
	log       *zap.Logger
}

// NewManager 创建管理器
func NewManager(cfg *config.Config, log *zap.Logger) *Manager {
	log = logger.OrNop(log)
	return &Manager{
		config:    cfg,
		factory:   NewFactory(cfg, log),
		validator: NewValidator(log),
		executor:  NewExecutor(log),
		notifier:  notification.NewWebhookNotifier(cfg.Webhook, log),
		log:       log,
	}
}

// GetConfig 获取配置
func (m *Manager) GetConfig() *config.Config {
	return m.config
}

// pipeline 一次运行中所有证书请求共用的组件，创建后只读
type pipeline struct {
	runID     string
	registry  *zone.Registry
	session   acme.Session
	publisher *challenge.Publisher
	verifier  *challenge.Verifier
	writer    *storage.Writer
	log       *zap.Logger
}

// Run 处理配置中的全部证书请求，返回第一个失败的错误
func (m *Manager) Run(ctx context.Context) error {
	runID := uuid.NewString()
	log := m.log.With(zap.String("run_id", runID))
	log.Info("========== 开始签发证书 ==========", zap.Int("requests", len(m.config.Certificates)))

	p, err := m.prepare(ctx, runID, log)
	if err != nil {
		return err
	}

	err = m.IssueAll(ctx, m.config.Certificates, func(ctx context.Context, req config.CertificateRequest) error {
		return m.process(ctx, p, req)
	})

	log.Info("========== 签发完成 ==========", zap.Bool("success", err == nil))
	return err
}

// prepare 加载账号和全部 DNS 区域，只执行一次
func (m *Manager) prepare(ctx context.Context, runID string, log *zap.Logger) (*pipeline, error) {
	// 1. 加载 ACME 账号
	user, err := acme.LoadUser(m.config.ACME.AccountFile)
	if err != nil {
		return nil, apperrors.Config("加载ACME账号", err)
	}

	// 2. 加载全部 DNS 区域
	backends, err := m.factory.Backends(ctx)
	if err != nil {
		return nil, err
	}
	registry, err := zone.Load(ctx, log, backends...)
	if err != nil {
		return nil, fmt.Errorf("加载DNS区域失败: %w", err)
	}

	// 3. 创建 ACME 会话
	session, err := acme.NewClient(user, m.config.ACME.DirectoryURL, log)
	if err != nil {
		return nil, err
	}

	// 4. 验证记录发布与查询
	resolver, err := challenge.NewDNSResolver(m.config.Resolvers, 0)
	if err != nil {
		return nil, apperrors.Config("创建DNS查询", err)
	}
	writer, err := m.factory.Writer(ctx)
	if err != nil {
		return nil, err
	}

	return &pipeline{
		runID:     runID,
		registry:  registry,
		session:   session,
		publisher: challenge.NewPublisher(registry, log),
		verifier:  challenge.NewVerifier(resolver, log),
		writer:    writer,
		log:       log,
	}, nil
}

// IssueAll 并发处理证书请求，同时最多 concurrency 个
// 某个请求失败不会取消其他请求，已完成的签发不回滚，返回第一个错误
func (m *Manager) IssueAll(ctx context.Context, reqs []config.CertificateRequest, issue IssueFunc) error {
	limit := m.config.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for _, req := range reqs {
		g.Go(func() error {
			return issue(ctx, req)
		})
	}
	return g.Wait()
}

// process 处理单个证书请求
func (m *Manager) process(ctx context.Context, p *pipeline, req config.CertificateRequest) error {
	log := p.log.With(zap.String("csr", req.CSRFile))

	// 1. 读取 CSR
	parsed, err := csr.ParseFile(req.CSRFile)
	if err != nil {
		m.reportFailure(ctx, p.runID, req.CSRFile, err)
		return err
	}
	log = log.With(zap.String("domain", parsed.Subject))
	log.Info("========== 处理证书请求 ==========", zap.Strings("names", parsed.Names()))

	// 2. 检查线上证书
	if req.RenewDays > 0 {
		check := m.validator.NeedRenew(ctx, checkAddress(req, parsed), parsed.Names(), req.RenewDays)
		if !check.NeedRenew {
			log.Info("线上证书有效，无需续期", zap.Int("days_remaining", check.DaysRemaining))
			return nil
		}
		if check.DaysRemaining > 0 {
			m.notify(ctx, func() error {
				return m.notifier.NotifyCertExpiring(ctx, parsed.Subject, p.runID, check.DaysRemaining)
			})
		}
	}

	// 3. 签发
	zones := p.registry
	if req.DNSProvider != "" {
		zones = zones.Only(req.DNSProvider)
	}
	o := order.New(p.session, zones, p.publisher, p.verifier, log,
		order.WithPropagationTimeout(m.config.PropagationBudget()),
		order.WithCanonicalHost(m.config.CanonicalHost),
	)
	if err := o.LoadCSR(parsed); err != nil {
		m.reportFailure(ctx, p.runID, parsed.Subject, err)
		return fmt.Errorf("签发 %s 失败: %w", parsed.Subject, err)
	}
	cert, err := o.Issue(ctx)
	if err != nil {
		m.reportFailure(ctx, p.runID, parsed.Subject, err)
		return fmt.Errorf("签发 %s 失败: %w", parsed.Subject, err)
	}

	// 4. 保存证书
	if err := p.writer.Write(ctx, req.Output, cert.Leaf); err != nil {
		m.reportFailure(ctx, p.runID, parsed.Subject, err)
		return fmt.Errorf("保存 %s 证书失败: %w", parsed.Subject, err)
	}
	if req.ChainOutput != "" {
		if err := p.writer.Write(ctx, req.ChainOutput, cert.Chain()); err != nil {
			m.reportFailure(ctx, p.runID, parsed.Subject, err)
			return fmt.Errorf("保存 %s 证书链失败: %w", parsed.Subject, err)
		}
	}

	// 5. 后置命令，失败只记录日志
	if command := req.GetPostCommand(m.config.PostCommand); command != "" {
		vars := m.executor.BuildVars(parsed.Subject, req.Output, req.ChainOutput, req.CSRFile)
		if err := m.executor.RunPostCommand(ctx, command, vars); err != nil {
			log.Error("执行后置命令失败", zap.Error(err))
		}
	}

	m.notify(ctx, func() error {
		return m.notifier.NotifyCertRenewed(ctx, parsed.Subject, p.runID, req.Output, parsed.Names())
	})
	log.Info("证书处理完成", zap.String("output", req.Output))
	return nil
}

// reportFailure 记录失败并发送通知，生效超时单独通知
func (m *Manager) reportFailure(ctx context.Context, runID, name string, err error) {
	m.log.Error("证书签发失败",
		zap.String("run_id", runID),
		zap.String("domain", name),
		zap.String("kind", string(apperrors.KindOf(err))),
		zap.Error(err))

	if errors.Is(err, apperrors.ErrDNSUpdateTimeout) {
		m.notify(ctx, func() error {
			return m.notifier.NotifyDNSValidationTimeout(ctx, name, runID, err.Error())
		})
		return
	}
	m.notify(ctx, func() error {
		return m.notifier.NotifyCertFailed(ctx, name, runID, err.Error())
	})
}

// notify 发送通知，失败不影响签发结果
func (m *Manager) notify(ctx context.Context, send func() error) {
	if !m.notifier.IsEnabled() {
		return
	}
	if err := send(); err != nil {
		m.log.Warn("发送通知失败", zap.Error(err))
	}
}

// checkAddress 线上证书检查地址，默认 CN:443
func checkAddress(req config.CertificateRequest, parsed *csr.Request) string {
	if req.CheckAddress != "" {
		return req.CheckAddress
	}
	return net.JoinHostPort(strings.TrimPrefix(parsed.Subject, "*."), "443")
}
