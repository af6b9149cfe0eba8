// Package acme 封装 ACME 协议交互：账号、订单、授权、挑战和证书下载
package acme

import (
	"context"
	"crypto"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	legoacme "github.com/go-acme/lego/v4/acme"
	"github.com/go-acme/lego/v4/acme/api"
	"github.com/go-acme/lego/v4/challenge"
	legolog "github.com/go-acme/lego/v4/log"
	"go.uber.org/zap"

	apperrors "acme-dns-manager/internal/errors"
	"acme-dns-manager/internal/logger"
)

const userAgent = "acme-dns-manager"

// Status 订单、授权和挑战的状态，由服务端决定
type Status string

const (
	StatusPending     Status = legoacme.StatusPending
	StatusReady       Status = legoacme.StatusReady
	StatusProcessing  Status = legoacme.StatusProcessing
	StatusValid       Status = legoacme.StatusValid
	StatusInvalid     Status = legoacme.StatusInvalid
	StatusExpired     Status = legoacme.StatusExpired
	StatusRevoked     Status = legoacme.StatusRevoked
	StatusDeactivated Status = legoacme.StatusDeactivated
)

// ChallengeDNS01 DNS-01 挑战类型
const ChallengeDNS01 = string(challenge.DNS01)

// Order ACME 订单
type Order struct {
	URL            string
	Status         Status
	Identifiers    []string
	Authorizations []string
	FinalizeURL    string
	CertificateURL string
}

// Authorization 单个域名的授权
type Authorization struct {
	URL        string
	Identifier string
	Wildcard   bool
	Status     Status
	Challenges []Challenge
}

// Challenge 授权下的挑战
type Challenge struct {
	Type   string
	URL    string
	Token  string
	Status Status
}

// Find 返回指定类型的挑战
func (a Authorization) Find(typ string) (Challenge, bool) {
	for _, ch := range a.Challenges {
		if ch.Type == typ {
			return ch, true
		}
	}
	return Challenge{}, false
}

// Session 已登录账号的 ACME 会话
type Session interface {
	// SubmitOrder 以 DNS 标识创建订单
	SubmitOrder(ctx context.Context, names []string) (*Order, error)
	// Authorizations 读取订单的全部授权
	Authorizations(ctx context.Context, order *Order) ([]Authorization, error)
	// DNS01Value 计算挑战对应的 TXT 记录值
	DNS01Value(ch Challenge) (string, error)
	// MarkReady 通知服务端可以开始验证
	MarkReady(ctx context.Context, ch Challenge) error
	// OrderStatus 重新读取订单状态
	OrderStatus(ctx context.Context, order *Order) (Status, error)
	// Finalize 提交 CSR
	Finalize(ctx context.Context, order *Order, csrDER []byte) error
	// Certificate 下载证书链，尚未签发时返回空
	Certificate(ctx context.Context, order *Order) ([]byte, error)
}

// Client 基于 lego 底层接口的 Session 实现
type Client struct {
	core *api.Core
	log  *zap.Logger
}

var _ Session = (*Client)(nil)

// NewClient 使用已注册账号创建会话
func NewClient(user *User, directoryURL string, log *zap.Logger) (*Client, error) {
	if user.Registration == nil {
		return nil, errors.New("账号未注册")
	}
	log = logger.OrNop(log)
	redirectLegoLog(log)

	signer, ok := user.GetPrivateKey().(crypto.Signer)
	if !ok {
		return nil, errors.New("不支持的密钥类型")
	}

	core, err := api.New(&http.Client{Timeout: 30 * time.Second}, userAgent, directoryURL, user.Registration.URI, signer)
	if err != nil {
		return nil, apperrors.Provider("连接ACME服务端", err)
	}
	return &Client{core: core, log: log}, nil
}

// redirectLegoLog lego 自身日志写入 zap
func redirectLegoLog(log *zap.Logger) {
	legolog.Logger = zap.NewStdLog(log.Named("lego"))
}

// SubmitOrder 创建订单
func (c *Client) SubmitOrder(ctx context.Context, names []string) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o, err := c.core.Orders.New(names)
	if err != nil {
		return nil, apperrors.Provider("创建订单", err)
	}
	return toOrder(o), nil
}

// Authorizations 读取订单的全部授权
func (c *Client) Authorizations(ctx context.Context, order *Order) ([]Authorization, error) {
	authzs := make([]Authorization, 0, len(order.Authorizations))
	for _, url := range order.Authorizations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a, err := c.core.Authorizations.Get(url)
		if err != nil {
			return nil, apperrors.Provider("读取授权", err)
		}

		authz := Authorization{
			URL:        url,
			Identifier: a.Identifier.Value,
			Wildcard:   a.Wildcard,
			Status:     Status(a.Status),
		}
		for _, ch := range a.Challenges {
			authz.Challenges = append(authz.Challenges, Challenge{
				Type:   ch.Type,
				URL:    ch.URL,
				Token:  ch.Token,
				Status: Status(ch.Status),
			})
		}
		authzs = append(authzs, authz)
	}
	return authzs, nil
}

// DNS01Value 返回 base64url(SHA-256(key authorization))
func (c *Client) DNS01Value(ch Challenge) (string, error) {
	keyAuth, err := c.core.GetKeyAuthorization(ch.Token)
	if err != nil {
		return "", fmt.Errorf("计算key authorization失败: %w", err)
	}
	return DNS01Value(keyAuth), nil
}

// DNS01Value 由 key authorization 计算 TXT 记录值
func DNS01Value(keyAuth string) string {
	sum := sha256.Sum256([]byte(keyAuth))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// MarkReady 通知服务端验证挑战
func (c *Client) MarkReady(ctx context.Context, ch Challenge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.core.Challenges.New(ch.URL); err != nil {
		return apperrors.Provider("提交挑战", err)
	}
	return nil
}

// OrderStatus 读取订单当前状态
func (c *Client) OrderStatus(ctx context.Context, order *Order) (Status, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	o, err := c.core.Orders.Get(order.URL)
	if err != nil {
		return "", apperrors.Provider("读取订单状态", err)
	}
	order.Status = Status(o.Status)
	order.CertificateURL = o.Certificate
	return order.Status, nil
}

// Finalize 提交 CSR
func (c *Client) Finalize(ctx context.Context, order *Order, csrDER []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o, err := c.core.Orders.UpdateForCSR(order.FinalizeURL, csrDER)
	if err != nil {
		return apperrors.Provider("提交CSR", err)
	}
	order.Status = Status(o.Status)
	order.CertificateURL = o.Certificate
	return nil
}

// Certificate 订单完成后下载证书链（含签发者证书）
func (c *Client) Certificate(ctx context.Context, order *Order) ([]byte, error) {
	status, err := c.OrderStatus(ctx, order)
	if err != nil {
		return nil, err
	}

	switch status {
	case StatusValid:
	case StatusInvalid:
		return nil, apperrors.Protocol("下载证书", fmt.Errorf("订单 %s 状态为 invalid", order.URL))
	default:
		return nil, nil
	}
	if order.CertificateURL == "" {
		return nil, nil
	}

	cert, _, err := c.core.Certificates.Get(order.CertificateURL, true)
	if err != nil {
		return nil, apperrors.Provider("下载证书", err)
	}
	return cert, nil
}

func toOrder(o legoacme.ExtendedOrder) *Order {
	order := &Order{
		URL:            o.Location,
		Status:         Status(o.Status),
		Authorizations: o.Authorizations,
		FinalizeURL:    o.Finalize,
		CertificateURL: o.Certificate,
	}
	for _, id := range o.Identifiers {
		order.Identifiers = append(order.Identifiers, id.Value)
	}
	return order
}
