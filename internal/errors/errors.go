// Package errors 定义签发流程中使用的错误类别与预定义错误
package errors

import (
	"errors"
	"fmt"
)

// 预定义错误
var (
	// 配置相关
	ErrNoDNSZone     = errors.New("no dns zone owns hostname")
	ErrInvalidCSR    = errors.New("invalid certificate signing request")
	ErrConfigExists  = errors.New("configuration already exists")
	ErrInvalidOutput = errors.New("invalid output target")
	ErrUnknownDNS    = errors.New("unknown dns provider")

	// 协议相关
	ErrDNSChallengeNotSupported = errors.New("authorization offers no dns-01 challenge")
	ErrAcmeChallengeIncomplete  = errors.New("acme challenges did not complete")
	ErrInvalidBundle            = errors.New("certificate bundle must contain exactly two pem blocks")
	ErrInvalidTransition        = errors.New("invalid order state transition")

	// 超时相关
	ErrDNSUpdateTimeout        = errors.New("dns record did not propagate in time")
	ErrCertificateIssueTimeout = errors.New("certificate was not issued in time")
)

// Kind 错误类别
type Kind string

const (
	KindConfig   Kind = "config"
	KindProvider Kind = "provider"
	KindTimeout  Kind = "timeout"
	KindProtocol Kind = "protocol"
)

// Error 带类别的错误
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("[%s] %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New 创建带类别的错误
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Config 包装配置错误
func Config(op string, err error) error { return New(KindConfig, op, err) }

// Provider 包装 DNS 后端或 ACME 服务端错误
func Provider(op string, err error) error { return New(KindProvider, op, err) }

// Timeout 包装超时错误
func Timeout(op string, err error) error { return New(KindTimeout, op, err) }

// Protocol 包装 ACME 协议状态错误
func Protocol(op string, err error) error { return New(KindProtocol, op, err) }

// KindOf 返回错误链中第一个带类别错误的类别
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsTimeout 判断是否为超时错误
func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}

// IsConfig 判断是否为配置错误
func IsConfig(err error) bool {
	return KindOf(err) == KindConfig
}
