package challenge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// DefaultQueryTimeout 单次 DNS 查询超时
const DefaultQueryTimeout = 5 * time.Second

// DNSResolver 直接向指定 DNS 服务器查询，不保留任何结果缓存
type DNSResolver struct {
	nameservers []string
	timeout     time.Duration
}

// NewDNSResolver 创建 DNSResolver，nameservers 需要带端口，如 8.8.8.8:53
func NewDNSResolver(nameservers []string, timeout time.Duration) (*DNSResolver, error) {
	if len(nameservers) == 0 {
		return nil, errors.New("未配置DNS服务器")
	}
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &DNSResolver{nameservers: nameservers, timeout: timeout}, nil
}

// LookupTXT 查询 name 的全部 TXT 值，多段字符串拼接为一个值
// 域名不存在时返回空结果
func (r *DNSResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	in, err := r.query(ctx, dns.Fqdn(name), dns.TypeTXT)
	if err != nil {
		return nil, err
	}

	switch in.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, nil
	default:
		return nil, fmt.Errorf("查询 %s 返回 %s", name, dns.RcodeToString[in.Rcode])
	}

	var values []string
	for _, rr := range in.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			values = append(values, strings.Join(txt.Txt, ""))
		}
	}
	return values, nil
}

// query 依次尝试每个服务器，UDP 响应被截断时改用 TCP
func (r *DNSResolver) query(ctx context.Context, fqdn string, rtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(fqdn, rtype)
	m.SetEdns0(4096, false)

	var lastErr error
	for _, ns := range r.nameservers {
		udp := &dns.Client{Net: "udp", Timeout: r.timeout}
		in, _, err := udp.ExchangeContext(ctx, m, ns)
		if in != nil && in.Truncated {
			tcp := &dns.Client{Net: "tcp", Timeout: r.timeout}
			in, _, err = tcp.ExchangeContext(ctx, m, ns)
		}
		if err == nil {
			return in, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = fmt.Errorf("%s: %w", ns, err)
	}
	return nil, lastErr
}
