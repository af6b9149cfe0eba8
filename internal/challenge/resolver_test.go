package challenge

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startDNSServer(t *testing.T, records map[string][]string) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(req)
			q := req.Question[0]
			values, ok := records[q.Name]
			if !ok {
				m.Rcode = dns.RcodeNameError
			}
			for _, v := range values {
				m.Answer = append(m.Answer, &dns.TXT{
					Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeTXT, Class: dns.ClassINET, Ttl: 60},
					Txt: []string{v[:len(v)/2], v[len(v)/2:]},
				})
			}
			_ = w.WriteMsg(m)
		}),
	}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

func TestDNSResolver(t *testing.T) {
	addr := startDNSServer(t, map[string][]string{
		"_acme-challenge.www.example.com.": {"token-value"},
	})
	r, err := NewDNSResolver([]string{addr}, time.Second)
	require.NoError(t, err)

	t.Run("拼接多段TXT字符串", func(t *testing.T) {
		values, err := r.LookupTXT(context.Background(), "_acme-challenge.www.example.com")
		require.NoError(t, err)
		assert.Equal(t, []string{"token-value"}, values)
	})

	t.Run("域名不存在返回空", func(t *testing.T) {
		values, err := r.LookupTXT(context.Background(), "_acme-challenge.api.example.com")
		require.NoError(t, err)
		assert.Empty(t, values)
	})
}

func TestNewDNSResolver(t *testing.T) {
	_, err := NewDNSResolver(nil, 0)
	assert.Error(t, err)
}
