package aliyun

import (
	"context"
	"fmt"
	"time"

	alidns "github.com/alibabacloud-go/alidns-20150109/v4/client"
	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	"github.com/alibabacloud-go/tea/tea"
	"go.uber.org/zap"

	"acme-dns-manager/internal/config"
	"acme-dns-manager/internal/domain"
	apperrors "acme-dns-manager/internal/errors"
	"acme-dns-manager/internal/logger"
	"acme-dns-manager/internal/provider"
)

const (
	pageSize = 100
	// 新增或修改记录后等待权威服务器同步
	settleDelay = 20 * time.Second
)

// Client 阿里云DNS接口
type Client interface {
	DescribeDomains(request *alidns.DescribeDomainsRequest) (*alidns.DescribeDomainsResponse, error)
	DescribeDomainRecords(request *alidns.DescribeDomainRecordsRequest) (*alidns.DescribeDomainRecordsResponse, error)
	AddDomainRecord(request *alidns.AddDomainRecordRequest) (*alidns.AddDomainRecordResponse, error)
	UpdateDomainRecord(request *alidns.UpdateDomainRecordRequest) (*alidns.UpdateDomainRecordResponse, error)
}

// DNSProvider 阿里云DNS提供商
type DNSProvider struct {
	client Client
	log    *zap.Logger
}

var _ provider.Backend = (*DNSProvider)(nil)

// NewDNSProvider 创建阿里云DNS提供商
func NewDNSProvider(cfg *config.AliyunConfig, log *zap.Logger) (*DNSProvider, error) {
	endpoint := "alidns.cn-hangzhou.aliyuncs.com"
	if cfg.Region != "" {
		endpoint = fmt.Sprintf("alidns.%s.aliyuncs.com", cfg.Region)
	}

	client, err := alidns.NewClient(&openapi.Config{
		AccessKeyId:     tea.String(cfg.AccessKeyID),
		AccessKeySecret: tea.String(cfg.AccessKeySecret),
		Endpoint:        tea.String(endpoint),
	})
	if err != nil {
		return nil, fmt.Errorf("创建阿里云DNS客户端失败: %w", err)
	}

	return NewWithClient(client, log), nil
}

// NewWithClient 使用指定客户端创建提供商
func NewWithClient(client Client, log *zap.Logger) *DNSProvider {
	return &DNSProvider{client: client, log: logger.OrNop(log).With(zap.String("backend", provider.Aliyun))}
}

// Name 返回提供商名称
func (p *DNSProvider) Name() string {
	return provider.Aliyun
}

// ListZones 分页列出全部域名
func (p *DNSProvider) ListZones(ctx context.Context) ([]provider.Zone, error) {
	var zones []provider.Zone
	for page := int64(1); ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := p.client.DescribeDomains(&alidns.DescribeDomainsRequest{
			PageNumber: tea.Int64(page),
			PageSize:   tea.Int64(pageSize),
		})
		if err != nil {
			return nil, apperrors.Provider("列出阿里云域名", err)
		}
		if resp.Body == nil || resp.Body.Domains == nil {
			break
		}

		for _, d := range resp.Body.Domains.Domain {
			zones = append(zones, provider.Zone{
				Name:     domain.Normalize(tea.StringValue(d.DomainName)),
				Provider: provider.Aliyun,
				ID:       tea.StringValue(d.DomainId),
			})
		}
		if len(resp.Body.Domains.Domain) < pageSize || int64(len(zones)) >= tea.Int64Value(resp.Body.TotalCount) {
			break
		}
	}
	return zones, nil
}

// PublishTXT 添加TXT记录，已存在时更新
func (p *DNSProvider) PublishTXT(ctx context.Context, zone provider.Zone, name, value string) (provider.InitialWait, error) {
	if err := ctx.Err(); err != nil {
		return provider.InitialWait{}, err
	}
	rr := domain.RelativeName(domain.Normalize(name), zone.Name)

	// 先检查是否已存在相同记录
	recordID, err := p.findRecord(zone.Name, rr)
	if err != nil {
		return provider.InitialWait{}, err
	}

	if recordID != "" {
		_, err = p.client.UpdateDomainRecord(&alidns.UpdateDomainRecordRequest{
			RecordId: tea.String(recordID),
			RR:       tea.String(rr),
			Type:     tea.String("TXT"),
			Value:    tea.String(value),
		})
		if err != nil {
			return provider.InitialWait{}, apperrors.Provider("更新DNS记录 "+name, err)
		}
		p.log.Info("[阿里云DNS] 记录已更新", zap.String("rr", rr), zap.String("zone", zone.Name), zap.String("id", recordID))
		return provider.ConstantDelay(settleDelay), nil
	}

	_, err = p.client.AddDomainRecord(&alidns.AddDomainRecordRequest{
		DomainName: tea.String(zone.Name),
		RR:         tea.String(rr),
		Type:       tea.String("TXT"),
		Value:      tea.String(value),
	})
	if err != nil {
		return provider.InitialWait{}, apperrors.Provider("添加DNS记录 "+name, err)
	}
	p.log.Info("[阿里云DNS] 记录已添加", zap.String("rr", rr), zap.String("zone", zone.Name))
	return provider.ConstantDelay(settleDelay), nil
}

// findRecord 查找TXT记录，返回记录ID
func (p *DNSProvider) findRecord(zoneName, rr string) (string, error) {
	resp, err := p.client.DescribeDomainRecords(&alidns.DescribeDomainRecordsRequest{
		DomainName: tea.String(zoneName),
		RRKeyWord:  tea.String(rr),
		Type:       tea.String("TXT"),
		PageSize:   tea.Int64(500),
	})
	if err != nil {
		return "", apperrors.Provider("查询DNS记录 "+rr, err)
	}

	// RRKeyWord 是模糊匹配，需要再精确比较
	if resp.Body != nil && resp.Body.DomainRecords != nil {
		for _, record := range resp.Body.DomainRecords.Record {
			if tea.StringValue(record.RR) == rr && tea.StringValue(record.Type) == "TXT" {
				return tea.StringValue(record.RecordId), nil
			}
		}
	}
	return "", nil
}
