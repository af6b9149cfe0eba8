package huawei

import (
	"context"
	"fmt"
	"time"

	"github.com/huaweicloud/huaweicloud-sdk-go-v3/core/auth/basic"
	dns "github.com/huaweicloud/huaweicloud-sdk-go-v3/services/dns/v2"
	dnsModel "github.com/huaweicloud/huaweicloud-sdk-go-v3/services/dns/v2/model"
	dnsRegion "github.com/huaweicloud/huaweicloud-sdk-go-v3/services/dns/v2/region"
	"go.uber.org/zap"

	"acme-dns-manager/internal/config"
	"acme-dns-manager/internal/domain"
	apperrors "acme-dns-manager/internal/errors"
	"acme-dns-manager/internal/logger"
	"acme-dns-manager/internal/provider"
)

const (
	pageSize = 500
	// 新增或修改记录后等待权威服务器同步
	settleDelay = 20 * time.Second
	recordTTL   = 60
)

// Client 华为云DNS接口
type Client interface {
	ListPublicZones(request *dnsModel.ListPublicZonesRequest) (*dnsModel.ListPublicZonesResponse, error)
	ListRecordSetsByZone(request *dnsModel.ListRecordSetsByZoneRequest) (*dnsModel.ListRecordSetsByZoneResponse, error)
	CreateRecordSet(request *dnsModel.CreateRecordSetRequest) (*dnsModel.CreateRecordSetResponse, error)
	UpdateRecordSet(request *dnsModel.UpdateRecordSetRequest) (*dnsModel.UpdateRecordSetResponse, error)
}

// DNSProvider 华为云DNS提供商
type DNSProvider struct {
	client Client
	log    *zap.Logger
}

var _ provider.Backend = (*DNSProvider)(nil)

// NewDNSProvider 创建华为云DNS提供商
func NewDNSProvider(cfg *config.HuaweiConfig, log *zap.Logger) (*DNSProvider, error) {
	auth := basic.NewCredentialsBuilder().
		WithAk(cfg.AccessKey).
		WithSk(cfg.SecretKey).
		Build()

	region := cfg.Region
	if region == "" {
		region = "cn-north-4"
	}

	regionObj, err := dnsRegion.SafeValueOf(region)
	if err != nil {
		return nil, fmt.Errorf("无效的区域: %s", region)
	}

	client := dns.NewDnsClient(
		dns.DnsClientBuilder().
			WithRegion(regionObj).
			WithCredential(auth).
			Build())

	return NewWithClient(client, log), nil
}

// NewWithClient 使用指定客户端创建提供商
func NewWithClient(client Client, log *zap.Logger) *DNSProvider {
	return &DNSProvider{client: client, log: logger.OrNop(log).With(zap.String("backend", provider.Huawei))}
}

// Name 返回提供商名称
func (p *DNSProvider) Name() string {
	return provider.Huawei
}

// ListZones 分页列出全部公网域名
func (p *DNSProvider) ListZones(ctx context.Context) ([]provider.Zone, error) {
	var zones []provider.Zone
	for offset := int32(0); ; offset += pageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		limit := int32(pageSize)
		start := offset
		response, err := p.client.ListPublicZones(&dnsModel.ListPublicZonesRequest{Limit: &limit, Offset: &start})
		if err != nil {
			return nil, apperrors.Provider("获取Zone列表", err)
		}
		if response.Zones == nil {
			break
		}

		for _, zone := range *response.Zones {
			if zone.Name == nil || zone.Id == nil {
				continue
			}
			zones = append(zones, provider.Zone{
				Name:     domain.Normalize(*zone.Name),
				Provider: provider.Huawei,
				ID:       *zone.Id,
			})
		}
		if len(*response.Zones) < pageSize {
			break
		}
	}
	return zones, nil
}

// PublishTXT 添加TXT记录集，已存在时更新
func (p *DNSProvider) PublishTXT(ctx context.Context, zone provider.Zone, name, value string) (provider.InitialWait, error) {
	if err := ctx.Err(); err != nil {
		return provider.InitialWait{}, err
	}
	// 华为云记录名使用带末尾点的完整域名，TXT 值需要加引号
	recordName := domain.Normalize(name) + "."
	recordType := "TXT"
	records := []string{`"` + value + `"`}

	recordSetID, err := p.findRecordSet(zone.ID, recordName)
	if err != nil {
		return provider.InitialWait{}, err
	}

	if recordSetID != "" {
		_, err = p.client.UpdateRecordSet(&dnsModel.UpdateRecordSetRequest{
			ZoneId:      zone.ID,
			RecordsetId: recordSetID,
			Body: &dnsModel.UpdateRecordSetReq{
				Name:    &recordName,
				Type:    &recordType,
				Records: &records,
			},
		})
		if err != nil {
			return provider.InitialWait{}, apperrors.Provider("更新DNS记录 "+name, err)
		}
		p.log.Info("[华为云DNS] 记录已更新", zap.String("record", recordName), zap.String("id", recordSetID))
		return provider.ConstantDelay(settleDelay), nil
	}

	ttl := int32(recordTTL)
	_, err = p.client.CreateRecordSet(&dnsModel.CreateRecordSetRequest{
		ZoneId: zone.ID,
		Body: &dnsModel.CreateRecordSetRequestBody{
			Name:    recordName,
			Type:    recordType,
			Ttl:     &ttl,
			Records: records,
		},
	})
	if err != nil {
		return provider.InitialWait{}, apperrors.Provider("添加DNS记录 "+name, err)
	}
	p.log.Info("[华为云DNS] 记录已添加", zap.String("record", recordName), zap.String("zone", zone.Name))
	return provider.ConstantDelay(settleDelay), nil
}

// findRecordSet 查找TXT记录集，返回记录集ID
func (p *DNSProvider) findRecordSet(zoneID, recordName string) (string, error) {
	recordType := "TXT"
	response, err := p.client.ListRecordSetsByZone(&dnsModel.ListRecordSetsByZoneRequest{
		ZoneId: zoneID,
		Name:   &recordName,
		Type:   &recordType,
	})
	if err != nil {
		return "", apperrors.Provider("查询DNS记录 "+recordName, err)
	}

	// Name 是模糊匹配，需要再精确比较
	if response.Recordsets != nil {
		for _, recordSet := range *response.Recordsets {
			if recordSet.Name != nil && *recordSet.Name == recordName &&
				recordSet.Type != nil && *recordSet.Type == recordType && recordSet.Id != nil {
				return *recordSet.Id, nil
			}
		}
	}
	return "", nil
}
