package tencent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	tcerr "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/errors"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	dnspod "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/dnspod/v20210323"
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
	defaultLine = "默认"
)

// Client DNSPod 接口
type Client interface {
	DescribeDomainListWithContext(ctx context.Context, request *dnspod.DescribeDomainListRequest) (*dnspod.DescribeDomainListResponse, error)
	DescribeRecordListWithContext(ctx context.Context, request *dnspod.DescribeRecordListRequest) (*dnspod.DescribeRecordListResponse, error)
	CreateRecordWithContext(ctx context.Context, request *dnspod.CreateRecordRequest) (*dnspod.CreateRecordResponse, error)
	ModifyRecordWithContext(ctx context.Context, request *dnspod.ModifyRecordRequest) (*dnspod.ModifyRecordResponse, error)
}

// DNSProvider 腾讯云DNS提供商 (DNSPod)
type DNSProvider struct {
	client Client
	log    *zap.Logger
}

var _ provider.Backend = (*DNSProvider)(nil)

// NewDNSProvider 创建腾讯云DNS提供商
func NewDNSProvider(cfg *config.TencentConfig, log *zap.Logger) (*DNSProvider, error) {
	credential := common.NewCredential(cfg.SecretID, cfg.SecretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "dnspod.tencentcloudapi.com"

	client, err := dnspod.NewClient(credential, "", cpf)
	if err != nil {
		return nil, fmt.Errorf("创建腾讯云DNSPod客户端失败: %w", err)
	}

	return NewWithClient(client, log), nil
}

// NewWithClient 使用指定客户端创建提供商
func NewWithClient(client Client, log *zap.Logger) *DNSProvider {
	return &DNSProvider{client: client, log: logger.OrNop(log).With(zap.String("backend", provider.Tencent))}
}

// Name 返回提供商名称
func (p *DNSProvider) Name() string {
	return provider.Tencent
}

// ListZones 分页列出全部域名
func (p *DNSProvider) ListZones(ctx context.Context) ([]provider.Zone, error) {
	var zones []provider.Zone
	for offset := int64(0); ; offset += pageSize {
		request := dnspod.NewDescribeDomainListRequest()
		request.Offset = common.Int64Ptr(offset)
		request.Limit = common.Int64Ptr(pageSize)

		response, err := p.client.DescribeDomainListWithContext(ctx, request)
		if err != nil {
			return nil, apperrors.Provider("列出DNSPod域名", err)
		}
		if response.Response == nil {
			break
		}

		for _, d := range response.Response.DomainList {
			if d.Name == nil {
				continue
			}
			var id string
			if d.DomainId != nil {
				id = fmt.Sprintf("%d", *d.DomainId)
			}
			zones = append(zones, provider.Zone{
				Name:     domain.Normalize(*d.Name),
				Provider: provider.Tencent,
				ID:       id,
			})
		}
		if len(response.Response.DomainList) < pageSize {
			break
		}
	}
	return zones, nil
}

// PublishTXT 添加TXT记录，已存在时更新
func (p *DNSProvider) PublishTXT(ctx context.Context, zone provider.Zone, name, value string) (provider.InitialWait, error) {
	subDomain := domain.RelativeName(domain.Normalize(name), zone.Name)

	// 先检查是否已存在相同记录
	recordID, err := p.findRecord(ctx, zone.Name, subDomain)
	if err != nil {
		return provider.InitialWait{}, err
	}

	if recordID != nil {
		request := dnspod.NewModifyRecordRequest()
		request.Domain = common.StringPtr(zone.Name)
		request.RecordId = recordID
		request.SubDomain = common.StringPtr(subDomain)
		request.RecordType = common.StringPtr("TXT")
		request.RecordLine = common.StringPtr(defaultLine)
		request.Value = common.StringPtr(value)

		if _, err := p.client.ModifyRecordWithContext(ctx, request); err != nil {
			return provider.InitialWait{}, apperrors.Provider("更新DNS记录 "+name, err)
		}
		p.log.Info("[腾讯云DNS] 记录已更新", zap.String("sub_domain", subDomain), zap.String("zone", zone.Name), zap.Uint64("id", *recordID))
		return provider.ConstantDelay(settleDelay), nil
	}

	request := dnspod.NewCreateRecordRequest()
	request.Domain = common.StringPtr(zone.Name)
	request.SubDomain = common.StringPtr(subDomain)
	request.RecordType = common.StringPtr("TXT")
	request.RecordLine = common.StringPtr(defaultLine)
	request.Value = common.StringPtr(value)

	if _, err := p.client.CreateRecordWithContext(ctx, request); err != nil {
		return provider.InitialWait{}, apperrors.Provider("添加DNS记录 "+name, err)
	}
	p.log.Info("[腾讯云DNS] 记录已添加", zap.String("sub_domain", subDomain), zap.String("zone", zone.Name))
	return provider.ConstantDelay(settleDelay), nil
}

// findRecord 查找TXT记录，不存在时返回 nil
func (p *DNSProvider) findRecord(ctx context.Context, zoneName, subDomain string) (*uint64, error) {
	request := dnspod.NewDescribeRecordListRequest()
	request.Domain = common.StringPtr(zoneName)
	request.Subdomain = common.StringPtr(subDomain)
	request.RecordType = common.StringPtr("TXT")

	response, err := p.client.DescribeRecordListWithContext(ctx, request)
	if err != nil {
		// 没有记录时接口返回错误
		var sdkErr *tcerr.TencentCloudSDKError
		if errors.As(err, &sdkErr) && sdkErr.GetCode() == dnspod.RESOURCENOTFOUND_NODATAOFRECORD {
			return nil, nil
		}
		return nil, apperrors.Provider("查询DNS记录 "+subDomain, err)
	}

	if response.Response != nil {
		for _, record := range response.Response.RecordList {
			if record.Name != nil && *record.Name == subDomain &&
				record.Type != nil && *record.Type == "TXT" && record.RecordId != nil {
				return record.RecordId, nil
			}
		}
	}
	return nil, nil
}
