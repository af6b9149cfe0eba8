package awsdns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lightsail"
	"github.com/aws/aws-sdk-go-v2/service/lightsail/types"
	"go.uber.org/zap"

	"acme-dns-manager/internal/domain"
	"acme-dns-manager/internal/logger"
	"acme-dns-manager/internal/provider"
)

// Lightsail 不提供变更状态查询，只能固定等待
const (
	lightsailCreateDelay = 50 * time.Second
	lightsailUpdateDelay = 10 * time.Second
)

// LightsailClient LightsailDNS 用到的接口
type LightsailClient interface {
	GetDomains(ctx context.Context, params *lightsail.GetDomainsInput, optFns ...func(*lightsail.Options)) (*lightsail.GetDomainsOutput, error)
	CreateDomainEntry(ctx context.Context, params *lightsail.CreateDomainEntryInput, optFns ...func(*lightsail.Options)) (*lightsail.CreateDomainEntryOutput, error)
	UpdateDomainEntry(ctx context.Context, params *lightsail.UpdateDomainEntryInput, optFns ...func(*lightsail.Options)) (*lightsail.UpdateDomainEntryOutput, error)
}

// LightsailDNS Lightsail DNS 后端
type LightsailDNS struct {
	client LightsailClient
	log    *zap.Logger
}

var _ provider.Backend = (*LightsailDNS)(nil)

// NewLightsail 使用 AWS 配置创建 Lightsail 后端
func NewLightsail(cfg aws.Config, log *zap.Logger) *LightsailDNS {
	client := lightsail.NewFromConfig(cfg, func(o *lightsail.Options) {
		o.Region = LightsailRegion
	})
	return NewLightsailWithClient(client, log)
}

// NewLightsailWithClient 使用指定客户端创建 Lightsail 后端
func NewLightsailWithClient(client LightsailClient, log *zap.Logger) *LightsailDNS {
	return &LightsailDNS{client: client, log: logger.OrNop(log).With(zap.String("backend", provider.Lightsail))}
}

// Name 返回后端名称
func (p *LightsailDNS) Name() string {
	return provider.Lightsail
}

// ListZones 列出全部域名，同时记录已存在的 TXT 记录ID
func (p *LightsailDNS) ListZones(ctx context.Context) ([]provider.Zone, error) {
	var (
		zones     []provider.Zone
		pageToken *string
	)
	for {
		out, err := p.client.GetDomains(ctx, &lightsail.GetDomainsInput{PageToken: pageToken})
		if err != nil {
			return nil, classifyError(err, "列出Lightsail域名")
		}
		for _, d := range out.Domains {
			zones = append(zones, provider.Zone{
				Name:       domain.Normalize(aws.ToString(d.Name)),
				Provider:   provider.Lightsail,
				TXTRecords: txtRecordIDs(d.DomainEntries),
			})
		}
		if aws.ToString(out.NextPageToken) == "" {
			break
		}
		pageToken = out.NextPageToken
	}
	p.log.Debug("已加载域名", zap.Int("count", len(zones)))
	return zones, nil
}

func txtRecordIDs(entries []types.DomainEntry) map[string]string {
	ids := make(map[string]string)
	for _, e := range entries {
		if !strings.EqualFold(aws.ToString(e.Type), "TXT") || e.Id == nil {
			continue
		}
		ids[domain.Normalize(aws.ToString(e.Name))] = aws.ToString(e.Id)
	}
	return ids
}

// PublishTXT 更新已存在的 TXT 记录，不存在时新建
func (p *LightsailDNS) PublishTXT(ctx context.Context, zone provider.Zone, name, value string) (provider.InitialWait, error) {
	entry := &types.DomainEntry{
		Name:   aws.String(name),
		Type:   aws.String("TXT"),
		Target: aws.String(`"` + value + `"`),
	}

	if id, ok := zone.TXTRecords[domain.Normalize(name)]; ok {
		entry.Id = aws.String(id)
		if _, err := p.client.UpdateDomainEntry(ctx, &lightsail.UpdateDomainEntryInput{
			DomainName:  aws.String(zone.Name),
			DomainEntry: entry,
		}); err != nil {
			return provider.InitialWait{}, classifyError(err, fmt.Sprintf("更新TXT记录 %s", name))
		}
		p.log.Info("TXT记录已更新", zap.String("record", name), zap.String("zone", zone.Name))
		return provider.ConstantDelay(lightsailUpdateDelay), nil
	}

	if _, err := p.client.CreateDomainEntry(ctx, &lightsail.CreateDomainEntryInput{
		DomainName:  aws.String(zone.Name),
		DomainEntry: entry,
	}); err != nil {
		return provider.InitialWait{}, classifyError(err, fmt.Sprintf("创建TXT记录 %s", name))
	}
	p.log.Info("TXT记录已创建", zap.String("record", name), zap.String("zone", zone.Name))
	return provider.ConstantDelay(lightsailCreateDelay), nil
}
