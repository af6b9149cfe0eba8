package awsdns

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"go.uber.org/zap"

	"acme-dns-manager/internal/domain"
	"acme-dns-manager/internal/logger"
	"acme-dns-manager/internal/provider"
)

const (
	route53TTL = 60
	// 接口未返回变更ID时的固定等待
	route53FallbackDelay = 50 * time.Second
)

// Route53Client Route53DNS 用到的接口
type Route53Client interface {
	ListHostedZones(ctx context.Context, params *route53.ListHostedZonesInput, optFns ...func(*route53.Options)) (*route53.ListHostedZonesOutput, error)
	ChangeResourceRecordSets(ctx context.Context, params *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
	GetChange(ctx context.Context, params *route53.GetChangeInput, optFns ...func(*route53.Options)) (*route53.GetChangeOutput, error)
}

// Route53DNS Route53 DNS 后端
type Route53DNS struct {
	client Route53Client
	log    *zap.Logger
}

var (
	_ provider.Backend       = (*Route53DNS)(nil)
	_ provider.ChangeTracker = (*Route53DNS)(nil)
)

// NewRoute53 使用 AWS 配置创建 Route53 后端
func NewRoute53(cfg aws.Config, log *zap.Logger) *Route53DNS {
	return NewRoute53WithClient(route53.NewFromConfig(cfg), log)
}

// NewRoute53WithClient 使用指定客户端创建 Route53 后端
func NewRoute53WithClient(client Route53Client, log *zap.Logger) *Route53DNS {
	return &Route53DNS{client: client, log: logger.OrNop(log).With(zap.String("backend", provider.Route53))}
}

// Name 返回后端名称
func (p *Route53DNS) Name() string {
	return provider.Route53
}

// ListZones 列出全部公有托管区域
func (p *Route53DNS) ListZones(ctx context.Context) ([]provider.Zone, error) {
	var zones []provider.Zone
	paginator := route53.NewListHostedZonesPaginator(p.client, &route53.ListHostedZonesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyError(err, "列出Route53托管区域")
		}
		for _, hz := range page.HostedZones {
			// 私有区域无法被 ACME 服务端查询到
			if hz.Config != nil && hz.Config.PrivateZone {
				continue
			}
			zones = append(zones, provider.Zone{
				Name:     domain.Normalize(aws.ToString(hz.Name)),
				Provider: provider.Route53,
				ID:       path.Base(aws.ToString(hz.Id)), // "/hostedzone/ZFOO" -> "ZFOO"
			})
		}
	}
	p.log.Debug("已加载托管区域", zap.Int("count", len(zones)))
	return zones, nil
}

// PublishTXT 以 UPSERT 方式写入 TXT 记录
func (p *Route53DNS) PublishTXT(ctx context.Context, zone provider.Zone, name, value string) (provider.InitialWait, error) {
	out, err := p.client.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zone.ID),
		ChangeBatch: &types.ChangeBatch{
			Comment: aws.String("ACME DNS-01 challenge"),
			Changes: []types.Change{
				{
					Action: types.ChangeActionUpsert,
					ResourceRecordSet: &types.ResourceRecordSet{
						Name: aws.String(name),
						Type: types.RRTypeTxt,
						TTL:  aws.Int64(route53TTL),
						ResourceRecords: []types.ResourceRecord{
							{Value: aws.String(`"` + value + `"`)},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return provider.InitialWait{}, classifyError(err, fmt.Sprintf("写入TXT记录 %s", name))
	}

	if out.ChangeInfo == nil || out.ChangeInfo.Id == nil {
		p.log.Warn("未返回变更ID，改用固定等待", zap.String("record", name))
		return provider.ConstantDelay(route53FallbackDelay), nil
	}

	p.log.Info("TXT记录已提交",
		zap.String("record", name),
		zap.String("zone", zone.Name),
		zap.String("change", aws.ToString(out.ChangeInfo.Id)))
	return provider.TrackChangeStatus(aws.ToString(out.ChangeInfo.Id), p), nil
}

// ChangeInSync 查询变更是否已同步到全部权威服务器
func (p *Route53DNS) ChangeInSync(ctx context.Context, changeID string) (bool, error) {
	out, err := p.client.GetChange(ctx, &route53.GetChangeInput{Id: aws.String(changeID)})
	if err != nil {
		return false, classifyError(err, fmt.Sprintf("查询变更状态 %s", changeID))
	}
	return out.ChangeInfo != nil && out.ChangeInfo.Status == types.ChangeStatusInsync, nil
}
