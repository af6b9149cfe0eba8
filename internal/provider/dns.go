package provider

import "context"

// Backend DNS 托管后端
type Backend interface {
	// Name 返回后端名称
	Name() string

	// ListZones 列出账号下全部托管区域，分页必须读完
	ListZones(ctx context.Context) ([]Zone, error)

	// PublishTXT 创建或覆盖 zone 中名为 name 的 TXT 记录
	// name: 完整记录名 (如 _acme-challenge.www.example.com)
	// 返回值描述开始 DNS 查询前需要的等待方式
	PublishTXT(ctx context.Context, zone Zone, name, value string) (InitialWait, error)
}
