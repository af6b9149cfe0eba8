package provider

import (
	"context"
	"time"
)

// 后端名称
const (
	Lightsail = "lightsail"
	Route53   = "route53"
	Aliyun    = "aliyun"
	Tencent   = "tencent"
	Huawei    = "huawei"
)

// Zone DNS 托管区域
type Zone struct {
	Name     string // 区域域名（小写，无末尾的点）
	Provider string // 所属后端
	ID       string // 后端区域ID（Route53 hosted zone id 等）

	// TXTRecords Lightsail 加载时已存在的 TXT 记录: 记录名 -> 记录ID
	// 加载后不再刷新，期间的外部修改不可见
	TXTRecords map[string]string
}

// Equal 区域名和后端都相同即为同一区域
func (z Zone) Equal(other Zone) bool {
	return z.Name == other.Name && z.Provider == other.Provider
}

// WaitKind 初始等待方式
type WaitKind int

const (
	WaitConstantDelay WaitKind = iota // 固定等待
	WaitTrackChange                   // 轮询后端变更状态
)

// ChangeTracker 可以查询变更是否已同步到全部权威服务器的后端
type ChangeTracker interface {
	ChangeInSync(ctx context.Context, changeID string) (bool, error)
}

// InitialWait 发布记录后、开始 DNS 查询前的等待策略
type InitialWait struct {
	Kind     WaitKind
	Delay    time.Duration
	ChangeID string
	Tracker  ChangeTracker
}

// ConstantDelay 固定等待 d
func ConstantDelay(d time.Duration) InitialWait {
	return InitialWait{Kind: WaitConstantDelay, Delay: d}
}

// TrackChangeStatus 通过 tracker 轮询 changeID 直到同步
func TrackChangeStatus(changeID string, tracker ChangeTracker) InitialWait {
	return InitialWait{Kind: WaitTrackChange, ChangeID: changeID, Tracker: tracker}
}

func (w InitialWait) String() string {
	if w.Kind == WaitTrackChange {
		return "track:" + w.ChangeID
	}
	return "delay:" + w.Delay.String()
}
