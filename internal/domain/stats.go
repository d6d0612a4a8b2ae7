package domain

import "time"

// EventKind 统计事件类型。
type EventKind string

const (
	EventGenerated EventKind = "generated" // 生成了新别名
	EventDelivered EventKind = "delivered" // 收到并转发了一封邮件
)

// StatsLog 是统计事件的持久化快照。
// 两个时间序列分别记录别名生成与邮件投递的发生时刻，
// 超过保留窗口（24 小时）的条目会在读写时被惰性清理。
type StatsLog struct {
	Generated []time.Time `json:"generated"`
	Delivered []time.Time `json:"delivered"`
}

// Clone 返回深拷贝，用于在锁外安全地持久化快照。
func (l *StatsLog) Clone() *StatsLog {
	out := &StatsLog{
		Generated: make([]time.Time, len(l.Generated)),
		Delivered: make([]time.Time, len(l.Delivered)),
	}
	copy(out.Generated, l.Generated)
	copy(out.Delivered, l.Delivered)
	return out
}

// WindowCounts 是一次窗口统计的结果。
type WindowCounts struct {
	Generated int `json:"generated"` // 窗口内生成的别名数
	Delivered int `json:"delivered"` // 窗口内转发的邮件数
}

// Summary 是 /summary 命令与管理 API 返回的 24 小时摘要。
type Summary struct {
	ActiveAliases    int `json:"activeAliases"`
	DeliveredLast24h int `json:"deliveredLast24h"`
}
