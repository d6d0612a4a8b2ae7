package domain

import (
	"strings"
	"time"
)

// Alias 表示临时邮箱别名。
// 每个订阅者（Discord 用户）同一时刻最多持有一个有效别名，
// 重新生成会原子替换旧别名，旧别名立即停止接收邮件。
type Alias struct {
	OwnerID   string    `json:"ownerId"`   // 订阅者标识（Discord 用户 ID）
	Address   string    `json:"address"`   // 完整别名地址，如 ab12cd34ef@temp.mail
	CreatedAt time.Time `json:"createdAt"` // 签发时间，别名存活 24 小时
}

// LocalPart 返回别名地址 @ 之前的部分（小写）。
func (a Alias) LocalPart() string {
	local, _, _ := strings.Cut(a.Address, "@")
	return strings.ToLower(local)
}

// Expired 判断别名在 now 时刻是否已超过 ttl。
func (a Alias) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(a.CreatedAt) > ttl
}
