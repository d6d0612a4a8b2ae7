package mailer

import (
	"context"
	"time"
)

// MessageID 是邮箱会话内一封邮件的标识（IMAP UID）。
type MessageID uint32

// Session 是一条已建立、已选定邮箱的连接。
//
// 协议约束：同一会话上的操作不允许并发，监督器串行驱动。
type Session interface {
	// AwaitActivity 阻塞等待服务器通知新邮件，直到有动静、超时或出错。
	// 返回 true 表示收到了新邮件信号，false 表示等待超时。
	AwaitActivity(ctx context.Context, timeout time.Duration) (bool, error)

	// ListUnseen 返回当前未读邮件的标识列表。
	ListUnseen(ctx context.Context) ([]MessageID, error)

	// Fetch 取回一封邮件的原始内容，同时将其标记为已读。
	Fetch(ctx context.Context, id MessageID) ([]byte, error)

	// Close 关闭连接。
	Close() error
}

// Dialer 建立一条新的邮箱会话。
type Dialer interface {
	Connect(ctx context.Context) (Session, error)
}
