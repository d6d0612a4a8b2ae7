// Package notify 定义通知协作方接口与发给订阅者的消息文案。
package notify

import (
	"fmt"

	"github.com/Lab18bke/Discord-Temporary-Mail/internal/domain"
)

// Notifier 把一段文本投递给指定订阅者。
//
// 调用方必须把失败当作非致命事件：记日志后丢弃结果，
// 不允许通知失败影响批次处理或统计记录。
type Notifier interface {
	Notify(ownerID, text string) error
}

// NewMailText 生成转发邮件的通知文案。
func NewMailText(env *domain.InboundEnvelope) string {
	return fmt.Sprintf("📩 **New Mail Received!**\n**From:** %s\n**Subject:** %s\n\n%s",
		env.From, env.Subject, env.Body)
}

// AliasIssuedText 生成新别名签发成功的回复文案。
func AliasIssuedText(alias domain.Alias) string {
	return fmt.Sprintf("✅ Your new email alias is `%s`.\nAll emails sent to it will DM you here.\nThis alias will expire after 24 hours.", alias.Address)
}

// AliasReplacedText 生成旧别名被替换的提醒文案。
func AliasReplacedText(old domain.Alias) string {
	return fmt.Sprintf("⚠️ Your previous alias `%s` has expired and been replaced.", old.Address)
}

// AliasExpiredText 生成别名到期清理的提醒文案。
func AliasExpiredText(old domain.Alias) string {
	return fmt.Sprintf("⏰ Your previous alias `%s` has expired.", old.Address)
}

// SummaryText 生成 24 小时摘要文案。
func SummaryText(s domain.Summary) string {
	return fmt.Sprintf("📊 **Last 24 h Summary**\nActive aliases: **%d**\nEmails received: **%d**",
		s.ActiveAliases, s.DeliveredLast24h)
}
