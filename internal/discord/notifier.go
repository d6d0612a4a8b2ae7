package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Notifier 通过 Discord 私信投递通知，实现 notify.Notifier。
// 投递失败（用户关闭私信、已退出服务器等）由调用方按非致命处理。
type Notifier struct {
	session *discordgo.Session
}

// Notify 给指定用户发送一条私信。
func (n *Notifier) Notify(ownerID, text string) error {
	channel, err := n.session.UserChannelCreate(ownerID)
	if err != nil {
		return fmt.Errorf("open dm channel for %s: %w", ownerID, err)
	}
	if _, err := n.session.ChannelMessageSend(channel.ID, text); err != nil {
		return fmt.Errorf("send dm to %s: %w", ownerID, err)
	}
	return nil
}
