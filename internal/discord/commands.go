package discord

import (
	"errors"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/Lab18bke/Discord-Temporary-Mail/internal/notify"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/service"
)

// handleInteraction 分发斜杠命令。
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	userID := interactionUserID(i)
	if userID == "" {
		return
	}

	switch i.ApplicationCommandData().Name {
	case "temporarymail":
		b.handleTemporaryMail(s, i, userID)
	case "summary":
		b.handleSummary(s, i, userID)
	}
}

// handleTemporaryMail 处理 /temporarymail：生成或替换别名。
func (b *Bot) handleTemporaryMail(s *discordgo.Session, i *discordgo.InteractionCreate, userID string) {
	alias, err := b.aliases.Request(userID)
	if err != nil {
		if errors.Is(err, service.ErrTooManyRequests) {
			b.respondEphemeral(s, i, "⏳ You are requesting aliases too quickly. Please wait a moment.")
			return
		}
		b.log.Error("alias request failed", zap.String("user_id", userID), zap.Error(err))
		b.respondEphemeral(s, i, "❌ Something went wrong, please try again.")
		return
	}

	b.respondEphemeral(s, i, notify.AliasIssuedText(alias))
}

// handleSummary 处理 /summary：管理员查看 24 小时摘要。
func (b *Bot) handleSummary(s *discordgo.Session, i *discordgo.InteractionCreate, userID string) {
	summary, err := b.aliases.Summary(userID)
	if err != nil {
		if errors.Is(err, service.ErrNotAuthorized) {
			b.respondEphemeral(s, i, "❌ You can't use this command.")
			return
		}
		b.log.Error("summary failed", zap.String("user_id", userID), zap.Error(err))
		b.respondEphemeral(s, i, "❌ Something went wrong, please try again.")
		return
	}

	b.respondEphemeral(s, i, notify.SummaryText(summary))
}

// respondEphemeral 发送仅请求者可见的回复。
func (b *Bot) respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.log.Warn("interaction response failed", zap.Error(err))
	}
}

// interactionUserID 取触发交互的用户 ID（服务器内走 Member，私信走 User）。
func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
