// Package discord 实现面向订阅者的 Discord 前端：
// 斜杠命令入口与基于私信的通知投递。
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/Lab18bke/Discord-Temporary-Mail/internal/service"
)

// Bot 维护 Discord 网关会话并分发斜杠命令。
type Bot struct {
	session *discordgo.Session
	aliases *service.AliasService
	log     *zap.Logger

	guildID string
}

// Options Bot 配置
type Options struct {
	Token   string
	GuildID string
}

// NewBot 创建 Discord 机器人。
// 别名服务依赖本会话的私信通知器，存在环形依赖，
// 因此通过 SetAliasService 在启动前注入。
func NewBot(opts Options, log *zap.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	bot := &Bot{
		session: session,
		log:     log,
		guildID: opts.GuildID,
	}

	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		log.Info("discord session ready",
			zap.String("user", r.User.Username),
			zap.String("guild_id", opts.GuildID),
		)
	})
	session.AddHandler(bot.handleInteraction)

	return bot, nil
}

// Notifier 返回基于本会话私信的通知器。
func (b *Bot) Notifier() *Notifier {
	return &Notifier{session: b.session}
}

// SetAliasService 注入别名业务服务，必须在 Run 之前调用。
func (b *Bot) SetAliasService(aliases *service.AliasService) {
	b.aliases = aliases
}

// Run 打开网关连接、注册命令并阻塞到 ctx 取消。
func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}

	if err := b.registerCommands(); err != nil {
		_ = b.session.Close()
		return err
	}

	<-ctx.Done()
	if err := b.session.Close(); err != nil {
		b.log.Warn("discord session close failed", zap.Error(err))
	}
	return ctx.Err()
}

// registerCommands 向目标服务器注册（覆盖）斜杠命令。
func (b *Bot) registerCommands() error {
	commands := []*discordgo.ApplicationCommand{
		{
			Name:        "temporarymail",
			Description: "Generate or reset your temporary email alias.",
		},
		{
			Name:        "summary",
			Description: "Show 24-hour usage summary (admin only).",
		},
	}

	_, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, b.guildID, commands)
	if err != nil {
		return fmt.Errorf("register slash commands: %w", err)
	}
	return nil
}
