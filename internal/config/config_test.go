package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TEMPMAIL_DISCORD_TOKEN", "bot-token")
	t.Setenv("TEMPMAIL_DISCORD_GUILD_ID", "guild-1")
	t.Setenv("TEMPMAIL_DISCORD_ADMIN_ID", "admin-1")
	t.Setenv("TEMPMAIL_IMAP_HOST", "imap.example.com")
	t.Setenv("TEMPMAIL_IMAP_USERNAME", "inbox@example.com")
	t.Setenv("TEMPMAIL_IMAP_PASSWORD", "secret")
	t.Setenv("TEMPMAIL_ALIAS_DOMAIN", "Temp.Mail")
}

func TestLoad(t *testing.T) {
	t.Run("必填项齐全时使用默认值", func(t *testing.T) {
		setRequiredEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "bot-token", cfg.Discord.Token)
		assert.Equal(t, 993, cfg.IMAP.Port)
		assert.Equal(t, "INBOX", cfg.IMAP.Mailbox)
		assert.True(t, cfg.IMAP.UseTLS)
		assert.Equal(t, 4*time.Minute, cfg.IMAP.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.IMAP.ReconnectBackoff)
		// 域名统一小写
		assert.Equal(t, "temp.mail", cfg.Alias.Domain)
		assert.Equal(t, 24*time.Hour, cfg.Alias.TTL)
		assert.Equal(t, 10, cfg.Alias.LocalPartLength)
		assert.Equal(t, 5*time.Minute, cfg.Alias.SweepInterval)
		assert.Equal(t, 10*time.Second, cfg.Alias.RequestCooldown)
		assert.Equal(t, 1800, cfg.Forward.BodyLimit)
		assert.Equal(t, "file", cfg.Storage.Type)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("环境变量覆盖默认值", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("TEMPMAIL_IMAP_PORT", "143")
		t.Setenv("TEMPMAIL_IMAP_USE_TLS", "false")
		t.Setenv("TEMPMAIL_ALIAS_TTL", "48h")
		t.Setenv("TEMPMAIL_ALIAS_LOCAL_PART_LENGTH", "16")
		t.Setenv("TEMPMAIL_STORAGE_TYPE", "redis")
		t.Setenv("TEMPMAIL_SERVER_ALLOWED_ORIGINS", "https://a.example, https://b.example")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 143, cfg.IMAP.Port)
		assert.False(t, cfg.IMAP.UseTLS)
		assert.Equal(t, 48*time.Hour, cfg.Alias.TTL)
		assert.Equal(t, 16, cfg.Alias.LocalPartLength)
		assert.Equal(t, "redis", cfg.Storage.Type)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	})

	t.Run("非法时长回退默认值", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("TEMPMAIL_ALIAS_SWEEP_INTERVAL", "not-a-duration")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 5*time.Minute, cfg.Alias.SweepInterval)
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(t *testing.T)
		wantErr string
	}{
		{
			name:    "缺少discord_token",
			mutate:  func(t *testing.T) { t.Setenv("TEMPMAIL_DISCORD_TOKEN", "") },
			wantErr: "discord.token",
		},
		{
			name:    "缺少imap_host",
			mutate:  func(t *testing.T) { t.Setenv("TEMPMAIL_IMAP_HOST", "") },
			wantErr: "imap.host",
		},
		{
			name:    "缺少alias_domain",
			mutate:  func(t *testing.T) { t.Setenv("TEMPMAIL_ALIAS_DOMAIN", "") },
			wantErr: "alias.domain",
		},
		{
			name:    "域名含@非法",
			mutate:  func(t *testing.T) { t.Setenv("TEMPMAIL_ALIAS_DOMAIN", "a@b") },
			wantErr: "must not contain",
		},
		{
			name:    "端口越界",
			mutate:  func(t *testing.T) { t.Setenv("TEMPMAIL_IMAP_PORT", "70000") },
			wantErr: "imap.port",
		},
		{
			name:    "local_part过短",
			mutate:  func(t *testing.T) { t.Setenv("TEMPMAIL_ALIAS_LOCAL_PART_LENGTH", "2") },
			wantErr: "local_part_length",
		},
		{
			name:    "未知存储类型",
			mutate:  func(t *testing.T) { t.Setenv("TEMPMAIL_STORAGE_TYPE", "etcd") },
			wantErr: "unsupported storage.type",
		},
		{
			name:    "sql存储缺少dsn",
			mutate:  func(t *testing.T) { t.Setenv("TEMPMAIL_STORAGE_TYPE", "postgres") },
			wantErr: "storage.dsn",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequiredEnv(t)
			tc.mutate(t)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
