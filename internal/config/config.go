package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DiscordConfig 定义 Discord 机器人配置
type DiscordConfig struct {
	Token   string // Bot Token，必填
	GuildID string // 注册斜杠命令的服务器 ID，必填
	AdminID string // 允许执行 /summary 的管理员用户 ID，必填
}

// IMAPConfig 定义上游邮箱的 IMAP 连接配置
type IMAPConfig struct {
	Host               string        // IMAP 服务器地址，必填
	Port               int           // 端口，默认 993
	Username           string        // 登录账号，必填
	Password           string        // 登录密码，必填
	Mailbox            string        // 监听的邮箱文件夹，默认 "INBOX"
	UseTLS             bool          // 是否使用 TLS，默认 true
	InsecureSkipVerify bool          // 跳过证书校验（仅用于自签名证书调试）
	IdleTimeout        time.Duration // IDLE 等待上限，超时后主动轮询一次未读邮件
	ReconnectBackoff   time.Duration // 连接失败后的固定重连间隔，默认 10s
}

// AliasConfig 定义别名生命周期配置
type AliasConfig struct {
	Domain          string        // 别名域名，必填，如 "temp.mail"
	TTL             time.Duration // 别名存活时间，默认 24h
	LocalPartLength int           // 随机本地部分长度，默认 10
	SweepInterval   time.Duration // 过期清理周期，默认 5m
	RequestCooldown time.Duration // 同一用户两次生成别名的最小间隔，默认 10s
}

// ForwardConfig 定义邮件转发配置
type ForwardConfig struct {
	BodyLimit int // 转发正文的最大字符数，默认 1800
}

// StorageConfig 定义状态持久化配置
type StorageConfig struct {
	Type            string        // 存储类型: "file"（默认）、"redis"、"postgres"、"mysql"
	Path            string        // file 存储的数据目录，默认 "./data"
	RedisAddress    string        // Redis 服务地址，默认 "localhost:6379"
	RedisPassword   string        // Redis 认证密码，留空表示无密码
	RedisDB         int           // Redis 数据库编号，默认 0
	DSN             string        // postgres/mysql 连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// ServerConfig 定义管理/观测 HTTP 服务配置
type ServerConfig struct {
	Host           string   // 监听地址，默认 "0.0.0.0"
	Port           int      // 监听端口，默认 8080
	AdminToken     string   // 管理 API 与 WebSocket 的 Bearer Token，留空则关闭管理接口
	AllowedOrigins []string // CORS 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 彩色控制台输出和详细堆栈信息
	File        string // 日志文件路径，留空只输出到 stdout
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Discord DiscordConfig
	IMAP    IMAPConfig
	Alias   AliasConfig
	Forward ForwardConfig
	Storage StorageConfig
	Server  ServerConfig
	Log     LogConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: TEMPMAIL_
// 例如: TEMPMAIL_DISCORD_TOKEN, TEMPMAIL_IMAP_HOST
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("tempmail")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault("discord.admin_id", "")
	viper.SetDefault("imap.host", "")
	viper.SetDefault("imap.port", 993)
	viper.SetDefault("imap.username", "")
	viper.SetDefault("imap.password", "")
	viper.SetDefault("imap.mailbox", "INBOX")
	viper.SetDefault("imap.use_tls", true)
	viper.SetDefault("imap.insecure_skip_verify", false)
	viper.SetDefault("imap.idle_timeout", "4m")
	viper.SetDefault("imap.reconnect_backoff", "10s")
	viper.SetDefault("alias.domain", "")
	viper.SetDefault("alias.ttl", "24h")
	viper.SetDefault("alias.local_part_length", 10)
	viper.SetDefault("alias.sweep_interval", "5m")
	viper.SetDefault("alias.request_cooldown", "10s")
	viper.SetDefault("forward.body_limit", 1800)
	viper.SetDefault("storage.type", "file")
	viper.SetDefault("storage.path", "./data")
	viper.SetDefault("storage.redis_address", "localhost:6379")
	viper.SetDefault("storage.redis_password", "")
	viper.SetDefault("storage.redis_db", 0)
	viper.SetDefault("storage.dsn", "")
	viper.SetDefault("storage.max_open_conns", 25)
	viper.SetDefault("storage.max_idle_conns", 5)
	viper.SetDefault("storage.conn_max_lifetime", "5m")
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.admin_token", "")
	viper.SetDefault("server.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")

	cfg := &Config{
		Discord: DiscordConfig{
			Token:   viper.GetString("discord.token"),
			GuildID: viper.GetString("discord.guild_id"),
			AdminID: viper.GetString("discord.admin_id"),
		},
		IMAP: IMAPConfig{
			Host:               viper.GetString("imap.host"),
			Port:               viper.GetInt("imap.port"),
			Username:           viper.GetString("imap.username"),
			Password:           viper.GetString("imap.password"),
			Mailbox:            viper.GetString("imap.mailbox"),
			UseTLS:             viper.GetBool("imap.use_tls"),
			InsecureSkipVerify: viper.GetBool("imap.insecure_skip_verify"),
			IdleTimeout:        durationOrDefault("imap.idle_timeout", 4*time.Minute),
			ReconnectBackoff:   durationOrDefault("imap.reconnect_backoff", 10*time.Second),
		},
		Alias: AliasConfig{
			Domain:          strings.ToLower(strings.TrimSpace(viper.GetString("alias.domain"))),
			TTL:             durationOrDefault("alias.ttl", 24*time.Hour),
			LocalPartLength: viper.GetInt("alias.local_part_length"),
			SweepInterval:   durationOrDefault("alias.sweep_interval", 5*time.Minute),
			RequestCooldown: durationOrDefault("alias.request_cooldown", 10*time.Second),
		},
		Forward: ForwardConfig{
			BodyLimit: viper.GetInt("forward.body_limit"),
		},
		Storage: StorageConfig{
			Type:            strings.ToLower(viper.GetString("storage.type")),
			Path:            viper.GetString("storage.path"),
			RedisAddress:    viper.GetString("storage.redis_address"),
			RedisPassword:   viper.GetString("storage.redis_password"),
			RedisDB:         viper.GetInt("storage.redis_db"),
			DSN:             viper.GetString("storage.dsn"),
			MaxOpenConns:    viper.GetInt("storage.max_open_conns"),
			MaxIdleConns:    viper.GetInt("storage.max_idle_conns"),
			ConnMaxLifetime: durationOrDefault("storage.conn_max_lifetime", 5*time.Minute),
		},
		Server: ServerConfig{
			Host:           viper.GetString("server.host"),
			Port:           viper.GetInt("server.port"),
			AdminToken:     viper.GetString("server.admin_token"),
			AllowedOrigins: parseList(viper.GetString("server.allowed_origins")),
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate 校验必填项与取值范围。
func (c *Config) validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("discord.token is required (TEMPMAIL_DISCORD_TOKEN)")
	}
	if c.Discord.GuildID == "" {
		return fmt.Errorf("discord.guild_id is required (TEMPMAIL_DISCORD_GUILD_ID)")
	}
	if c.Discord.AdminID == "" {
		return fmt.Errorf("discord.admin_id is required (TEMPMAIL_DISCORD_ADMIN_ID)")
	}
	if c.IMAP.Host == "" {
		return fmt.Errorf("imap.host is required (TEMPMAIL_IMAP_HOST)")
	}
	if c.IMAP.Username == "" || c.IMAP.Password == "" {
		return fmt.Errorf("imap.username and imap.password are required")
	}
	if c.IMAP.Port <= 0 || c.IMAP.Port > 65535 {
		return fmt.Errorf("imap.port must be between 1 and 65535, got %d", c.IMAP.Port)
	}
	if c.Alias.Domain == "" {
		return fmt.Errorf("alias.domain is required (TEMPMAIL_ALIAS_DOMAIN)")
	}
	if strings.Contains(c.Alias.Domain, "@") {
		return fmt.Errorf("alias.domain must not contain '@': %q", c.Alias.Domain)
	}
	if c.Alias.TTL <= 0 {
		return fmt.Errorf("alias.ttl must be positive")
	}
	if c.Alias.LocalPartLength < 4 || c.Alias.LocalPartLength > 64 {
		return fmt.Errorf("alias.local_part_length must be between 4 and 64, got %d", c.Alias.LocalPartLength)
	}
	if c.Alias.SweepInterval <= 0 {
		return fmt.Errorf("alias.sweep_interval must be positive")
	}
	if c.Forward.BodyLimit <= 0 {
		return fmt.Errorf("forward.body_limit must be positive")
	}
	switch c.Storage.Type {
	case "file", "memory", "redis":
	case "postgres", "mysql":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for storage.type %q", c.Storage.Type)
		}
	default:
		return fmt.Errorf("unsupported storage.type: %q (supported: file, memory, redis, postgres, mysql)", c.Storage.Type)
	}
	return nil
}

// durationOrDefault 解析时长配置，解析失败时回退到默认值。
func durationOrDefault(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 依次查找当前目录与父目录，找到第一个就停止。
func loadEnvFile() {
	candidates := []string{".env", filepath.Join("..", ".env")}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}
