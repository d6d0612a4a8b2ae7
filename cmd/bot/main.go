package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Lab18bke/Discord-Temporary-Mail/internal/config"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/discord"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/health"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/imapx"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/logger"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/mailer"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/monitoring"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/pool"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/registry"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/service"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/stats"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/storage"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/storage/filesystem"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/storage/memory"
	storageredis "github.com/Lab18bke/Discord-Temporary-Mail/internal/storage/redis"
	storagesql "github.com/Lab18bke/Discord-Temporary-Mail/internal/storage/sql"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/sweeper"
	httptransport "github.com/Lab18bke/Discord-Temporary-Mail/internal/transport/http"
	"github.com/Lab18bke/Discord-Temporary-Mail/internal/websocket"
)

// main 启动临时邮箱机器人：Discord 前端、IMAP 监督器、
// 过期清理器与管理 HTTP 服务共用一个运行组。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("starting temporary mail bot",
		zap.String("alias_domain", cfg.Alias.Domain),
		zap.String("storage", cfg.Storage.Type),
		zap.String("log_level", cfg.Log.Level),
	)

	store, err := newStore(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	state, err := store.LoadState()
	if err != nil {
		log.Fatal("failed to load persisted state", zap.Error(err))
	}

	reg := registry.New(cfg.Alias.Domain, cfg.Alias.LocalPartLength, store, log)
	reg.Restore(state.Aliases)
	aggregator := stats.New(store, log)
	aggregator.Restore(state.Stats)
	log.Info("state restored", zap.Int("aliases", len(state.Aliases)))

	metrics := monitoring.NewMetrics()
	metrics.AliasesActive.Set(float64(reg.ActiveSince(time.Now().UTC().Add(-cfg.Alias.TTL))))

	hub := websocket.NewHub(cfg.Server.AllowedOrigins, cfg.Server.AdminToken, log)
	notifyPool := pool.New(4, 64, log)

	bot, err := discord.NewBot(discord.Options{
		Token:   cfg.Discord.Token,
		GuildID: cfg.Discord.GuildID,
	}, log)
	if err != nil {
		log.Fatal("failed to create discord bot", zap.Error(err))
	}
	notifier := bot.Notifier()

	aliasService := service.NewAliasService(service.AliasServiceOptions{
		Registry: reg,
		Stats:    aggregator,
		Notifier: notifier,
		Pool:     notifyPool,
		Metrics:  metrics,
		Hub:      hub,
		Logger:   log,
		AdminID:  cfg.Discord.AdminID,
		TTL:      cfg.Alias.TTL,
		Cooldown: cfg.Alias.RequestCooldown,
	})
	bot.SetAliasService(aliasService)

	router := mailer.NewRouter(mailer.RouterOptions{
		Registry:  reg,
		Stats:     aggregator,
		Notifier:  notifier,
		Pool:      notifyPool,
		Metrics:   metrics,
		Hub:       hub,
		Logger:    log,
		BodyLimit: cfg.Forward.BodyLimit,
	})

	dialer, err := imapx.NewDialer(imapx.Options{
		Host:               cfg.IMAP.Host,
		Port:               cfg.IMAP.Port,
		Username:           cfg.IMAP.Username,
		Password:           cfg.IMAP.Password,
		Mailbox:            cfg.IMAP.Mailbox,
		UseTLS:             cfg.IMAP.UseTLS,
		InsecureSkipVerify: cfg.IMAP.InsecureSkipVerify,
	}, log)
	if err != nil {
		log.Fatal("failed to create imap dialer", zap.Error(err))
	}

	supervisor := mailer.NewSupervisor(mailer.SupervisorOptions{
		Dialer:      dialer,
		Router:      router,
		Metrics:     metrics,
		Logger:      log,
		Backoff:     cfg.IMAP.ReconnectBackoff,
		IdleTimeout: cfg.IMAP.IdleTimeout,
	})

	sweep := sweeper.New(sweeper.Options{
		Registry: reg,
		Notifier: notifier,
		Pool:     notifyPool,
		Metrics:  metrics,
		Hub:      hub,
		Logger:   log,
		Interval: cfg.Alias.SweepInterval,
		TTL:      cfg.Alias.TTL,
	})

	checker := health.NewChecker(store, supervisor)
	httpRouter := httptransport.NewRouter(httptransport.RouterDependencies{
		AliasService:   aliasService,
		Health:         checker,
		Metrics:        metrics,
		Hub:            hub,
		Logger:         log,
		AdminID:        cfg.Discord.AdminID,
		AdminToken:     cfg.Server.AdminToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: httpRouter,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifyPool.Start(ctx)
	defer notifyPool.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Run(ctx) })
	g.Go(func() error { return supervisor.Run(ctx) })
	g.Go(func() error { return sweep.Run(ctx) })
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error {
		log.Info("admin http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("service terminated", zap.Error(err))
	}
	log.Info("shutdown complete")
}

// newStore 根据配置选择存储后端。
func newStore(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	switch cfg.Storage.Type {
	case "file":
		log.Info("using filesystem storage", zap.String("path", cfg.Storage.Path))
		return filesystem.NewStore(cfg.Storage.Path)
	case "memory":
		log.Info("using memory storage (state is lost on restart)")
		return memory.NewStore(), nil
	case "redis":
		log.Info("using redis storage", zap.String("address", cfg.Storage.RedisAddress))
		return storageredis.NewStore(storageredis.Options{
			Address:  cfg.Storage.RedisAddress,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
	case "postgres", "mysql":
		log.Info("using database storage", zap.String("driver", cfg.Storage.Type))
		return storagesql.NewStore(
			cfg.Storage.Type,
			cfg.Storage.DSN,
			cfg.Storage.MaxOpenConns,
			cfg.Storage.MaxIdleConns,
			cfg.Storage.ConnMaxLifetime,
		)
	default:
		return nil, fmt.Errorf("unsupported storage type: %q", cfg.Storage.Type)
	}
}
