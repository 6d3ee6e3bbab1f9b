package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/relay/internal/access"
	"github.com/memohai/relay/internal/agents"
	"github.com/memohai/relay/internal/auth"
	"github.com/memohai/relay/internal/channel"
	"github.com/memohai/relay/internal/channel/adapters/discord"
	"github.com/memohai/relay/internal/channel/adapters/telegram"
	"github.com/memohai/relay/internal/config"
	"github.com/memohai/relay/internal/handlers"
	"github.com/memohai/relay/internal/healthcheck"
	channelchecker "github.com/memohai/relay/internal/healthcheck/checkers/channel"
	"github.com/memohai/relay/internal/logger"
	"github.com/memohai/relay/internal/media"
	"github.com/memohai/relay/internal/metrics"
	"github.com/memohai/relay/internal/server"
	"github.com/memohai/relay/internal/version"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBotClient,
			provideTelegramAdapter,
			provideChannelRegistry,
			channelchecker.NewTracker,
			provideDispatcher,
			provideHealthChecker,
			provideWhitelist,
			provideNormalizer,
			provideForwarder,
			provideServerHandler(provideHealthHandler),
			provideServerHandler(provideWebhookHandler),
			provideServerHandler(provideSendResponseHandler),
			provideServerHandler(handlers.NewMetricsHandler),
			provideServer,
		),
		fx.Invoke(
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideBotClient(log *slog.Logger, cfg config.Config) *telegram.BotClient {
	return telegram.NewBotClient(log, telegram.ClientConfig{
		Token:       cfg.Telegram.BotToken,
		APIEndpoint: cfg.Telegram.APIEndpoint,
		Timeout:     cfg.Telegram.RequestTimeout(),
	})
}

func provideTelegramAdapter(log *slog.Logger, client *telegram.BotClient) *telegram.TelegramAdapter {
	return telegram.NewTelegramAdapter(log, client)
}

func provideChannelRegistry(log *slog.Logger, cfg config.Config, tg *telegram.TelegramAdapter) (*channel.Registry, error) {
	registry := channel.NewRegistry()
	registry.MustRegister(tg)
	if cfg.Discord.Enabled() {
		dc, err := discord.NewDiscordAdapter(log, cfg.Discord.BotToken)
		if err != nil {
			return nil, fmt.Errorf("discord adapter: %w", err)
		}
		if err := registry.Register(dc); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func provideDispatcher(log *slog.Logger, registry *channel.Registry, tracker *channelchecker.Tracker) *channel.Dispatcher {
	dispatcher := channel.NewDispatcher(log, registry)
	dispatcher.SetObserver(func(o channel.Outcome) {
		metrics.ObserveOutcome(o)
		tracker.Observe(o)
	})
	return dispatcher
}

func provideHealthChecker(log *slog.Logger, registry *channel.Registry, tracker *channelchecker.Tracker) healthcheck.Checker {
	return healthcheck.NewAggregator(channelchecker.NewChecker(log, registry, tracker))
}

func provideWhitelist(log *slog.Logger, cfg config.Config) (*access.Whitelist, error) {
	whitelist := access.NewWhitelist(cfg.Access.Whitelist, cfg.Access.Enforce)
	entries, err := access.LoadFile(cfg.Access.WhitelistFile, log)
	if err != nil {
		return nil, err
	}
	whitelist.Merge(entries)
	if whitelist.Enforced() && len(whitelist.IDs()) == 0 {
		log.Warn("whitelist is enforced but empty; every sender will be refused")
	}
	return whitelist, nil
}

func provideNormalizer(log *slog.Logger, cfg config.Config, client *telegram.BotClient, whitelist *access.Whitelist) *telegram.Normalizer {
	limits := media.Limits{Image: cfg.Limits.MaxImageBytes, Audio: cfg.Limits.MaxAudioBytes}
	mimes := media.NewClassifier(cfg.MIME.Image, cfg.MIME.Audio)
	normalizer := telegram.NewNormalizer(log, telegram.NewClassifier(client, limits, mimes), client, whitelist)
	normalizer.SetRejectionObserver(func(r telegram.Rejection) {
		metrics.ObserveRejection(string(r.Reason))
	})
	return normalizer
}

func provideForwarder(log *slog.Logger, cfg config.Config) *agents.Forwarder {
	return agents.NewForwarder(log, agents.Config{
		EventsURL: cfg.Agents.EventsURL,
		APIKey:    cfg.Agents.APIKey,
		Timeout:   cfg.Agents.Timeout(),
	})
}

func provideHealthHandler(log *slog.Logger, checker healthcheck.Checker) *handlers.PingHandler {
	return handlers.NewPingHandler(log, checker)
}

func provideWebhookHandler(log *slog.Logger, cfg config.Config, normalizer *telegram.Normalizer, forwarder *agents.Forwarder, whitelist *access.Whitelist, client *telegram.BotClient) *handlers.TelegramWebhookHandler {
	return handlers.NewTelegramWebhookHandler(log, normalizer, forwarder, whitelist, client, handlers.WebhookConfig{
		Secret:          cfg.Telegram.WebhookSecret,
		PlaceholderText: cfg.Telegram.PlaceholderText,
	})
}

func provideSendResponseHandler(log *slog.Logger, cfg config.Config, dispatcher *channel.Dispatcher) *handlers.SendResponseHandler {
	return handlers.NewSendResponseHandler(log, dispatcher, auth.ServiceConfig{
		APIKey:    cfg.Auth.APIKey,
		JWTSecret: cfg.Auth.JWTSecret,
	})
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.ServerHandlers...)
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config, registry *channel.Registry) {
	fmt.Printf("Starting Relay %s\n", version.GetInfo())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("channels registered", slog.Any("channels", registry.Types()))
			if cfg.Auth.APIKey == "" && cfg.Auth.JWTSecret == "" {
				logger.Warn("send-response endpoint is unauthenticated; set [auth] api_key or jwt_secret")
			}
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
