package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/pollinator-bot/backend/internal/bootstrap"
	"github.com/zhouzirui/pollinator-bot/backend/internal/config"
	"github.com/zhouzirui/pollinator-bot/backend/internal/handler"
	"github.com/zhouzirui/pollinator-bot/backend/internal/media"
	mediaTelegram "github.com/zhouzirui/pollinator-bot/backend/internal/media/telegram"
	"github.com/zhouzirui/pollinator-bot/backend/internal/metrics"
	"github.com/zhouzirui/pollinator-bot/backend/internal/middleware"
	"github.com/zhouzirui/pollinator-bot/backend/internal/service/bot"
	"github.com/zhouzirui/pollinator-bot/backend/internal/service/engine"
	"github.com/zhouzirui/pollinator-bot/backend/internal/service/export"
	"github.com/zhouzirui/pollinator-bot/backend/internal/service/session"
	"github.com/zhouzirui/pollinator-bot/backend/internal/transport/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	repo, err := bootstrap.OpenRepository(ctx, cfg.Store, cfg.Bot.Location)
	if err != nil {
		log.Fatalf("failed to open observation store: %v", err)
	}
	defer func() { _ = repo.Close() }()

	// Telegram 为可选传输，未配置 token 时只提供 HTTP 接口
	var botAPI *tgbotapi.BotAPI
	if cfg.Bot.TelegramEnabled() {
		botAPI, err = tgbotapi.NewBotAPI(cfg.Bot.Token)
		if err != nil {
			log.Fatalf("failed to connect to telegram: %v", err)
		}
		log.Printf("Telegram bot authorized as @%s", botAPI.Self.UserName)
	} else {
		log.Println("TELEGRAM_BOT_TOKEN 未配置，跳过 Telegram 轮询")
	}

	var linker mediaTelegram.FileLinker
	if botAPI != nil {
		linker = botAPI
	}
	resolver, err := bootstrap.OpenResolver(ctx, cfg.Media, linker)
	if errors.Is(err, bootstrap.ErrNoFileLinker) {
		log.Printf("warning: %v; exported rows will carry %q", err, export.LinkUnavailable)
		resolver = media.Func(func(context.Context, string) (string, error) {
			return "", bootstrap.ErrNoFileLinker
		})
	} else if err != nil {
		log.Fatalf("failed to initialize media resolver: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	sessions := session.NewStore()
	conversation := engine.NewEngine(sessions, repo, engine.Config{
		RequireMedia:       cfg.Bot.RequireMedia,
		Location:           cfg.Bot.Location,
		DefaultLanguage:    cfg.Bot.DefaultLanguage,
		PersistTimeout:     cfg.Bot.PersistTimeout,
		PersistRetries:     cfg.Bot.PersistRetries,
		PersistConcurrency: cfg.Bot.PersistConcurrency,
	}, engine.WithMetrics(m))

	aggregator := export.NewAggregator(repo, resolver, export.Config{
		Admins:         cfg.Bot.Admins,
		ResolveTimeout: cfg.Export.ResolveTimeout,
		Concurrency:    cfg.Export.Concurrency,
	}, export.WithMetrics(m))
	if len(cfg.Bot.Admins) == 0 {
		log.Println("warning: BOT_ADMINS is empty, export is disabled for everyone")
	}

	dispatcher := bot.NewDispatcher(conversation, aggregator)
	limiter := middleware.NewRateLimiter(cfg.Bot.RateLimit, cfg.Bot.RateBurst)
	if cfg.Server.APIToken == "" {
		log.Println("warning: API_TOKEN is empty, /api routes are disabled")
	}
	router := handler.NewRouter(dispatcher, aggregator, limiter, registry, cfg.Server.APIToken)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sessions.RunJanitor(gctx, cfg.Bot.SessionTTL, janitorInterval(cfg.Bot.SessionTTL))
		return nil
	})
	if limiter != nil {
		g.Go(func() error {
			ticker := time.NewTicker(10 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					limiter.Forget(time.Hour)
				}
			}
		})
	}
	if botAPI != nil {
		g.Go(func() error {
			return telegram.New(botAPI, dispatcher, telegram.WithRateLimiter(limiter)).Run(gctx)
		})
	}
	g.Go(func() error {
		return startServer(gctx, cfg.Server, router)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func janitorInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	return interval
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Pollinator bot backend listening on %s", addr)
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
