// exporter writes the observation table to a CSV file without running the bot.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/zhouzirui/pollinator-bot/backend/internal/bootstrap"
	"github.com/zhouzirui/pollinator-bot/backend/internal/config"
	"github.com/zhouzirui/pollinator-bot/backend/internal/media"
	mediaTelegram "github.com/zhouzirui/pollinator-bot/backend/internal/media/telegram"
	"github.com/zhouzirui/pollinator-bot/backend/internal/service/export"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	if err := run(context.Background(), cfg, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("export failed: %v", err)
	}
}

type options struct {
	out     string
	caller  string
	timeout time.Duration
}

func parseFlags(args []string, cfg *config.Config) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("exporter", pflag.ContinueOnError)
	fs.StringVarP(&opts.out, "out", "o", "", "output path, a directory, or - for stdout (default: generated name in the current directory)")
	fs.StringVar(&opts.caller, "as", "", "administrator id to export as (default: first entry of BOT_ADMINS)")
	fs.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall export timeout")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if opts.caller == "" && len(cfg.Bot.Admins) > 0 {
		opts.caller = cfg.Bot.Admins[0]
	}
	if opts.caller == "" {
		return options{}, fmt.Errorf("no caller: pass --as or set BOT_ADMINS")
	}
	return opts, nil
}

func run(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	repo, err := bootstrap.OpenRepository(ctx, cfg.Store, cfg.Bot.Location)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	resolver, err := openResolver(ctx, cfg)
	if err != nil {
		return err
	}

	aggregator := export.NewAggregator(repo, resolver, export.Config{
		Admins:         cfg.Bot.Admins,
		ResolveTimeout: cfg.Export.ResolveTimeout,
		Concurrency:    cfg.Export.Concurrency,
	})
	return writeExport(ctx, aggregator, opts, stdout)
}

type exporter interface {
	Export(ctx context.Context, callerID string) (*export.File, error)
}

func writeExport(ctx context.Context, agg exporter, opts options, stdout io.Writer) error {
	file, err := agg.Export(ctx, opts.caller)
	if err != nil {
		return err
	}

	if opts.out == "-" {
		_, err := stdout.Write(file.Data)
		return err
	}

	path := opts.out
	if path == "" {
		path = file.Name
	} else if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, file.Name)
	}
	if err := os.WriteFile(path, file.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	log.Printf("导出完成: %d 条记录 -> %s", file.Rows, path)
	return nil
}

func openResolver(ctx context.Context, cfg *config.Config) (media.Resolver, error) {
	var linker mediaTelegram.FileLinker
	if cfg.Media.Driver == string(media.DriverTelegram) && cfg.Bot.TelegramEnabled() {
		api, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
		if err != nil {
			return nil, fmt.Errorf("connect to telegram: %w", err)
		}
		linker = api
	}

	resolver, err := bootstrap.OpenResolver(ctx, cfg.Media, linker)
	if errors.Is(err, bootstrap.ErrNoFileLinker) {
		log.Printf("[WARN] %v, 链接列将写入 %q", err, export.LinkUnavailable)
		return media.Func(func(context.Context, string) (string, error) {
			return "", bootstrap.ErrNoFileLinker
		}), nil
	}
	return resolver, err
}
