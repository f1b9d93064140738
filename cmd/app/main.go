package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"llm-aeo-tracker/internal/adapter/feishu"
	"llm-aeo-tracker/internal/adapter/github"
	"llm-aeo-tracker/internal/adapter/lingua"
	"llm-aeo-tracker/internal/adapter/llm"
	"llm-aeo-tracker/internal/adapter/repository"
	"llm-aeo-tracker/internal/aggregator"
	"llm-aeo-tracker/internal/config"
	"llm-aeo-tracker/internal/docgen"
	"llm-aeo-tracker/internal/domain"
	"llm-aeo-tracker/internal/extractor"
	"llm-aeo-tracker/internal/port"
	"llm-aeo-tracker/internal/recommender"
	"llm-aeo-tracker/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(buildApp).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

// app holds the wired components one command needs.
type app struct {
	cfg       *config.Config
	analysis  *service.AnalysisService
	docs      *docgen.Generator
	publisher port.Publisher // 可选
	logger    *slog.Logger
	cleanup   func()
}

type appBuilder func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error)

// buildApp 根据配置初始化所有依赖, 没有配置的可选组件 (数据库, 飞书, GitHub) 会被跳过
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	// 1. LLM 客户端: 只注册有 API key 的 provider
	router, closeRouter, err := llm.FromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	available := make([]domain.Provider, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if router.Supports(p) {
			available = append(available, p)
			continue
		}
		logger.Warn("provider has no API key, skipping", "provider", p)
	}
	cfg.Providers = available

	// 2. 语言检测
	var detector port.LanguageDetector
	if d, err := lingua.New(lingua.LexiconLanguages(cfg.Lexicons)); err != nil {
		logger.Warn("language detection disabled", "error", err)
	} else {
		detector = d
	}
	ex := extractor.New(extractor.OptionsFromConfig(cfg), detector)

	// 3. 存储和通知
	var repoStore port.Repository
	if cfg.DatabaseURL != "" {
		pg, err := repository.NewPostgresRepo(cfg.DatabaseURL)
		if err != nil {
			closeRouter()
			return nil, err
		}
		repoStore = pg
	}
	var notifier port.Notifier
	if cfg.FeishuWebhook != "" {
		notifier = feishu.NewNotifier(cfg.FeishuWebhook, cfg.PublicURL, logger)
	}
	var publisher port.Publisher
	if cfg.Publish.Owner != "" && cfg.Publish.Repo != "" {
		publisher = github.NewPublisher(cfg.GitHubToken, cfg.Publish, logger)
	}

	query := service.NewBrandQueryService(router, ex, cfg, logger)
	analysis := service.NewAnalysisService(
		query,
		ex,
		aggregator.New(cfg.Weights),
		recommender.New(cfg.Rules),
		repoStore,
		notifier,
		logger,
	)

	return &app{
		cfg:       cfg,
		analysis:  analysis,
		docs:      docgen.New(nil),
		publisher: publisher,
		logger:    logger,
		cleanup:   closeRouter,
	}, nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

var errNoProviders = errors.New("no provider has an API key; set OPENAI_API_KEY, PERPLEXITY_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY or DEEPSEEK_API_KEY")
