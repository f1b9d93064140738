package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"llm-aeo-tracker/internal/adapter/lingua"
	"llm-aeo-tracker/internal/adapter/llm"
	"llm-aeo-tracker/internal/config"
	"llm-aeo-tracker/internal/extractor"
	"llm-aeo-tracker/internal/port"
)

func main() {
	brand := flag.String("brand", "Tesla", "要查找的品牌")
	query := flag.String("q", "What are the best electric car manufacturers?", "发送给每个平台的问题")
	configPath := flag.String("config", "", "YAML 配置文件")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ 配置加载失败: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := context.Background()
	router, cleanup, err := llm.FromConfig(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("❌ AI 初始化失败: %v", err)
	}
	defer cleanup()

	var detector port.LanguageDetector
	if d, err := lingua.New(lingua.LexiconLanguages(cfg.Lexicons)); err == nil {
		detector = d
	}
	ex := extractor.New(extractor.OptionsFromConfig(cfg), detector)

	providers := router.Providers()
	fmt.Println("🔍 调试模式：逐个询问已配置的平台")
	if len(providers) == 0 {
		fmt.Println("❌ 没有配置任何 API key")
		return
	}

	for i, p := range providers {
		fmt.Printf("\n[%d/%d] %s\n", i+1, len(providers), p.DisplayName())

		callCtx, cancel := context.WithTimeout(ctx, cfg.PerProviderTimeout())
		start := time.Now()
		text, err := router.Invoke(callCtx, p, *query)
		cancel()
		if err != nil {
			log.Printf("    ⚠️ 调用失败 (%s): %v", time.Since(start).Round(time.Millisecond), err)
			continue
		}

		fmt.Printf("    耗时: %s\n", time.Since(start).Round(time.Millisecond))
		fmt.Println("    ---- 原始回答 ----")
		for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
			fmt.Printf("    %s\n", line)
		}
		fmt.Println("    ------------------")

		res := ex.Extract(text, *brand, nil)
		if res.Position == nil {
			fmt.Printf("    %s 未被提及 (语言: %s)\n", *brand, res.Language)
			continue
		}
		fmt.Printf("    排名: %d  情感: %s  出现次数: %d  语言: %s\n", *res.Position, res.Sentiment, res.Occurrences, res.Language)
		fmt.Printf("    片段: %s\n", res.Snippet)
	}
}
