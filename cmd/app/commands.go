package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"llm-aeo-tracker/internal/adapter/httpapi"
	"llm-aeo-tracker/internal/config"
	"llm-aeo-tracker/internal/domain"
	"llm-aeo-tracker/internal/service"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	verbose    bool
	jsonOut    bool
}

func newRootCmd(build appBuilder) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "aeo",
		Short: "Track how AI answer engines mention a brand",
		Long: `Asks several LLM answer engines the same question, finds where and how a
brand is mentioned in each answer, scores its AI visibility and suggests
improvements. Also generates robots.txt, llm.txt and sitemap.xml for a site.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file (default $AEO_CONFIG)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		newAnalyzeCmd(opts, build),
		newGenerateCmd(opts, build),
		newHistoryCmd(opts, build),
		newServeCmd(opts, build),
	)
	return root
}

// loadApp 读取配置并初始化依赖
func loadApp(cmd *cobra.Command, opts *rootOptions, build appBuilder) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	return build(cmd.Context(), cfg, newLogger(opts.verbose))
}

func newAnalyzeCmd(opts *rootOptions, build appBuilder) *cobra.Command {
	var req service.QueryRequest
	var providers []string

	cmd := &cobra.Command{
		Use:   "analyze <brand> <query>",
		Short: "Query every configured answer engine and score the brand",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts, build)
			if err != nil {
				return err
			}
			defer a.cleanup()
			if len(a.cfg.Providers) == 0 && len(providers) == 0 {
				return errNoProviders
			}

			req.Brand, req.Query = args[0], args[1]
			for _, p := range providers {
				req.Providers = append(req.Providers, domain.Provider(p))
			}

			if !opts.jsonOut {
				fmt.Fprintf(cmd.ErrOrStderr(), "🤖 正在询问 %d 个 AI 平台: [%s] ...\n", len(a.cfg.Providers), req.Query)
			}
			analysis, err := a.analysis.Analyze(cmd.Context(), req)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), analysis)
			}
			printAnalysis(cmd.OutOrStdout(), analysis)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&req.Aliases, "alias", "a", nil, "other names the brand is known by")
	cmd.Flags().StringSliceVar(&req.Competitors, "competitor", nil, "competitors to rank against")
	cmd.Flags().StringSliceVarP(&providers, "provider", "p", nil, "providers to ask (default: all configured)")
	return cmd
}

func newGenerateCmd(opts *rootOptions, build appBuilder) *cobra.Command {
	var brand, description, outDir string
	var publish bool

	cmd := &cobra.Command{
		Use:   "generate <domain>",
		Short: "Generate robots.txt, llm.txt and sitemap.xml for a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts, build)
			if err != nil {
				return err
			}
			defer a.cleanup()

			docs, err := a.docs.Generate(args[0], brand, description)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				if err := printJSON(cmd.OutOrStdout(), docs); err != nil {
					return err
				}
			} else {
				written, err := writeDocuments(outDir, docs)
				if err != nil {
					return err
				}
				for _, path := range written {
					fmt.Fprintf(cmd.OutOrStdout(), "✅ 已生成 %s\n", path)
				}
			}

			if !publish {
				return nil
			}
			if a.publisher == nil {
				return fmt.Errorf("--publish needs publish.owner and publish.repo in the config")
			}
			if err := a.publisher.Publish(cmd.Context(), docs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "🚀 已发布到 %s/%s@%s\n", a.cfg.Publish.Owner, a.cfg.Publish.Repo, a.cfg.Publish.Branch)
			return nil
		},
	}
	cmd.Flags().StringVarP(&brand, "brand", "b", "", "brand name (required)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "one-line brand description for llm.txt")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "directory to write the files to")
	cmd.Flags().BoolVar(&publish, "publish", false, "commit the files to the configured GitHub repository")
	_ = cmd.MarkFlagRequired("brand")
	return cmd
}

func newHistoryCmd(opts *rootOptions, build appBuilder) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [brand]",
		Short: "List archived analyses, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts, build)
			if err != nil {
				return err
			}
			defer a.cleanup()

			brand := ""
			if len(args) == 1 {
				brand = args[0]
			}
			list, err := a.analysis.History(cmd.Context(), brand, limit)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), list)
			}
			printHistory(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of analyses")
	return cmd
}

func newServeCmd(opts *rootOptions, build appBuilder) *cobra.Command {
	var addr string
	var perMinute float64

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, opts, build)
			if err != nil {
				return err
			}
			defer a.cleanup()

			if addr == "" {
				addr = a.cfg.HTTPAddr
			}
			srv := httpapi.NewServer(a.analysis, a.docs, a.publisher, a.logger)
			if perMinute > 0 {
				srv.SetAnalyzeLimit(httpapi.NewClientLimiter(perMinute, 2))
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "🌐 API 已启动: %s (Ctrl+C 停止)\n", addr)
			return srv.Run(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default http_addr from config)")
	cmd.Flags().Float64Var(&perMinute, "analyze-per-minute", 8, "analysis submissions allowed per client per minute, 0 for unlimited")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printAnalysis(w io.Writer, a *domain.Analysis) {
	m := a.Metrics
	fmt.Fprintf(w, "\n================ [ %s ] ================\n", a.Brand)
	fmt.Fprintf(w, "📝 查询: %s\n", a.Query)
	fmt.Fprintf(w, "🏆 AI 可见度: %.1f/10\n", a.VisibilityScore)
	fmt.Fprintf(w, "📣 提及: %d/%d 个平台", m.TotalMentions, m.ProviderCount)
	if m.AveragePosition > 0 {
		fmt.Fprintf(w, "  |  平均排名: %.1f", m.AveragePosition)
	}
	if m.BestProvider != nil {
		fmt.Fprintf(w, "  |  最佳平台: %s", m.BestProvider.DisplayName())
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "😊 正面 %d / 😐 中性 %d / 😞 负面 %d\n", m.Sentiment.Positive, m.Sentiment.Neutral, m.Sentiment.Negative)

	fmt.Fprintln(w, "\n平台明细:")
	for _, r := range a.Records {
		switch {
		case r.Failed():
			fmt.Fprintf(w, "  ❌ %-10s %s: %s\n", r.Provider.DisplayName(), r.ErrorKind, r.ErrorMessage)
		case r.Mentioned():
			fmt.Fprintf(w, "  ✅ %-10s #%d %-8s %s\n", r.Provider.DisplayName(), *r.Position, r.Sentiment, oneLine(r.MatchedSnippet))
		default:
			fmt.Fprintf(w, "  ⚪ %-10s 未提及\n", r.Provider.DisplayName())
		}
	}

	if len(a.Competitors) > 0 {
		fmt.Fprintln(w, "\n竞品排名:")
		for _, c := range a.Competitors {
			marker := "  "
			if c.IsBrand {
				marker = "👉"
			}
			fmt.Fprintf(w, "  %s %d. %-16s %.1f\n", marker, c.Rank, c.Name, c.Metrics.VisibilityScore)
		}
	}

	if len(a.Recommendations) > 0 {
		fmt.Fprintln(w, "\n💡 优化建议:")
		for _, r := range a.Recommendations {
			fmt.Fprintf(w, "  [%s] %s (%s)\n      %s\n", r.Priority, r.Title, r.ExpectedImpact, r.Description)
		}
	}
	fmt.Fprintln(w, "==================================================")
}

func printHistory(w io.Writer, list []*domain.Analysis) {
	if len(list) == 0 {
		fmt.Fprintln(w, "📭 还没有分析记录。请先运行 analyze！")
		return
	}
	for _, a := range list {
		fmt.Fprintf(w, "%s  %-16s %4.1f  %s  (%s)\n",
			a.CreatedAt.Format("2006-01-02 15:04"), a.Brand, a.VisibilityScore, a.Query, a.ID)
	}
}

// writeDocuments 写入三个文件, 返回写入的路径
func writeDocuments(dir string, docs *domain.DocumentSet) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	files := []struct {
		name    string
		content string
	}{
		{"robots.txt", docs.RobotsTxt},
		{"llm.txt", docs.LLMTxt},
		{"sitemap.xml", docs.SitemapXML},
	}
	written := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, []byte(f.content), 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
