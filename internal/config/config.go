package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"llm-aeo-tracker/internal/domain"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 提取器的分段模式
const (
	SegmentSentence  = "sentence"
	SegmentParagraph = "paragraph"
)

// Config 完整的运行配置
type Config struct {
	Providers            []domain.Provider             `yaml:"providers"`
	PerProviderTimeoutMs int                           `yaml:"per_provider_timeout_ms"`
	OverallTimeoutMs     int                           `yaml:"overall_timeout_ms"`
	Concurrency          int                           `yaml:"concurrency"`
	Weights              VisibilityScoreWeights        `yaml:"visibility_score_weights"`
	Rules                RuleThresholds                `yaml:"rules"`
	Segmentation         Segmentation                  `yaml:"segmentation"`
	DefaultLanguage      string                        `yaml:"default_language"`
	Lexicons             map[string]Lexicon            `yaml:"lexicons"`
	Retry                Retry                         `yaml:"retry"`
	RateLimits           map[domain.Provider]RateLimit `yaml:"rate_limits"`
	Models               map[domain.Provider]string    `yaml:"models"`
	Publish              Publish                       `yaml:"publish"`
	HTTPAddr             string                        `yaml:"http_addr"`
	PublicURL            string                        `yaml:"public_url"`

	// 密钥只从环境变量读取
	APIKeys       map[domain.Provider]string `yaml:"-"`
	DatabaseURL   string                     `yaml:"-"`
	FeishuWebhook string                     `yaml:"-"`
	GitHubToken   string                     `yaml:"-"`
	AzureOpenAI   AzureOpenAI                `yaml:"-"`
}

// AzureOpenAI 设置 Endpoint 后 ChatGPT 走 Azure 部署
type AzureOpenAI struct {
	Endpoint   string
	APIKey     string
	Deployment string
}

// VisibilityScoreWeights 可见度得分的权重. MentionCap 为0表示取查询的provider数量
type VisibilityScoreWeights struct {
	MentionWeight  float64 `yaml:"mention_weight"`
	PositionWeight float64 `yaml:"position_weight"`
	MentionCap     int     `yaml:"mention_cap"`
}

// RuleThresholds 建议规则的阈值
type RuleThresholds struct {
	VisibilityBelow float64 `yaml:"visibility_below"`
	PositionAbove   float64 `yaml:"position_above"`
}

// Segmentation 排名前如何切分回答
type Segmentation struct {
	Mode                 string `yaml:"mode"`
	Window               int    `yaml:"window"`
	ListItemsAreEntities bool   `yaml:"list_items_are_entities"`
	MaxSnippet           int    `yaml:"max_snippet"`
}

// Lexicon 一种语言的正负面关键词
type Lexicon struct {
	Positive []string `yaml:"positive"`
	Negative []string `yaml:"negative"`
}

// Retry provider调用的重试配置, MaxRetries 为0时不重试
type Retry struct {
	MaxRetries     int `yaml:"max_retries"`
	InitialDelayMs int `yaml:"initial_delay_ms"`
}

// RateLimit 单个provider的客户端令牌桶
type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Publish 生成文件提交到的GitHub仓库
type Publish struct {
	Owner  string `yaml:"owner"`
	Repo   string `yaml:"repo"`
	Branch string `yaml:"branch"`
	Path   string `yaml:"path"`
}

// PerProviderTimeout 单个provider超时
func (c *Config) PerProviderTimeout() time.Duration {
	return time.Duration(c.PerProviderTimeoutMs) * time.Millisecond
}

// OverallTimeout 整体超时
func (c *Config) OverallTimeout() time.Duration {
	return time.Duration(c.OverallTimeoutMs) * time.Millisecond
}

// Default 内置默认配置
func Default() *Config {
	return &Config{
		Providers:            append([]domain.Provider(nil), domain.AllProviders...),
		PerProviderTimeoutMs: 20000,
		OverallTimeoutMs:     60000,
		Concurrency:          len(domain.AllProviders),
		Weights: VisibilityScoreWeights{
			MentionWeight:  0.6,
			PositionWeight: 0.4,
		},
		Rules: RuleThresholds{
			VisibilityBelow: 5,
			PositionAbove:   3,
		},
		Segmentation: Segmentation{
			Mode:                 SegmentSentence,
			Window:               1,
			ListItemsAreEntities: true,
			MaxSnippet:           240,
		},
		DefaultLanguage: "en",
		Lexicons:        DefaultLexicons(),
		Retry: Retry{
			MaxRetries:     0,
			InitialDelayMs: 500,
		},
		RateLimits: map[domain.Provider]RateLimit{},
		Models: map[domain.Provider]string{
			domain.ProviderChatGPT:    "gpt-4o-mini",
			domain.ProviderPerplexity: "sonar",
			domain.ProviderClaude:     "claude-3-5-haiku-latest",
			domain.ProviderGemini:     "gemini-2.5-flash-lite",
			domain.ProviderDeepSeek:   "deepseek-chat",
		},
		Publish: Publish{
			Branch: "main",
		},
		HTTPAddr: ":8080",
		APIKeys:  map[domain.Provider]string{},
	}
}

// DefaultLexicons 英语和西班牙语词典
func DefaultLexicons() map[string]Lexicon {
	return map[string]Lexicon{
		"en": {
			Positive: []string{
				"best", "leading", "excellent", "great", "innovative", "reliable", "popular",
				"top", "trusted", "recommended", "strong", "impressive", "outstanding", "pioneer",
				"renowned", "affordable", "efficient", "superior", "favorite", "good",
			},
			Negative: []string{
				"worst", "poor", "bad", "unreliable", "expensive", "controversial", "criticized",
				"problems", "issues", "recall", "lawsuit", "decline", "weak", "struggling",
				"disappointing", "concerns", "risky", "outdated", "complaints", "slow",
			},
		},
		"es": {
			Positive: []string{
				"mejor", "mejores", "líder", "excelente", "innovador", "innovadora", "confiable",
				"popular", "recomendado", "recomendada", "destacado", "destacada", "fuerte",
				"pionero", "pionera", "eficiente", "superior", "bueno", "buena", "reconocido",
			},
			Negative: []string{
				"peor", "malo", "mala", "caro", "cara", "polémico", "polémica", "criticado",
				"problemas", "fallos", "demanda", "débil", "decepcionante", "riesgoso",
				"obsoleto", "quejas", "lento", "lenta", "preocupaciones", "retirada",
			},
		},
	}
}

// Load 加载配置: 默认值 -> YAML文件(path 或 AEO_CONFIG) -> 环境变量.
// 工作目录下有 .env 时先加载它.
func Load(path string) (*Config, error) {
	// .env 可选
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("AEO_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := cfg.mergeYAML(data); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	envErr := cfg.applyEnv()

	if err := errors.Join(envErr, cfg.Validate()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeYAML 用YAML覆盖当前值. map按key合并, 只配置一个模型时其他模型仍用默认值.
func (c *Config) mergeYAML(data []byte) error {
	lexicons := c.Lexicons
	models := c.Models
	rateLimits := c.RateLimits
	c.Lexicons, c.Models, c.RateLimits = nil, nil, nil

	if err := yaml.Unmarshal(data, c); err != nil {
		return err
	}

	for k, v := range c.Lexicons {
		lexicons[k] = v
	}
	for k, v := range c.Models {
		models[k] = v
	}
	for k, v := range c.RateLimits {
		rateLimits[k] = v
	}
	c.Lexicons, c.Models, c.RateLimits = lexicons, models, rateLimits
	return nil
}

var apiKeyEnv = map[domain.Provider]string{
	domain.ProviderChatGPT:    "OPENAI_API_KEY",
	domain.ProviderPerplexity: "PERPLEXITY_API_KEY",
	domain.ProviderClaude:     "ANTHROPIC_API_KEY",
	domain.ProviderGemini:     "GEMINI_API_KEY",
	domain.ProviderDeepSeek:   "DEEPSEEK_API_KEY",
}

// applyEnv 用环境变量覆盖配置. 数值变量格式错误时返回错误, 不会被静默忽略.
func (c *Config) applyEnv() error {
	var errs []error

	if c.APIKeys == nil {
		c.APIKeys = map[domain.Provider]string{}
	}
	for provider, env := range apiKeyEnv {
		if v := os.Getenv(env); v != "" {
			c.APIKeys[provider] = v
		}
	}
	c.DatabaseURL = os.Getenv("DATABASE_URL")
	c.FeishuWebhook = os.Getenv("FEISHU_WEBHOOK")
	c.GitHubToken = os.Getenv("GITHUB_TOKEN")
	c.AzureOpenAI = AzureOpenAI{
		Endpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
		APIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
		Deployment: os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
	}

	if v := os.Getenv("AEO_PROVIDERS"); v != "" {
		var providers []domain.Provider
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			providers = append(providers, domain.Provider(strings.ToLower(strings.TrimSpace(part))))
		}
		c.Providers = providers
	}
	for env, dst := range map[string]*int{
		"AEO_PER_PROVIDER_TIMEOUT_MS": &c.PerProviderTimeoutMs,
		"AEO_OVERALL_TIMEOUT_MS":      &c.OverallTimeoutMs,
	} {
		v := strings.TrimSpace(os.Getenv(env))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %q is not a whole number of milliseconds", env, v))
			continue
		}
		*dst = n
	}
	if v := os.Getenv("AEO_HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("AEO_PUBLIC_URL"); v != "" {
		c.PublicURL = v
	}
	return errors.Join(errs...)
}

// Validate 校验配置, 收集所有错误
func (c *Config) Validate() error {
	var errs []error

	if len(c.Providers) == 0 {
		errs = append(errs, errors.New("providers: at least one provider is required"))
	}
	for _, p := range c.Providers {
		if _, err := domain.ParseProvider(string(p)); err != nil {
			errs = append(errs, fmt.Errorf("providers: %w", err))
		}
	}
	if c.PerProviderTimeoutMs <= 0 {
		errs = append(errs, errors.New("per_provider_timeout_ms must be positive"))
	}
	if c.OverallTimeoutMs <= 0 {
		errs = append(errs, errors.New("overall_timeout_ms must be positive"))
	}
	if c.Concurrency < 0 {
		errs = append(errs, errors.New("concurrency must not be negative"))
	}
	if c.Weights.MentionWeight < 0 || c.Weights.PositionWeight < 0 {
		errs = append(errs, errors.New("visibility_score_weights must not be negative"))
	}
	if c.Weights.MentionWeight+c.Weights.PositionWeight == 0 {
		errs = append(errs, errors.New("visibility_score_weights must not both be zero"))
	}
	if c.Weights.MentionCap < 0 {
		errs = append(errs, errors.New("visibility_score_weights.mention_cap must not be negative"))
	}
	switch c.Segmentation.Mode {
	case SegmentSentence, SegmentParagraph:
	default:
		errs = append(errs, fmt.Errorf("segmentation.mode %q: want %q or %q", c.Segmentation.Mode, SegmentSentence, SegmentParagraph))
	}
	if c.Segmentation.Window < 0 {
		errs = append(errs, errors.New("segmentation.window must not be negative"))
	}
	if _, ok := c.Lexicons[c.DefaultLanguage]; !ok {
		errs = append(errs, fmt.Errorf("default_language %q has no lexicon", c.DefaultLanguage))
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("retry.max_retries must not be negative"))
	}

	return errors.Join(errs...)
}
