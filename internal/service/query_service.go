package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"llm-aeo-tracker/internal/common"
	"llm-aeo-tracker/internal/config"
	"llm-aeo-tracker/internal/domain"
	"llm-aeo-tracker/internal/extractor"
	"llm-aeo-tracker/internal/port"

	"github.com/google/uuid"
)

// QueryRequest 一次品牌查询的输入
type QueryRequest struct {
	Brand       string            `json:"brand"`
	Query       string            `json:"query"`
	Aliases     []string          `json:"aliases,omitempty"`
	Competitors []string          `json:"competitors,omitempty"`
	Providers   []domain.Provider `json:"providers,omitempty"`
}

// QueryResult 一次查询的结果: 每个provider一条记录，顺序与请求一致
type QueryResult struct {
	Request   QueryRequest              `json:"request"`
	Records   []*domain.MentionRecord   `json:"records"`
	Responses []domain.ProviderResponse `json:"responses"`
}

// BrandQueryService 并发向多个LLM发送查询并提取品牌提及
type BrandQueryService struct {
	client             port.LLMClient
	extractor          *extractor.Extractor
	defaultProviders   []domain.Provider
	perProviderTimeout time.Duration
	overallTimeout     time.Duration
	maxGoroutines      int // 最大并发数, 0 表示每个provider一个协程
	nowFunc            func() time.Time
	newID              func() string
	logger             *slog.Logger
}

// NewBrandQueryService 创建查询服务
func NewBrandQueryService(client port.LLMClient, ex *extractor.Extractor, cfg *config.Config, logger *slog.Logger) *BrandQueryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrandQueryService{
		client:             client,
		extractor:          ex,
		defaultProviders:   append([]domain.Provider(nil), cfg.Providers...),
		perProviderTimeout: cfg.PerProviderTimeout(),
		overallTimeout:     cfg.OverallTimeout(),
		maxGoroutines:      cfg.Concurrency,
		nowFunc:            time.Now, // 便于测试注入当前时间
		newID:              uuid.NewString,
		logger:             logger,
	}
}

// SetMaxGoroutines 设置最大并发数
func (s *BrandQueryService) SetMaxGoroutines(max int) {
	if max > 0 {
		s.maxGoroutines = max
	}
}

// SubmitQuery asks every provider the query and returns one record per
// provider, in request order.
func (s *BrandQueryService) SubmitQuery(ctx context.Context, brand, query string, providers []domain.Provider) ([]*domain.MentionRecord, error) {
	res, err := s.Run(ctx, QueryRequest{Brand: brand, Query: query, Providers: providers})
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// Normalize trims the request and resolves the provider list. It is the
// guard used before any provider is called.
func (s *BrandQueryService) Normalize(req QueryRequest) (QueryRequest, error) {
	req.Brand = strings.TrimSpace(req.Brand)
	req.Query = strings.TrimSpace(req.Query)
	if req.Brand == "" {
		return req, common.ValidationError("brand is required")
	}
	if req.Query == "" {
		return req, common.ValidationError("query is required")
	}

	req.Aliases = cleanNames(req.Aliases, req.Brand)
	req.Competitors = cleanNames(req.Competitors, req.Brand)

	providers := req.Providers
	if len(providers) == 0 {
		providers = s.defaultProviders
	}
	set, _ := s.client.(port.ProviderSet)
	seen := make(map[domain.Provider]struct{}, len(providers))
	resolved := make([]domain.Provider, 0, len(providers))
	for _, raw := range providers {
		p, err := domain.ParseProvider(string(raw))
		if err != nil {
			return req, common.ValidationError("%v", err)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		if set != nil && !set.Supports(p) {
			return req, common.ValidationError("provider %s is not configured", p)
		}
		seen[p] = struct{}{}
		resolved = append(resolved, p)
	}
	if len(resolved) == 0 {
		return req, common.ValidationError("no providers to query")
	}
	req.Providers = resolved
	return req, nil
}

// cleanNames trims, drops empties and case-insensitive duplicates, and drops
// names equal to the brand.
func cleanNames(names []string, brand string) []string {
	seen := map[string]struct{}{strings.ToLower(brand): {}}
	var out []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		key := strings.ToLower(n)
		if n == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, n)
	}
	return out
}

type queryJob struct {
	index    int
	provider domain.Provider
}

type queryOutcome struct {
	index    int
	record   *domain.MentionRecord
	response *domain.ProviderResponse
}

// Run 并发查询所有provider。单个provider失败只会降级它自己的记录；
// 总超时到达时未完成的provider记为timeout，已完成的结果保留。
// 父context被取消时返回 common.ErrCanceled。
func (s *BrandQueryService) Run(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	req, err := s.Normalize(req)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, canceled(ctx.Err())
	}

	n := len(req.Providers)
	workers := s.maxGoroutines
	if workers <= 0 || workers > n {
		workers = n
	}

	s.logger.Info("query started",
		"brand", req.Brand, "query", req.Query, "providers", n, "workers", workers)

	batchCtx, cancel := context.WithTimeout(ctx, s.overallTimeout)
	defer cancel()

	// 创建channel用于传递jobs和results
	jobs := make(chan queryJob, n)
	results := make(chan queryOutcome, n)

	// 启动workers
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go s.queryWorker(batchCtx, req, jobs, results, &wg)
	}

	// 发送jobs
	for i, p := range req.Providers {
		jobs <- queryJob{index: i, provider: p}
	}
	close(jobs)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	records := make([]*domain.MentionRecord, n)
	responses := make([]*domain.ProviderResponse, n)
	settled := 0
	collect := func(o queryOutcome) {
		records[o.index] = o.record
		responses[o.index] = o.response
		settled++
	}

	// 等待完成或超时
wait:
	for settled < n {
		select {
		case o := <-results:
			collect(o)
		case <-done:
			// results 是带缓冲的, 把剩余结果取完
			for settled < n {
				collect(<-results)
			}
			break wait
		case <-batchCtx.Done():
			break wait
		}
	}
	// 超时与结果同时到达时, 已经完成的结果仍然保留
drain:
	for settled < n {
		select {
		case o := <-results:
			collect(o)
		default:
			break drain
		}
	}

	if ctx.Err() != nil {
		s.logger.Warn("query canceled", "brand", req.Brand, "settled", settled)
		return nil, canceled(ctx.Err())
	}

	// 总超时: 还没返回的provider记为timeout
	now := s.nowFunc()
	for i, r := range records {
		if r != nil {
			continue
		}
		p := req.Providers[i]
		s.logger.Warn("provider did not settle before overall timeout", "provider", p)
		records[i] = failedRecord(p, req.Brand,
			common.NewProviderError(p, domain.ErrorKindTimeout, context.DeadlineExceeded), s.overallTimeout, now)
	}

	result := &QueryResult{Request: req, Records: records, Responses: []domain.ProviderResponse{}}
	for _, r := range responses {
		if r != nil {
			result.Responses = append(result.Responses, *r)
		}
	}

	s.logger.Info("query finished",
		"brand", req.Brand, "succeeded", len(result.Responses), "failed", n-len(result.Responses))
	return result, nil
}

// queryWorker 工作协程，处理单个provider的查询
func (s *BrandQueryService) queryWorker(
	ctx context.Context,
	req QueryRequest,
	jobs <-chan queryJob,
	results chan<- queryOutcome,
	wg *sync.WaitGroup,
) {
	defer wg.Done()

	for job := range jobs {
		record, response := s.queryProvider(ctx, req, job.provider)
		results <- queryOutcome{index: job.index, record: record, response: response}
	}
}

func (s *BrandQueryService) queryProvider(ctx context.Context, req QueryRequest, provider domain.Provider) (*domain.MentionRecord, *domain.ProviderResponse) {
	start := s.nowFunc()

	// 为每个provider设置超时时间
	callCtx, cancel := context.WithTimeout(ctx, s.perProviderTimeout)
	var (
		text string
		err  = callCtx.Err()
	)
	if err == nil {
		text, err = s.client.Invoke(callCtx, provider, req.Query)
	}
	cancel() // 立即释放资源

	end := s.nowFunc()
	latency := end.Sub(start)

	if err != nil {
		pe := common.ClassifyProviderError(provider, err)
		s.logger.Warn("provider failed",
			"provider", provider, "kind", pe.Kind, "latency", latency, "error", err)
		return failedRecord(provider, req.Brand, pe, latency, end), nil
	}

	id := s.newID()
	ex := s.extractor.ExtractWithEntities(text, req.Brand, req.Aliases, req.Competitors)
	record := &domain.MentionRecord{
		Provider:       provider,
		RawResponseID:  id,
		Brand:          req.Brand,
		MatchedSnippet: ex.Snippet,
		Position:       ex.Position,
		Sentiment:      ex.Sentiment,
		Occurrences:    ex.Occurrences,
		Language:       ex.Language,
		Status:         domain.StatusOK,
		Latency:        latency,
		Timestamp:      end,
	}
	s.logger.Debug("provider answered",
		"provider", provider, "mentioned", record.Mentioned(), "latency", latency)
	return record, &domain.ProviderResponse{ID: id, Provider: provider, Text: text}
}

func failedRecord(provider domain.Provider, brand string, pe *common.ProviderError, latency time.Duration, at time.Time) *domain.MentionRecord {
	msg := ""
	if pe.Err != nil {
		msg = pe.Err.Error()
	}
	return &domain.MentionRecord{
		Provider:     provider,
		Brand:        brand,
		Sentiment:    domain.SentimentNeutral,
		Status:       domain.StatusError,
		ErrorKind:    pe.Kind,
		ErrorMessage: msg,
		Latency:      latency,
		Timestamp:    at,
	}
}

func canceled(err error) error {
	if err == nil {
		err = context.Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return common.WrapError(common.ErrCodeCanceled, "query deadline exceeded", err)
	}
	return common.WrapError(common.ErrCodeCanceled, "query canceled", err)
}
