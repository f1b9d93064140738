package service

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"llm-aeo-tracker/internal/aggregator"
	"llm-aeo-tracker/internal/common"
	"llm-aeo-tracker/internal/domain"
	"llm-aeo-tracker/internal/extractor"
	"llm-aeo-tracker/internal/port"
	"llm-aeo-tracker/internal/recommender"

	"github.com/google/uuid"
)

// AnalysisService 处理一次完整的品牌可见度分析:
// 查询 -> 聚合 -> 建议 -> 竞品对比 -> 存储和推送
type AnalysisService struct {
	query       *BrandQueryService
	extractor   *extractor.Extractor
	aggregator  *aggregator.Engine
	recommender *recommender.Engine
	repoStore   port.Repository // 可选
	notifier    port.Notifier   // 可选
	nowFunc     func() time.Time
	newID       func() string
	logger      *slog.Logger
}

// NewAnalysisService 创建新的分析服务. repoStore 和 notifier 可以为 nil.
func NewAnalysisService(
	query *BrandQueryService,
	ex *extractor.Extractor,
	agg *aggregator.Engine,
	rec *recommender.Engine,
	repoStore port.Repository,
	notifier port.Notifier,
	logger *slog.Logger,
) *AnalysisService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisService{
		query:       query,
		extractor:   ex,
		aggregator:  agg,
		recommender: rec,
		repoStore:   repoStore,
		notifier:    notifier,
		nowFunc:     time.Now,
		newID:       uuid.NewString,
		logger:      logger,
	}
}

// Validate checks a request without running it.
func (s *AnalysisService) Validate(req QueryRequest) error {
	_, err := s.query.Normalize(req)
	return err
}

// Analyze runs the whole pipeline. It fails with an aggregation error only
// when no provider returned a response; archive and notification failures
// are logged and do not fail the analysis.
func (s *AnalysisService) Analyze(ctx context.Context, req QueryRequest) (*domain.Analysis, error) {
	res, err := s.query.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	metrics := s.aggregator.Aggregate(res.Records)
	if metrics.SucceededProviders == 0 {
		names := make([]string, 0, len(metrics.FailedProviders))
		for _, p := range metrics.FailedProviders {
			names = append(names, string(p))
		}
		return nil, common.AggregationError("no provider returned a response (failed: " + strings.Join(names, ", ") + ")")
	}

	analysis := &domain.Analysis{
		ID:              s.newID(),
		Brand:           res.Request.Brand,
		Query:           res.Request.Query,
		VisibilityScore: metrics.VisibilityScore,
		Records:         res.Records,
		Metrics:         metrics,
		Recommendations: s.recommender.Recommend(metrics),
		Competitors:     s.compare(res, metrics),
		CreatedAt:       s.nowFunc(),
	}

	s.logger.Info("analysis finished",
		"id", analysis.ID,
		"brand", analysis.Brand,
		"visibility_score", metrics.VisibilityScore,
		"mentions", metrics.TotalMentions,
		"failed_providers", metrics.FailedProviders)

	s.archive(ctx, analysis)
	return analysis, nil
}

// archive 存储和推送, 失败只记录日志
func (s *AnalysisService) archive(ctx context.Context, analysis *domain.Analysis) {
	if s.repoStore != nil {
		if err := s.repoStore.Save(ctx, analysis); err != nil {
			s.logger.Error("save analysis failed", "id", analysis.ID, "error", err)
		}
	}

	if s.notifier == nil {
		s.logger.Debug("no notifier configured, skipping push", "id", analysis.ID)
		return
	}
	if err := s.notifier.Notify(ctx, analysis); err != nil {
		s.logger.Error("notify analysis failed", "id", analysis.ID, "error", err)
	}
}

// History returns archived analyses, newest first.
func (s *AnalysisService) History(ctx context.Context, brand string, limit int) ([]*domain.Analysis, error) {
	if s.repoStore == nil {
		return nil, common.NewError(common.ErrCodeNotFound, "no analysis archive configured")
	}
	return s.repoStore.Recent(ctx, strings.TrimSpace(brand), limit)
}

// Get returns one archived analysis.
func (s *AnalysisService) Get(ctx context.Context, id string) (*domain.Analysis, error) {
	if s.repoStore == nil {
		return nil, common.NewError(common.ErrCodeNotFound, "no analysis archive configured")
	}
	return s.repoStore.Get(ctx, id)
}

// compare re-scans every successful response for each competitor, with the
// brand and the other competitors as known entities, and ranks everyone.
func (s *AnalysisService) compare(res *QueryResult, brandMetrics domain.AggregateMetrics) []domain.CompetitorStanding {
	req := res.Request
	if len(req.Competitors) == 0 {
		return nil
	}

	texts := make(map[string]string, len(res.Responses))
	for _, r := range res.Responses {
		texts[r.ID] = r.Text
	}

	standings := make([]domain.CompetitorStanding, 0, len(req.Competitors)+1)
	standings = append(standings, domain.CompetitorStanding{Name: req.Brand, IsBrand: true, Metrics: brandMetrics})

	for i, name := range req.Competitors {
		others := make([]string, 0, len(req.Aliases)+len(req.Competitors))
		others = append(others, req.Brand)
		others = append(others, req.Aliases...)
		others = append(others, req.Competitors[:i]...)
		others = append(others, req.Competitors[i+1:]...)

		records := make([]*domain.MentionRecord, 0, len(res.Records))
		for _, r := range res.Records {
			rec := &domain.MentionRecord{
				Provider:     r.Provider,
				Brand:        name,
				Sentiment:    domain.SentimentNeutral,
				Status:       r.Status,
				ErrorKind:    r.ErrorKind,
				ErrorMessage: r.ErrorMessage,
				Latency:      r.Latency,
				Timestamp:    r.Timestamp,
			}
			if !r.Failed() {
				ex := s.extractor.ExtractWithEntities(texts[r.RawResponseID], name, nil, others)
				rec.RawResponseID = r.RawResponseID
				rec.MatchedSnippet = ex.Snippet
				rec.Position = ex.Position
				rec.Sentiment = ex.Sentiment
				rec.Occurrences = ex.Occurrences
				rec.Language = ex.Language
			}
			records = append(records, rec)
		}

		standings = append(standings, domain.CompetitorStanding{Name: name, Metrics: s.aggregator.Aggregate(records)})
	}

	RankStandings(standings)
	return standings
}

// RankStandings orders standings by visibility score (desc), then average
// position (asc, entities never mentioned last), then input order, and
// assigns 1-based ranks.
func RankStandings(standings []domain.CompetitorStanding) {
	sort.SliceStable(standings, func(i, j int) bool {
		a, b := standings[i].Metrics, standings[j].Metrics
		if a.VisibilityScore != b.VisibilityScore {
			return a.VisibilityScore > b.VisibilityScore
		}
		if (a.AveragePosition == 0) != (b.AveragePosition == 0) {
			return b.AveragePosition == 0
		}
		return a.AveragePosition < b.AveragePosition
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}
}
