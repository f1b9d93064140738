package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"llm-aeo-tracker/internal/aggregator"
	"llm-aeo-tracker/internal/common"
	"llm-aeo-tracker/internal/config"
	"llm-aeo-tracker/internal/domain"
	"llm-aeo-tracker/internal/extractor"
	"llm-aeo-tracker/internal/port"
	"llm-aeo-tracker/internal/recommender"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Save(ctx context.Context, analysis *domain.Analysis) error {
	args := m.Called(ctx, analysis)
	return args.Error(0)
}

func (m *MockRepository) Get(ctx context.Context, id string) (*domain.Analysis, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(*domain.Analysis)
	return a, args.Error(1)
}

func (m *MockRepository) Recent(ctx context.Context, brand string, limit int) ([]*domain.Analysis, error) {
	args := m.Called(ctx, brand, limit)
	list, _ := args.Get(0).([]*domain.Analysis)
	return list, args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, analysis *domain.Analysis) error {
	args := m.Called(ctx, analysis)
	return args.Error(0)
}

var analysisNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestAnalysisService(client port.LLMClient, repo port.Repository, notifier port.Notifier) *AnalysisService {
	cfg := config.Default()
	query := newTestQueryService(client, cfg)
	s := NewAnalysisService(
		query,
		extractor.New(extractor.OptionsFromConfig(cfg), nil),
		aggregator.New(cfg.Weights),
		recommender.New(cfg.Rules),
		repo,
		notifier,
		discardLogger(),
	)
	s.nowFunc = func() time.Time { return analysisNow }
	s.newID = func() string { return "analysis-1" }
	return s
}

func TestNewAnalysisService(t *testing.T) {
	repo := new(MockRepository)
	notifier := new(MockNotifier)

	s := newTestAnalysisService(answering(teslaAnswers), repo, notifier)

	assert.NotNil(t, s)
	assert.Equal(t, repo, s.repoStore)
	assert.Equal(t, notifier, s.notifier)
}

func TestAnalyze_TeslaEndToEnd(t *testing.T) {
	repo := new(MockRepository)
	notifier := new(MockNotifier)
	repo.On("Save", mock.Anything, mock.AnythingOfType("*domain.Analysis")).Return(nil).Once()
	notifier.On("Notify", mock.Anything, mock.AnythingOfType("*domain.Analysis")).Return(nil).Once()
	s := newTestAnalysisService(answering(teslaAnswers), repo, notifier)

	a, err := s.Analyze(context.Background(), QueryRequest{Brand: "Tesla", Query: evQuery})
	require.NoError(t, err)

	assert.Equal(t, "analysis-1", a.ID)
	assert.Equal(t, "Tesla", a.Brand)
	assert.Equal(t, evQuery, a.Query)
	assert.Equal(t, analysisNow, a.CreatedAt)
	require.Len(t, a.Records, 5)

	m := a.Metrics
	assert.Equal(t, 5, m.TotalMentions)
	assert.InDelta(t, 2.4, m.AveragePosition, 1e-9)
	require.NotNil(t, m.BestProvider)
	assert.Equal(t, domain.ProviderChatGPT, *m.BestProvider)
	assert.Empty(t, m.FailedProviders)
	assert.Equal(t, m.VisibilityScore, a.VisibilityScore)
	assert.Nil(t, a.Competitors)

	// deterministic for the same metrics
	rec := recommender.New(config.Default().Rules)
	assert.Equal(t, rec.Recommend(m), rec.Recommend(m))
	assert.Equal(t, rec.Recommend(m), a.Recommendations)

	repo.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestAnalyze_PartialFailureListsFailedProviders(t *testing.T) {
	client := port.LLMClientFunc(func(ctx context.Context, p domain.Provider, prompt string) (string, error) {
		if p == domain.ProviderGemini || p == domain.ProviderDeepSeek {
			return "", errors.New("unavailable")
		}
		return teslaAnswers[p], nil
	})
	s := newTestAnalysisService(client, nil, nil)

	a, err := s.Analyze(context.Background(), QueryRequest{Brand: "Tesla", Query: evQuery})
	require.NoError(t, err)

	assert.Equal(t, []domain.Provider{domain.ProviderGemini, domain.ProviderDeepSeek}, a.Metrics.FailedProviders)
	assert.Equal(t, 3, a.Metrics.SucceededProviders)
	assert.Equal(t, 5, a.Metrics.ProviderCount)
	ids := make([]string, 0, len(a.Recommendations))
	for _, r := range a.Recommendations {
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, recommender.RuleDigitalPresence)
}

func TestAnalyze_AllProvidersFail(t *testing.T) {
	repo := new(MockRepository)
	client := port.LLMClientFunc(func(ctx context.Context, p domain.Provider, prompt string) (string, error) {
		return "", errors.New("down")
	})
	s := newTestAnalysisService(client, repo, nil)

	a, err := s.Analyze(context.Background(), QueryRequest{Brand: "Tesla", Query: evQuery})

	assert.Nil(t, a)
	assert.True(t, errors.Is(err, common.ErrAggregation), "got %v", err)
	assert.Contains(t, err.Error(), "chatgpt")
	repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestAnalyze_NotMentionedIsNotAnError(t *testing.T) {
	s := newTestAnalysisService(answering(map[domain.Provider]string{}), nil, nil)

	a, err := s.Analyze(context.Background(), QueryRequest{Brand: "Tesla", Query: evQuery})
	require.NoError(t, err)

	assert.Zero(t, a.Metrics.TotalMentions)
	assert.Nil(t, a.Metrics.BestProvider)
	assert.Zero(t, a.VisibilityScore)
}

func TestAnalyze_ArchiveErrorsAreLogged(t *testing.T) {
	repo := new(MockRepository)
	notifier := new(MockNotifier)
	repo.On("Save", mock.Anything, mock.Anything).Return(common.WrapError(common.ErrCodeDatabase, "save", errors.New("db down")))
	notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("webhook 500"))
	s := newTestAnalysisService(answering(teslaAnswers), repo, notifier)

	a, err := s.Analyze(context.Background(), QueryRequest{Brand: "Tesla", Query: evQuery})

	require.NoError(t, err)
	assert.NotNil(t, a)
	repo.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestAnalyze_ValidationStopsEarly(t *testing.T) {
	client := new(MockLLMClient)
	s := newTestAnalysisService(client, nil, nil)

	_, err := s.Analyze(context.Background(), QueryRequest{Brand: "", Query: evQuery})

	assert.True(t, errors.Is(err, common.ErrValidation))
	assert.True(t, errors.Is(s.Validate(QueryRequest{Brand: "Tesla"}), common.ErrValidation))
	assert.NoError(t, s.Validate(QueryRequest{Brand: "Tesla", Query: evQuery}))
	client.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalyze_Competitors(t *testing.T) {
	s := newTestAnalysisService(answering(teslaAnswers), nil, nil)

	a, err := s.Analyze(context.Background(), QueryRequest{
		Brand:       "Tesla",
		Query:       evQuery,
		Competitors: []string{"Lucid", "BYD", "Polestar"},
	})
	require.NoError(t, err)

	require.Len(t, a.Competitors, 4)
	names := make([]string, 0, 4)
	for i, c := range a.Competitors {
		names = append(names, c.Name)
		assert.Equal(t, i+1, c.Rank)
	}
	// Tesla: 1,2,3,2,4 (7.67). BYD: 2,1,-,1,3 (7.09). Lucid: claude only.
	assert.Equal(t, []string{"Tesla", "BYD", "Lucid", "Polestar"}, names)
	assert.True(t, a.Competitors[0].IsBrand)
	assert.Equal(t, 4, a.Competitors[1].Metrics.TotalMentions)
	assert.InDelta(t, 1.75, a.Competitors[1].Metrics.AveragePosition, 1e-9)
	assert.Equal(t, 1, a.Competitors[2].Metrics.TotalMentions)
	assert.Zero(t, a.Competitors[3].Metrics.TotalMentions)
}

func TestRankStandings(t *testing.T) {
	standings := []domain.CompetitorStanding{
		{Name: "never", Metrics: domain.AggregateMetrics{}},
		{Name: "mid", Metrics: domain.AggregateMetrics{VisibilityScore: 5, AveragePosition: 3}},
		{Name: "tie-better-position", Metrics: domain.AggregateMetrics{VisibilityScore: 5, AveragePosition: 2}},
		{Name: "top", Metrics: domain.AggregateMetrics{VisibilityScore: 9, AveragePosition: 1}},
		{Name: "never-2", Metrics: domain.AggregateMetrics{}},
	}

	RankStandings(standings)

	var names []string
	for _, s := range standings {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"top", "tie-better-position", "mid", "never", "never-2"}, names)
	assert.Equal(t, 5, standings[4].Rank)
}

func TestHistory(t *testing.T) {
	repo := new(MockRepository)
	want := []*domain.Analysis{{ID: "a"}, {ID: "b"}}
	repo.On("Recent", mock.Anything, "Tesla", 10).Return(want, nil)

	s := newTestAnalysisService(answering(teslaAnswers), repo, nil)
	got, err := s.History(context.Background(), " Tesla ", 10)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = newTestAnalysisService(answering(teslaAnswers), nil, nil).History(context.Background(), "", 10)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestGet(t *testing.T) {
	repo := new(MockRepository)
	want := &domain.Analysis{ID: "a"}
	repo.On("Get", mock.Anything, "a").Return(want, nil)
	repo.On("Get", mock.Anything, "missing").Return(nil, common.NewError(common.ErrCodeNotFound, "analysis missing"))

	s := newTestAnalysisService(answering(teslaAnswers), repo, nil)
	got, err := s.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = s.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, common.ErrNotFound))

	_, err = newTestAnalysisService(answering(teslaAnswers), nil, nil).Get(context.Background(), "a")
	assert.True(t, errors.Is(err, common.ErrNotFound))
}
