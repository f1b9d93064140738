// Package httpapi 通过HTTP提供分析会话, 文件生成和历史记录
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"llm-aeo-tracker/internal/common"
	"llm-aeo-tracker/internal/docgen"
	"llm-aeo-tracker/internal/domain"
	"llm-aeo-tracker/internal/port"
	"llm-aeo-tracker/internal/service"
	"llm-aeo-tracker/internal/session"

	"github.com/gin-gonic/gin"
)

// Analyzer API 用到的 service.AnalysisService 方法
type Analyzer interface {
	Validate(req service.QueryRequest) error
	Analyze(ctx context.Context, req service.QueryRequest) (*domain.Analysis, error)
	History(ctx context.Context, brand string, limit int) ([]*domain.Analysis, error)
	Get(ctx context.Context, id string) (*domain.Analysis, error)
}

type analysisSnapshot = session.Snapshot[service.QueryRequest, *domain.Analysis]

// Server 把处理函数挂到 gin 上
type Server struct {
	analyzer  Analyzer
	sessions  *session.Store[service.QueryRequest, *domain.Analysis]
	docs      *docgen.Generator
	publisher port.Publisher // 可选
	limiter   *ClientLimiter // 可选
	startTime time.Time
	logger    *slog.Logger
}

// NewServer 创建API服务, publisher 可以为 nil
func NewServer(analyzer Analyzer, docs *docgen.Generator, publisher port.Publisher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		analyzer:  analyzer,
		sessions:  session.NewStore[service.QueryRequest, *domain.Analysis](analyzer.Analyze, analyzer.Validate),
		docs:      docs,
		publisher: publisher,
		startTime: time.Now(),
		logger:    logger,
	}
}

// SetAnalyzeLimit 按客户端IP限制分析请求频率
func (s *Server) SetAnalyzeLimit(l *ClientLimiter) {
	s.limiter = l
}

// Handler 返回注册好路由的 gin engine
func (s *Server) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(s.logger))

	api := r.Group("/api")
	api.GET("/health", s.health)

	sessions := api.Group("/sessions")
	sessions.POST("", s.createSession)
	sessions.GET("/:id", s.getSession)
	sessions.DELETE("/:id", s.deleteSession)
	analyze := []gin.HandlerFunc{s.analyze}
	if s.limiter != nil {
		analyze = append([]gin.HandlerFunc{AnalyzeRateLimit(s.limiter, s.logger)}, analyze...)
	}
	sessions.POST("/:id/analyze", analyze...)
	sessions.POST("/:id/cancel", s.cancelSession)
	sessions.POST("/:id/reset", s.resetSession)

	api.POST("/documents", s.generateDocuments)
	api.GET("/analyses", s.listAnalyses)
	api.GET("/analyses/:id", s.getAnalysis)

	return r
}

// Run 启动服务, ctx 结束后优雅关闭
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

// statusOf 把应用错误映射成HTTP状态码
func statusOf(err error) int {
	switch {
	case errors.Is(err, common.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrAggregation), errors.Is(err, common.ErrPublish):
		return http.StatusBadGateway
	case errors.Is(err, common.ErrCanceled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
