package httpapi

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"llm-aeo-tracker/internal/common"
	"llm-aeo-tracker/internal/domain"
	"llm-aeo-tracker/internal/service"
	"llm-aeo-tracker/internal/session"

	"github.com/gin-gonic/gin"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"runtime":         "go",
		"uptime":          time.Since(s.startTime).Round(time.Second).String(),
		"sessions":        s.sessions.Len(),
		"num_goroutines":  runtime.NumGoroutine(),
		"publish_enabled": s.publisher != nil,
	})
}

func (s *Server) createSession(c *gin.Context) {
	sess := s.sessions.Create()
	c.JSON(http.StatusCreated, present(sess.Snapshot()))
}

func (s *Server) session(c *gin.Context) (*session.Session[service.QueryRequest, *domain.Analysis], bool) {
	id := c.Param("id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session " + id + " not found"})
		return nil, false
	}
	return sess, true
}

func (s *Server) getSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, present(sess.Snapshot()))
}

func (s *Server) deleteSession(c *gin.Context) {
	if !s.sessions.Delete(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session " + c.Param("id") + " not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) analyze(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req service.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, common.ValidationError("invalid request body: %v", err))
		return
	}

	snap, err := sess.Submit(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.logger.Info("analysis submitted", "session", sess.ID(), "generation", snap.Generation, "brand", req.Brand)
	c.JSON(http.StatusAccepted, present(snap))
}

func (s *Server) cancelSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, present(sess.Cancel()))
}

func (s *Server) resetSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, present(sess.Reset()))
}

type documentsRequest struct {
	Domain      string `json:"domain"`
	Brand       string `json:"brand"`
	Description string `json:"description"`
	Publish     bool   `json:"publish"`
}

func (s *Server) generateDocuments(c *gin.Context) {
	var req documentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, common.ValidationError("invalid request body: %v", err))
		return
	}

	docs, err := s.docs.Generate(req.Domain, req.Brand, req.Description)
	if err != nil {
		s.fail(c, err)
		return
	}

	published := false
	if req.Publish {
		if s.publisher == nil {
			s.fail(c, common.ValidationError("publishing is not configured"))
			return
		}
		if err := s.publisher.Publish(c.Request.Context(), docs); err != nil {
			s.fail(c, err)
			return
		}
		published = true
	}

	c.JSON(http.StatusOK, gin.H{"documents": docs, "published": published})
}

func (s *Server) listAnalyses(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.fail(c, common.ValidationError("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	list, err := s.analyzer.History(c.Request.Context(), c.Query("brand"), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	if list == nil {
		list = []*domain.Analysis{}
	}
	c.JSON(http.StatusOK, gin.H{"analyses": list})
}

func (s *Server) getAnalysis(c *gin.Context) {
	a, err := s.analyzer.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// present 补上快照的错误信息和对应的HTTP状态码
func present(snap analysisSnapshot) gin.H {
	out := gin.H{
		"id":         snap.ID,
		"state":      snap.State,
		"generation": snap.Generation,
	}
	if snap.State != session.StateIdle {
		out["input"] = snap.Input
		out["started_at"] = snap.StartedAt
	}
	if !snap.FinishedAt.IsZero() {
		out["finished_at"] = snap.FinishedAt
	}
	if snap.Result != nil {
		out["result"] = snap.Result
	}
	if snap.Err != nil {
		out["error"] = snap.Err.Error()
		out["error_status"] = statusOf(snap.Err)
	}
	return out
}
