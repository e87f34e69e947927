// Package ingress is the caller-facing HTTP surface: POST /query drives
// one turn through the Orchestrator; GET /health and GET /metrics expose
// liveness and Prometheus metrics; GET/DELETE /sessions/:id let a caller
// inspect or end their own session.
//
// Construction follows the same gin.Engine-plus-struct shape used across
// this tree (see pkg/admin for the same shape).
package ingress

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voiceorch/core/pkg/obs"
	"github.com/voiceorch/core/pkg/orcherr"
	"github.com/voiceorch/core/pkg/orchestrator"
	"github.com/voiceorch/core/pkg/session"
)

// Server is the caller-facing HTTP surface.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	pipeline   *orchestrator.Pipeline
	sessions   *session.Manager
}

// New builds the ingress surface and registers its routes.
func New(pipeline *orchestrator.Pipeline, sessions *session.Manager) *Server {
	s := &Server{engine: gin.New(), pipeline: pipeline, sessions: sessions}
	s.engine.Use(gin.Recovery())
	s.setupRoutes()
	return s
}

// Handler exposes the underlying http.Handler, for tests using httptest.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.POST("/query", s.query)
	s.engine.GET("/sessions", s.listSessions)
	s.engine.GET("/sessions/:id", s.getSession)
	s.engine.GET("/sessions/:id/export", s.getSession)
	s.engine.DELETE("/sessions/:id", s.deleteSession)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// queryRequest is the POST /query body.
type queryRequest struct {
	Query      string `json:"query"`
	Mode       string `json:"mode"`
	Room       string `json:"room"`
	SessionID  string `json:"session_id"`
	AudioBase64 string `json:"audio_base64,omitempty"`
}

func (s *Server) query(c *gin.Context) {
	var body queryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var audio []byte
	if body.AudioBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(body.AudioBase64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid audio_base64"})
			return
		}
		audio = decoded
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = randomID()
	}
	ctx := obs.WithRequestID(c.Request.Context(), requestID)

	resp, lat, err := s.pipeline.Handle(ctx, orchestrator.Request{
		Query:     body.Query,
		Mode:      body.Mode,
		Room:      body.Room,
		SessionID: body.SessionID,
		Audio:     audio,
	}, requestID)
	if err != nil {
		status := http.StatusInternalServerError
		if orcherr.IsRetryable(err) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error(), "request_id": requestID})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"answer":          resp.Answer,
		"intent":          resp.Intent,
		"confidence":      resp.Confidence,
		"citations":       resp.Citations,
		"request_id":      resp.RequestID,
		"session_id":      resp.SessionID,
		"processing_time": resp.ProcessingTime.String(),
		"metadata":        resp.Metadata,
		"latency": gin.H{
			"gateway":               lat.Gateway.String(),
			"intent_classification": lat.IntentClassification.String(),
			"rag_lookup":            lat.RAGLookup.String(),
			"llm_inference":         lat.LLMInference.String(),
			"response_assembly":     lat.ResponseAssembly.String(),
			"cache_lookup":          lat.CacheLookup.String(),
			"tts":                   lat.TTS.String(),
			"total":                 lat.Total.String(),
			"features": gin.H{
				"redis_caching":      lat.Features.RedisCaching,
				"function_calling":   lat.Features.FunctionCalling,
				"facade_enabled":     lat.Features.FacadeEnabled,
				"validation_enabled": lat.Features.ValidationEnabled,
			},
		},
	})
}

func (s *Server) listSessions(c *gin.Context) {
	summaries, err := s.sessions.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func (s *Server) getSession(c *gin.Context) {
	format := session.ExportFormat(c.DefaultQuery("format", string(session.ExportStructured)))
	body, err := s.sessions.Export(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if format == session.ExportStructured {
		c.Data(http.StatusOK, "application/json", []byte(body))
		return
	}
	c.String(http.StatusOK, body)
}

func (s *Server) deleteSession(c *gin.Context) {
	if err := s.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func randomID() string {
	return time.Now().Format("20060102T150405.000000000")
}
