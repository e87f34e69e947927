// Package admin implements the administrative HTTP surface: CRUD endpoints
// over every configuration entity, an audit trail on every mutation,
// config-cache invalidation against the running Config Loader, session
// inspection, and analytics summaries.
package admin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voiceorch/core/pkg/adminstore"
	"github.com/voiceorch/core/pkg/analytics"
	"github.com/voiceorch/core/pkg/config"
	"github.com/voiceorch/core/pkg/session"
)

// Server is the Admin HTTP Surface.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	store      *adminstore.Store
	loader     *config.Loader
	sessions   *session.Manager
	analytics  *analytics.Recorder
	actor      string
}

// New builds the Admin HTTP Surface and registers its routes.
func New(store *adminstore.Store, loader *config.Loader, sessions *session.Manager, rec *analytics.Recorder) *Server {
	s := &Server{
		engine:    gin.New(),
		store:     store,
		loader:    loader,
		sessions:  sessions,
		analytics: rec,
		actor:     "admin",
	}
	s.engine.Use(gin.Recovery())
	s.setupRoutes()
	return s
}

// Handler exposes the underlying http.Handler for embedding in an
// http.Server, or for tests using httptest.
func (s *Server) Handler() http.Handler { return s.engine }

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

func (s *Server) setupRoutes() {
	api := s.engine.Group("/api")

	api.GET("/features", s.listFeatureFlags)
	api.PUT("/features/:name", s.upsertFeatureFlag)
	api.DELETE("/features/:name", s.deleteFeatureFlag)

	api.GET("/llm-backends", s.listLLMBackends)
	api.PUT("/llm-backends/:model", s.upsertLLMBackend)
	api.DELETE("/llm-backends/:model", s.deleteLLMBackend)

	api.GET("/conversation/settings", s.getConversationSettings)
	api.PUT("/conversation/settings", s.putConversationSettings)
	api.GET("/conversation/clarification", s.getClarificationSettings)
	api.PUT("/conversation/clarification", s.putClarificationSettings)

	api.GET("/conversation/clarification/types", s.listClarificationRules)
	api.PUT("/conversation/clarification/types/:kind", s.upsertClarificationRule)
	api.DELETE("/conversation/clarification/types/:kind", s.deleteClarificationRule)

	api.GET("/conversation/sports-teams", s.listDisambiguationEntries)
	api.PUT("/conversation/sports-teams/:token", s.upsertDisambiguationEntry)
	api.DELETE("/conversation/sports-teams/:token", s.deleteDisambiguationEntry)

	api.GET("/conversation/device-rules", s.listDeviceDisambiguationRules)
	api.PUT("/conversation/device-rules/:kind", s.upsertDeviceDisambiguationRule)
	api.DELETE("/conversation/device-rules/:kind", s.deleteDeviceDisambiguationRule)

	api.GET("/data-sources", s.listDataSources)
	api.PUT("/data-sources/:category", s.upsertDataSource)
	api.DELETE("/data-sources/:category", s.deleteDataSource)

	api.GET("/audit/:entity", s.listAudit)

	api.GET("/sessions", s.listSessions)
	api.GET("/sessions/:id", s.exportSession)
	api.GET("/sessions/:id/export", s.exportSession)
	api.DELETE("/sessions/:id", s.deleteSession)
	api.GET("/sessions/:id/history", s.sessionHistory)

	api.GET("/analytics/summary", s.analyticsSummary)
}

func (s *Server) audit(c *gin.Context, entity, entityID, action string, detail map[string]any) {
	if err := s.store.RecordAudit(c.Request.Context(), adminstore.AuditRecord{
		Entity: entity, EntityID: entityID, Action: action, Actor: s.actor, Detail: detail,
	}); err != nil {
		c.Error(err)
	}
}
