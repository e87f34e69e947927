package admin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/voiceorch/core/pkg/session"
)

func (s *Server) listSessions(c *gin.Context) {
	summaries, err := s.sessions.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func (s *Server) exportSession(c *gin.Context) {
	id := c.Param("id")
	format := session.ExportFormat(c.DefaultQuery("format", string(session.ExportStructured)))
	body, err := s.sessions.Export(c.Request.Context(), id, format)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.String(http.StatusOK, body)
}

func (s *Server) deleteSession(c *gin.Context) {
	id := c.Param("id")
	if err := s.sessions.Delete(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.audit(c, "session", id, "delete", nil)
	c.Status(http.StatusNoContent)
}

func (s *Server) sessionHistory(c *gin.Context) {
	id := c.Param("id")
	n := 0
	if raw := c.Query("n"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			n = parsed
		}
	}
	msgs, err := s.sessions.History(c.Request.Context(), id, n)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (s *Server) analyticsSummary(c *gin.Context) {
	windowHours := 24
	if raw := c.Query("window_hours"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			windowHours = parsed
		}
	}
	since := time.Now().Add(-time.Duration(windowHours) * time.Hour)
	summary, err := s.analytics.Summarize(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"since": since, "categories": summary})
}
