package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voiceorch/core/pkg/adminstore"
	"github.com/voiceorch/core/pkg/config"
)

// toMap converts a slice into the key->row map shape the Config Loader's
// Fetcher expects for KindFeatures/KindLLMBackends/etc (see
// pkg/config/loader.go's apply()).
func toMap[T any](items []T, key func(T) string) map[string]T {
	out := make(map[string]T, len(items))
	for _, v := range items {
		out[key(v)] = v
	}
	return out
}

func (s *Server) listFeatureFlags(c *gin.Context) {
	flags, err := s.store.ListFeatureFlags(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toMap(flags, func(f config.FeatureFlag) string { return f.Name }))
}

func (s *Server) upsertFeatureFlag(c *gin.Context) {
	name := c.Param("name")
	var f config.FeatureFlag
	if err := c.ShouldBindJSON(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	f.Name = name
	if f.Required && !f.Enabled {
		c.JSON(http.StatusBadRequest, gin.H{"error": config.ErrRequiredFlagDisable.Error()})
		return
	}
	if err := s.store.UpsertFeatureFlag(c.Request.Context(), f); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.loader.Invalidate(config.KindFeatures)
	s.audit(c, "feature_flag", name, "upsert", map[string]any{"enabled": f.Enabled})
	c.JSON(http.StatusOK, f)
}

func (s *Server) deleteFeatureFlag(c *gin.Context) {
	name := c.Param("name")
	if err := s.store.DeleteFeatureFlag(c.Request.Context(), name); err != nil {
		status := http.StatusInternalServerError
		if err == adminstore.ErrNotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	s.loader.Invalidate(config.KindFeatures)
	s.audit(c, "feature_flag", name, "delete", nil)
	c.Status(http.StatusNoContent)
}

func (s *Server) listLLMBackends(c *gin.Context) {
	backends, err := s.store.ListLLMBackends(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toMap(backends, func(b config.LLMBackend) string { return b.ModelName }))
}

func (s *Server) upsertLLMBackend(c *gin.Context) {
	model := c.Param("model")
	var b config.LLMBackend
	if err := c.ShouldBindJSON(&b); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b.ModelName = model
	if err := s.store.UpsertLLMBackend(c.Request.Context(), b); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.loader.Invalidate(config.KindLLMBackends)
	s.audit(c, "llm_backend", model, "upsert", map[string]any{"endpoint": b.Endpoint})
	c.JSON(http.StatusOK, b)
}

func (s *Server) deleteLLMBackend(c *gin.Context) {
	model := c.Param("model")
	if err := s.store.DeleteLLMBackend(c.Request.Context(), model); err != nil {
		status := http.StatusInternalServerError
		if err == adminstore.ErrNotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	s.loader.Invalidate(config.KindLLMBackends)
	s.audit(c, "llm_backend", model, "delete", nil)
	c.Status(http.StatusNoContent)
}

func (s *Server) listClarificationRules(c *gin.Context) {
	rules, err := s.store.ListClarificationRules(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toMap(rules, func(r config.ClarificationRule) string { return r.Kind }))
}

func (s *Server) upsertClarificationRule(c *gin.Context) {
	kind := c.Param("kind")
	var r config.ClarificationRule
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r.Kind = kind
	if err := s.store.UpsertClarificationRule(c.Request.Context(), r); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.loader.Invalidate(config.KindClarificationRules)
	s.audit(c, "clarification_rule", kind, "upsert", nil)
	c.JSON(http.StatusOK, r)
}

func (s *Server) deleteClarificationRule(c *gin.Context) {
	kind := c.Param("kind")
	if err := s.store.DeleteClarificationRule(c.Request.Context(), kind); err != nil {
		status := http.StatusInternalServerError
		if err == adminstore.ErrNotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	s.loader.Invalidate(config.KindClarificationRules)
	s.audit(c, "clarification_rule", kind, "delete", nil)
	c.Status(http.StatusNoContent)
}

func (s *Server) listDisambiguationEntries(c *gin.Context) {
	entries, err := s.store.ListDisambiguationEntries(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toMap(entries, func(e config.DisambiguationEntry) string { return e.TriggerToken }))
}

func (s *Server) upsertDisambiguationEntry(c *gin.Context) {
	token := c.Param("token")
	var e config.DisambiguationEntry
	if err := c.ShouldBindJSON(&e); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	e.TriggerToken = token
	if err := s.store.UpsertDisambiguationEntry(c.Request.Context(), e); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.loader.Invalidate(config.KindSportsDisambiguation)
	s.audit(c, "disambiguation_entry", token, "upsert", nil)
	c.JSON(http.StatusOK, e)
}

func (s *Server) deleteDisambiguationEntry(c *gin.Context) {
	token := c.Param("token")
	if err := s.store.DeleteDisambiguationEntry(c.Request.Context(), token); err != nil {
		status := http.StatusInternalServerError
		if err == adminstore.ErrNotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	s.loader.Invalidate(config.KindSportsDisambiguation)
	s.audit(c, "disambiguation_entry", token, "delete", nil)
	c.Status(http.StatusNoContent)
}

func (s *Server) listDeviceDisambiguationRules(c *gin.Context) {
	rules, err := s.store.ListDeviceDisambiguationRules(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toMap(rules, func(r config.DeviceDisambiguationRule) string { return r.DeviceKind }))
}

func (s *Server) upsertDeviceDisambiguationRule(c *gin.Context) {
	kind := c.Param("kind")
	var r config.DeviceDisambiguationRule
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r.DeviceKind = kind
	if err := s.store.UpsertDeviceDisambiguationRule(c.Request.Context(), r); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.loader.Invalidate(config.KindDeviceRules)
	s.audit(c, "device_disambiguation_rule", kind, "upsert", nil)
	c.JSON(http.StatusOK, r)
}

func (s *Server) deleteDeviceDisambiguationRule(c *gin.Context) {
	kind := c.Param("kind")
	if err := s.store.DeleteDeviceDisambiguationRule(c.Request.Context(), kind); err != nil {
		status := http.StatusInternalServerError
		if err == adminstore.ErrNotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	s.loader.Invalidate(config.KindDeviceRules)
	s.audit(c, "device_disambiguation_rule", kind, "delete", nil)
	c.Status(http.StatusNoContent)
}

func (s *Server) getConversationSettings(c *gin.Context) {
	v, found, err := s.store.GetConversationSettings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		v = config.DefaultConversationSettings()
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) putConversationSettings(c *gin.Context) {
	var v config.ConversationSettings
	if err := c.ShouldBindJSON(&v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.PutConversationSettings(c.Request.Context(), v); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.loader.Invalidate(config.KindConversationSettings)
	s.audit(c, "conversation_settings", "singleton", "upsert", nil)
	c.JSON(http.StatusOK, v)
}

func (s *Server) getClarificationSettings(c *gin.Context) {
	v, found, err := s.store.GetClarificationSettings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		v = config.DefaultClarificationSettings()
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) putClarificationSettings(c *gin.Context) {
	var v config.ClarificationSettings
	if err := c.ShouldBindJSON(&v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.PutClarificationSettings(c.Request.Context(), v); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.loader.Invalidate(config.KindClarificationSettings)
	s.audit(c, "clarification_settings", "singleton", "upsert", nil)
	c.JSON(http.StatusOK, v)
}

func (s *Server) listDataSources(c *gin.Context) {
	sources, err := s.store.ListDataSources(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toMap(sources, func(d config.DataSourceConfig) string { return d.Category }))
}

func (s *Server) upsertDataSource(c *gin.Context) {
	category := c.Param("category")
	var d config.DataSourceConfig
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d.Category = category
	if err := s.store.UpsertDataSource(c.Request.Context(), d); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.loader.Invalidate(config.KindDataSources)
	s.audit(c, "data_source", category, "upsert", nil)
	c.JSON(http.StatusOK, d)
}

func (s *Server) deleteDataSource(c *gin.Context) {
	category := c.Param("category")
	if err := s.store.DeleteDataSource(c.Request.Context(), category); err != nil {
		status := http.StatusInternalServerError
		if err == adminstore.ErrNotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	s.loader.Invalidate(config.KindDataSources)
	s.audit(c, "data_source", category, "delete", nil)
	c.Status(http.StatusNoContent)
}

func (s *Server) listAudit(c *gin.Context) {
	entity := c.Param("entity")
	records, err := s.store.ListAudit(c.Request.Context(), entity, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}
