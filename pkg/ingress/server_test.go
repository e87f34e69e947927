package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voiceorch/core/pkg/cachetier"
	"github.com/voiceorch/core/pkg/clarify"
	"github.com/voiceorch/core/pkg/classify"
	"github.com/voiceorch/core/pkg/config"
	"github.com/voiceorch/core/pkg/handlers"
	"github.com/voiceorch/core/pkg/kvstore"
	"github.com/voiceorch/core/pkg/orchestrator"
	"github.com/voiceorch/core/pkg/session"
)

type fakeWeatherHandler struct{ resp handlers.Response }

func (h *fakeWeatherHandler) Category() string { return "weather" }

func (h *fakeWeatherHandler) Handle(ctx context.Context, intent classify.Intent, zone string, sessCtx classify.SessionContext) (handlers.Response, error) {
	return h.resp, nil
}

type noopFetcher struct{}

func (noopFetcher) Fetch(ctx context.Context, kind config.Kind) ([]byte, error) { return []byte(`{}`), nil }

type noopMirror struct{}

func (noopMirror) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}
func (noopMirror) Get(ctx context.Context, key string) ([]byte, bool, error) { return nil, false, nil }

func newTestServer(t *testing.T) (*Server, *session.Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	sessions := session.New(kvstore.New(mr.Addr(), 0), 10, 300, time.Hour, 6)

	loader := config.NewLoader(noopFetcher{}, noopMirror{}, time.Hour)
	loader.Flags = config.NewFeatureFlagRegistry(map[string]*config.FeatureFlag{
		"redis_caching":    {Name: "redis_caching", Enabled: true},
		"function_calling": {Name: "function_calling", Enabled: true},
	})

	classifier := classify.New(nil, nil)
	cache := cachetier.New(100, nil, nil)
	clarifier := clarify.New(config.NewClarificationRuleRegistry(nil), func() config.ClarificationSettings {
		return config.ClarificationSettings{Enabled: true, TimeoutSeconds: 30}
	}, sessions, nil)

	facade := &fakeWeatherHandler{resp: handlers.Response{Text: "72 and sunny", Category: "weather"}}
	pipeline := orchestrator.New(loader, sessions, classifier, cache,
		map[string]handlers.Handler{"weather": facade}, nil, nil, clarifier,
		nil, nil, nil, nil, 5*time.Second, "assistant", "default", "hey assistant")

	return New(pipeline, sessions), sessions
}

func TestHealth_ReturnsOK(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQuery_RoutesThroughPipelineAndReturnsAnswer(t *testing.T) {
	srv, _ := newTestServer(t)

	body, err := json.Marshal(map[string]string{"query": "what's the weather"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "72 and sunny", resp["answer"])
	assert.NotEmpty(t, resp["session_id"])
}

func TestQuery_InvalidJSONReturnsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader([]byte(`not json`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuery_InvalidAudioBase64ReturnsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	body, err := json.Marshal(map[string]string{"query": "hi", "audio_base64": "not-base64!!"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSession_UnknownIDReturnsNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/sessions/nonexistent", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetSession_ExportsStructuredJSON(t *testing.T) {
	srv, sessions := newTestServer(t)
	ctx := context.Background()
	s, _ := sessions.GetOrCreate(ctx, "")
	require.NoError(t, sessions.Append(ctx, s.ID, session.RoleUser, "hi", "", nil))

	r := httptest.NewRequest(http.MethodGet, "/sessions/"+s.ID, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	var got session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hi", got.Messages[0].Text)
}

func TestListSessions_ReturnsSummaryForEachSession(t *testing.T) {
	srv, sessions := newTestServer(t)
	ctx := context.Background()
	a, _ := sessions.GetOrCreate(ctx, "")
	sessions.GetOrCreate(ctx, "")
	require.NoError(t, sessions.Append(ctx, a.ID, session.RoleUser, "hi", "", nil))

	r := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	var got []session.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)
}

func TestGetSession_ExportPathMatchesBarePath(t *testing.T) {
	srv, sessions := newTestServer(t)
	ctx := context.Background()
	s, _ := sessions.GetOrCreate(ctx, "")
	require.NoError(t, sessions.Append(ctx, s.ID, session.RoleUser, "hi", "", nil))

	r := httptest.NewRequest(http.MethodGet, "/sessions/"+s.ID+"/export", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	var got session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Messages, 1)
}

func TestGetSession_FormatQueryParamSelectsPlaintext(t *testing.T) {
	srv, sessions := newTestServer(t)
	ctx := context.Background()
	s, _ := sessions.GetOrCreate(ctx, "")
	require.NoError(t, sessions.Append(ctx, s.ID, session.RoleUser, "hello", "", nil))

	r := httptest.NewRequest(http.MethodGet, "/sessions/"+s.ID+"?format=plaintext", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user: hello\n", rec.Body.String())
}

func TestDeleteSession_ReturnsNoContent(t *testing.T) {
	srv, sessions := newTestServer(t)
	ctx := context.Background()
	s, _ := sessions.GetOrCreate(ctx, "")

	r := httptest.NewRequest(http.MethodDelete, "/sessions/"+s.ID, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, r)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
