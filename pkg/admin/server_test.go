package admin

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
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/voiceorch/core/pkg/adminstore"
	"github.com/voiceorch/core/pkg/analytics"
	"github.com/voiceorch/core/pkg/config"
	"github.com/voiceorch/core/pkg/kvstore"
	"github.com/voiceorch/core/pkg/session"
)

func newTestServer(t *testing.T) (*Server, *adminstore.Store, *session.Manager) {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	store, err := adminstore.Open(ctx, adminstore.Config{
		Host: host, Port: port.Int(), User: "test", Password: "test", Database: "test", SSLMode: "disable",
		MaxOpenConns: 5, MaxIdleConns: 2, ConnMaxLifetime: time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	loader := config.NewLoader(staticFetcher{}, staticMirror{}, time.Hour)
	mr := miniredis.RunT(t)
	sessions := session.New(kvstore.New(mr.Addr(), 0), 10, 300, time.Hour, 6)
	rec := analytics.New(store, time.Hour, 1000)

	return New(store, loader, sessions, rec), store, sessions
}

type staticFetcher struct{}

func (staticFetcher) Fetch(ctx context.Context, kind config.Kind) ([]byte, error) { return []byte(`{}`), nil }

type staticMirror struct{}

func (staticMirror) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}
func (staticMirror) Get(ctx context.Context, key string) ([]byte, bool, error) { return nil, false, nil }

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestFeatureFlags_UpsertListDelete(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPut, "/api/features/redis_caching",
		config.FeatureFlag{Enabled: true, Category: "performance", Required: true, Priority: 1})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/features", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var flags map[string]config.FeatureFlag
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &flags))
	require.Contains(t, flags, "redis_caching")
	assert.True(t, flags["redis_caching"].Required)

	rec = doJSON(t, srv.Handler(), http.MethodDelete, "/api/features/redis_caching", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodDelete, "/api/features/redis_caching", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeatureFlags_UpsertRecordsAudit(t *testing.T) {
	srv, store, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPut, "/api/features/function_calling",
		config.FeatureFlag{Enabled: true, Category: "core"})
	require.Equal(t, http.StatusOK, rec.Code)

	records, err := store.ListAudit(context.Background(), "feature_flag", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "upsert", records[0].Action)
	assert.Equal(t, "admin", records[0].Actor)
}

func TestConversationSettings_GetMissingReturnsDefaults(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/conversation/settings", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var got config.ConversationSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, config.DefaultConversationSettings(), got)
}

func TestConversationSettings_PutThenGetRoundTrips(t *testing.T) {
	srv, _, _ := newTestServer(t)

	want := config.ConversationSettings{Enabled: true, MaxMessages: 15, TimeoutSeconds: 120}
	rec := doJSON(t, srv.Handler(), http.MethodPut, "/api/conversation/settings", want)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/conversation/settings", nil)
	var got config.ConversationSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, want, got)
}

func TestLLMBackends_DeleteMissingReturnsNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodDelete, "/api/llm-backends/nonexistent", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessions_HistoryAndDelete(t *testing.T) {
	srv, _, sessions := newTestServer(t)
	ctx := context.Background()
	sess, _ := sessions.GetOrCreate(ctx, "")
	require.NoError(t, sessions.Append(ctx, sess.ID, session.RoleUser, "hello", "", nil))

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/sessions/"+sess.ID+"/history", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var msgs []session.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Text)

	rec = doJSON(t, srv.Handler(), http.MethodDelete, "/api/sessions/"+sess.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, created := sessions.GetOrCreate(ctx, sess.ID)
	assert.True(t, created, "a deleted session id is created afresh")
}

func TestSessions_ExportMissingReturnsNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/sessions/nonexistent", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSessions_ReturnsSummaryForEachSession(t *testing.T) {
	srv, _, sessions := newTestServer(t)
	ctx := context.Background()
	sessions.GetOrCreate(ctx, "")
	sessions.GetOrCreate(ctx, "")

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/sessions", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var got []session.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)
}

func TestSessions_ExportPathAliasMatchesBarePath(t *testing.T) {
	srv, _, sessions := newTestServer(t)
	ctx := context.Background()
	sess, _ := sessions.GetOrCreate(ctx, "")
	require.NoError(t, sessions.Append(ctx, sess.ID, session.RoleUser, "hello", "", nil))

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/sessions/"+sess.ID+"/export", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var got session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Messages, 1)
}

func TestAnalyticsSummary_DefaultsTo24HourWindow(t *testing.T) {
	srv, store, _ := newTestServer(t)
	require.NoError(t, store.InsertAnalyticsEvents(context.Background(), []adminstore.AnalyticsEventRow{
		{Category: "weather", Intent: "weather", Outcome: "success", LatencyMs: 100, OccurredAt: time.Now()},
	}))

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/analytics/summary", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Categories []adminstore.CategorySummary `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Categories, 1)
	assert.Equal(t, "weather", body.Categories[0].Category)
}

func TestDataSources_UpsertInvalidatesLoader(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), http.MethodPut, "/api/data-sources/flights",
		config.DataSourceConfig{BaseURL: "https://flights.example.com", APIKeyEnv: "FLIGHTS_API_KEY"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv.Handler(), http.MethodGet, "/api/data-sources", nil)
	var sources map[string]config.DataSourceConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sources))
	require.Contains(t, sources, "flights")
}
