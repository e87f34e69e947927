// Command orchestrator runs the voice-assistant orchestration core: the
// caller-facing ingress surface (POST /query, /health, /metrics), the
// admin configuration/session/analytics surface, and every background
// task that keeps them fed (config refresh, session reaping, rate-limit
// reset, analytics flush).
//
// Startup is env-driven config plus .env loading via godotenv and gin mode
// selection, with graceful shutdown on SIGINT/SIGTERM: a
// signal.NotifyContext context is cancelled by the signal, after which main
// shuts both HTTP surfaces down under a 30s timeout so in-flight requests
// drain instead of being dropped.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.etcd.io/bbolt"

	"github.com/voiceorch/core/pkg/admin"
	"github.com/voiceorch/core/pkg/adminstore"
	"github.com/voiceorch/core/pkg/analytics"
	"github.com/voiceorch/core/pkg/cachetier"
	"github.com/voiceorch/core/pkg/classify"
	"github.com/voiceorch/core/pkg/clarify"
	"github.com/voiceorch/core/pkg/config"
	"github.com/voiceorch/core/pkg/handlers"
	"github.com/voiceorch/core/pkg/homecontrol"
	"github.com/voiceorch/core/pkg/httpclient"
	"github.com/voiceorch/core/pkg/ingress"
	"github.com/voiceorch/core/pkg/kvstore"
	"github.com/voiceorch/core/pkg/llmrouter"
	"github.com/voiceorch/core/pkg/orchestrator"
	"github.com/voiceorch/core/pkg/session"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("warning: could not load %s: %v", envPath, err)
	}

	ginMode := getEnv("GIN_MODE", "release")
	gin.SetMode(ginMode)

	ingressPort := getEnv("INGRESS_PORT", "8080")
	adminPort := getEnv("ADMIN_PORT", "8081")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adminStore, err := adminstore.Open(ctx, adminstore.Config{
		Host:            getEnv("POSTGRES_HOST", "localhost"),
		Port:            getEnvInt("POSTGRES_PORT", 5432),
		User:            getEnv("POSTGRES_USER", "voiceorch"),
		Password:        os.Getenv("POSTGRES_PASSWORD"),
		Database:        getEnv("POSTGRES_DB", "voiceorch"),
		SSLMode:         getEnv("POSTGRES_SSLMODE", "disable"),
		MaxOpenConns:    getEnvInt("POSTGRES_MAX_OPEN_CONNS", 20),
		MaxIdleConns:    getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		log.Fatalf("failed to open admin store: %v", err)
	}
	defer adminStore.Close()

	kv := kvstore.New(getEnv("REDIS_ADDR", "localhost:6379"), getEnvInt("REDIS_DB", 0))

	httpClient := httpclient.New(10*time.Second, 3)

	fetcher := &config.HTTPFetcher{BaseURL: getEnv("ADMIN_INTERNAL_URL", "http://localhost:"+adminPort), Client: httpClient}
	loader := config.NewLoader(fetcher, kv, config.DefaultConfigCacheTTL)
	if err := loader.Refresh(ctx); err != nil {
		slog.Warn("initial config refresh failed, serving documented defaults", "error", err)
	}
	go refreshLoop(ctx, loader, 30*time.Second)

	var diskCache *bbolt.DB
	if path := getEnv("CACHE_SPILL_PATH", ""); path != "" {
		diskCache, err = bbolt.Open(path, 0o600, nil)
		if err != nil {
			log.Fatalf("failed to open disk cache: %v", err)
		}
		defer diskCache.Close()
	}
	tier := cachetier.New(getEnvInt("CACHE_LRU_CAPACITY", 2000), kv, diskCache)

	sportsTriggers := map[string]bool{}
	for _, e := range loader.Disambiguations.GetAll() {
		sportsTriggers[e.TriggerToken] = true
	}
	deviceCheck := func(kind string, matches int) bool {
		rule, err := loader.DeviceRules.Get(kind)
		if err != nil {
			return false
		}
		return matches >= rule.MinEntitiesToAsk
	}
	classifier := classify.New(sportsTriggers, deviceCheck)

	dataSourceURL := func(category, fallback string) string {
		if ds, err := loader.DataSources.Get(category); err == nil {
			return ds.BaseURL
		}
		return fallback
	}
	tz, err := time.LoadLocation(getEnv("VOICE_TIMEZONE", "UTC"))
	if err != nil {
		slog.Warn("invalid VOICE_TIMEZONE, defaulting to UTC", "error", err)
		tz = time.UTC
	}
	facades := map[string]handlers.Handler{
		"time":      handlers.NewTimeHandler(tz),
		"weather":   handlers.NewCascadeHandler("weather", tier, httpClient, handlers.WeatherFetcher(dataSourceURL("weather", getEnv("WEATHER_SOURCE_URL", ""))), getEnvInt("WEATHER_DAILY_BUDGET", 10000), "I can't check the weather right now."),
		"sports":    handlers.NewCascadeHandler("sports", tier, httpClient, handlers.SportsFetcher(dataSourceURL("sports", getEnv("SPORTS_SOURCE_URL", ""))), getEnvInt("SPORTS_DAILY_BUDGET", 10000), "I can't get sports scores right now."),
		"events":    handlers.NewCascadeHandler("events", tier, httpClient, handlers.EventsFetcher(dataSourceURL("events", getEnv("EVENTS_SOURCE_URL", ""))), getEnvInt("EVENTS_DAILY_BUDGET", 10000), "I can't look up events right now."),
		"streaming": handlers.NewCascadeHandler("streaming", tier, httpClient, handlers.StreamingFetcher(dataSourceURL("streaming", getEnv("STREAMING_SOURCE_URL", ""))), getEnvInt("STREAMING_DAILY_BUDGET", 10000), "I can't check streaming availability right now."),
		"news":      handlers.NewCascadeHandler("news", tier, httpClient, handlers.NewsFetcher(dataSourceURL("news", getEnv("NEWS_SOURCE_URL", ""))), getEnvInt("NEWS_DAILY_BUDGET", 10000), "I can't get the news right now."),
		"stocks":    handlers.NewCascadeHandler("stocks", tier, httpClient, handlers.StocksFetcher(dataSourceURL("stocks", getEnv("STOCKS_SOURCE_URL", ""))), getEnvInt("STOCKS_DAILY_BUDGET", 10000), "I can't check stock prices right now."),
		"flights":   handlers.NewCascadeHandler("flights", tier, httpClient, handlers.FlightsFetcher(dataSourceURL("flights", getEnv("FLIGHTS_SOURCE_URL", ""))), getEnvInt("FLIGHTS_DAILY_BUDGET", 10000), "I can't check flight status right now."),
		"web-search": handlers.NewCascadeHandler("web-search", tier, httpClient, handlers.WebSearchFetcher(dataSourceURL("web-search", getEnv("WEB_SEARCH_SOURCE_URL", ""))), getEnvInt("WEB_SEARCH_DAILY_BUDGET", 10000), "I don't have an answer for that."),
		"location":  handlers.NewCascadeHandler("location", tier, httpClient, handlers.LocationFetcher(locationTable()), getEnvInt("LOCATION_DAILY_BUDGET", 100000), "I don't know that location."),
		"static":    handlers.NewStaticHandler(staticAnswers()),
	}

	for _, h := range facades {
		if f, ok := h.(facadeLifecycle); ok {
			f.Start(ctx)
		}
	}

	homeControlClient := homecontrol.New(getEnv("HOME_CONTROL_URL", ""), httpClient)
	llmRouter := llmrouter.New(loader.Backends, httpClient)

	convSettings := loader.ConversationSettings()
	sessionMgr := session.New(kv, convSettings.MaxMessages, convSettings.TimeoutSeconds,
		time.Duration(convSettings.SessionTTLSeconds)*time.Second, convSettings.MaxLLMHistoryMessages)
	sessionMgr.Start(ctx, time.Duration(convSettings.CleanupIntervalSeconds)*time.Second)
	defer sessionMgr.Stop()

	rec := analytics.New(adminStore, 10*time.Second, 200)
	rec.Start(ctx)
	defer rec.Stop()

	clarifyEngine := clarify.New(loader.Rules, loader.ClarificationSettings, sessionMgr, rec)

	stt := orchestrator.NewSTTClient(getEnv("STT_URL", "http://localhost:9001"), httpClient)
	tts := orchestrator.NewTTSClient(getEnv("TTS_URL", "http://localhost:9002"), httpClient)

	reg := prometheus.NewRegistry()
	metrics := orchestrator.NewMetrics(reg,
		func() float64 { return float64(sessionMgr.ActiveCount()) },
		func() float64 { return 0 },
	)

	pipeline := orchestrator.New(loader, sessionMgr, classifier, tier, facades, homeControlClient, llmRouter,
		clarifyEngine, stt, tts, metrics, rec, config.DefaultRequestDeadline,
		getEnv("LLM_MODEL", "default"), getEnv("VOICE_PROFILE", "default"), getEnv("WAKE_WORD", "assistant"))

	adminSrv := admin.New(adminStore, loader, sessionMgr, rec)
	ingressSrv := ingress.New(pipeline, sessionMgr)

	go func() {
		slog.Info("admin surface listening", "addr", adminPort)
		if err := adminSrv.Start(":" + adminPort); err != nil && err != http.ErrServerClosed {
			log.Fatalf("admin surface failed: %v", err)
		}
	}()

	go func() {
		slog.Info("ingress surface listening", "addr", ingressPort)
		if err := ingressSrv.Start(":" + ingressPort); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ingress surface failed: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := ingressSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("ingress shutdown error", "error", err)
	}
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("admin shutdown error", "error", err)
	}
	for _, h := range facades {
		if f, ok := h.(facadeLifecycle); ok {
			f.Stop()
		}
	}
}

// facadeLifecycle is implemented by facade handlers that run a background
// task (handlers.CascadeHandler's daily rate-limit reset); handlers.Handler
// itself carries no lifecycle since static/stateless handlers don't need one.
type facadeLifecycle interface {
	Start(ctx context.Context)
	Stop()
}

// locationTable loads the venue's fixed distance/directions answers from
// the file named by LOCATION_FACTS_PATH (a JSON object of query text ->
// spoken answer).
// Location answers are deterministic facts about the installation, not a
// live data source (see handlers.LocationFetcher).
func locationTable() map[string]string {
	return loadJSONMap(getEnv("LOCATION_FACTS_PATH", ""))
}

// staticAnswers loads the venue's fixed address/parking/transit answers
// from the JSON file named by STATIC_FACTS_PATH, bypassing the
// cache/network cascade entirely.
func staticAnswers() map[string]string {
	return loadJSONMap(getEnv("STATIC_FACTS_PATH", ""))
}

func loadJSONMap(path string) map[string]string {
	out := map[string]string{}
	if path == "" {
		return out
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("failed to read facts file, serving empty table", "path", path, "error", err)
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		slog.Warn("failed to parse facts file, serving empty table", "path", path, "error", err)
		return map[string]string{}
	}
	return out
}

func refreshLoop(ctx context.Context, loader *config.Loader, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := loader.Refresh(ctx); err != nil {
				slog.Warn("periodic config refresh failed, serving last-known-good", "error", err)
			}
		}
	}
}
