// Package llmrouter implements generate(model, prompt, params), which
// dispatches to a configured LLMBackend by backend_type (primary,
// alternate, auto-with-fallback), tracking rolling per-backend metrics
// under a per-model-name mutex. The primary and alternate types both call
// the row's own endpoint directly.
//
// The auto-backend path races its own endpoint against a timeout in a
// goroutine+channel+select block and, on timeout or error, falls back to
// the row registered as "<model>:primary", or calls the same endpoint
// again when no such row exists.
package llmrouter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voiceorch/core/pkg/config"
	"github.com/voiceorch/core/pkg/httpclient"
)

// Params are the per-call generation parameters; zero values mean "use the
// backend row's default".
type Params struct {
	Temperature *float64
	MaxTokens   *int
	Timeout     *time.Duration
}

// TokenUsage mirrors the egress contracts' usage shape.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Result is what generate() returns to the orchestrator.
type Result struct {
	Text     string
	Backend  string
	Usage    TokenUsage
	Duration time.Duration
}

// backendClient is the internal interface both egress shapes (`/generate`
// and `/v1/completions`) satisfy, so the router can treat them uniformly.
type backendClient interface {
	Generate(ctx context.Context, endpoint, model, prompt string, temperature float64, maxTokens int) (string, TokenUsage, error)
}

// Router is the LLM Router component.
type Router struct {
	backends *config.LLMBackendRegistry
	client   backendClient
	metrics  map[string]*sync.Mutex
	metricsMu sync.Mutex
}

// New creates a Router over the given backend registry and HTTP client.
func New(backends *config.LLMBackendRegistry, httpClient *httpclient.Client) *Router {
	return &Router{
		backends: backends,
		client:   &genericHTTPBackend{http: httpClient},
		metrics:  make(map[string]*sync.Mutex),
	}
}

func (r *Router) lockFor(model string) *sync.Mutex {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()
	m, ok := r.metrics[model]
	if !ok {
		m = &sync.Mutex{}
		r.metrics[model] = m
	}
	return m
}

// Generate routes a prompt to model's configured backend. If no row exists
// for model, documented defaults are used and a warning logged. A backend
// failure is returned as an error with a zero Result.
func (r *Router) Generate(ctx context.Context, model, prompt string, params Params) (Result, error) {
	backend, err := r.backends.Get(model)
	if err != nil {
		slog.Warn("no LLMBackend row for model, using documented defaults", "model", model)
		backend = &config.LLMBackend{
			ModelName:          model,
			BackendType:        config.BackendPrimary,
			Endpoint:           "",
			Enabled:            true,
			MaxTokens:          config.DefaultMaxTokens,
			DefaultTemperature: config.DefaultLLMTemperature,
			Timeout:            30 * time.Second,
		}
	}

	temperature := backend.DefaultTemperature
	if params.Temperature != nil {
		temperature = *params.Temperature
	}
	maxTokens := backend.MaxTokens
	if params.MaxTokens != nil {
		maxTokens = *params.MaxTokens
	}
	timeout := backend.Timeout
	if params.Timeout != nil {
		timeout = *params.Timeout
	}

	start := time.Now()
	var text string
	var usage TokenUsage
	switch backend.BackendType {
	case config.BackendAuto:
		text, usage, err = r.generateAuto(ctx, backend, prompt, temperature, maxTokens, timeout)
	default:
		text, usage, err = r.generateDirect(ctx, backend.Endpoint, model, prompt, temperature, maxTokens, timeout)
	}
	duration := time.Since(start)

	r.recordMetrics(model, backend, usage, duration, err)

	if err != nil {
		return Result{}, err
	}
	return Result{Text: text, Backend: string(backend.BackendType), Usage: usage, Duration: duration}, nil
}

// generateAuto tries the backend's own endpoint first; on error or
// per-model-timeout it falls back to the primary endpoint for the same
// model family. Falling back to "the primary endpoint" means: when an
// `auto` row exists, callers are expected to also register a `primary`
// row for the same model family, and the router looks that up here.
func (r *Router) generateAuto(ctx context.Context, backend *config.LLMBackend, prompt string, temperature float64, maxTokens int, timeout time.Duration) (string, TokenUsage, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type callResult struct {
		text  string
		usage TokenUsage
		err   error
	}
	resultCh := make(chan callResult, 1)
	go func() {
		text, usage, err := r.generateDirect(callCtx, backend.Endpoint, backend.ModelName, prompt, temperature, maxTokens, timeout)
		resultCh <- callResult{text: text, usage: usage, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err == nil {
			return res.text, res.usage, nil
		}
		slog.Warn("auto backend call failed, falling back to primary", "model", backend.ModelName, "error", res.err)
	case <-callCtx.Done():
		slog.Warn("auto backend call timed out, falling back to primary", "model", backend.ModelName)
	}

	if primary, perr := r.backends.Get(backend.ModelName + ":primary"); perr == nil {
		return r.generateDirect(ctx, primary.Endpoint, primary.ModelName, prompt, temperature, maxTokens, timeout)
	}
	return r.generateDirect(ctx, backend.Endpoint, backend.ModelName, prompt, temperature, maxTokens, timeout)
}

func (r *Router) generateDirect(ctx context.Context, endpoint, model, prompt string, temperature float64, maxTokens int, timeout time.Duration) (string, TokenUsage, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.client.Generate(callCtx, endpoint, model, prompt, temperature, maxTokens)
}

func (r *Router) recordMetrics(model string, backend *config.LLMBackend, usage TokenUsage, duration time.Duration, err error) {
	mu := r.lockFor(model)
	mu.Lock()
	defer mu.Unlock()
	backend.Rolling.TotalRequests++
	if err != nil {
		backend.Rolling.TotalErrors++
		return
	}
	seconds := duration.Seconds()
	if seconds > 0 && usage.CompletionTokens > 0 {
		backend.Rolling.AvgTokensPerSec = float64(usage.CompletionTokens) / seconds
	}
	backend.Rolling.AvgLatencyMs = float64(duration.Milliseconds())
}

// genericHTTPBackend supports both egress shapes and picks one by the
// endpoint path: an endpoint ending in `/v1/completions` gets the
// completions shape, any other endpoint the `/generate` shape. It does not
// retry with the other shape, so concrete deployments set endpoint to the
// correct path for their backend.
type genericHTTPBackend struct {
	http *httpclient.Client
}

func (b *genericHTTPBackend) Generate(ctx context.Context, endpoint, model, prompt string, temperature float64, maxTokens int) (string, TokenUsage, error) {
	if isCompletionsStyle(endpoint) {
		var resp struct {
			Choices []struct {
				Text string `json:"text"`
			} `json:"choices"`
			Usage struct {
				PromptTokens     int `json:"prompt_tokens"`
				CompletionTokens int `json:"completion_tokens"`
				TotalTokens      int `json:"total_tokens"`
			} `json:"usage"`
		}
		err := b.http.DoJSON(ctx, "POST", endpoint, map[string]any{
			"model": model, "prompt": prompt, "temperature": temperature, "max_tokens": maxTokens,
		}, &resp)
		if err != nil {
			return "", TokenUsage{}, err
		}
		text := ""
		if len(resp.Choices) > 0 {
			text = resp.Choices[0].Text
		}
		return text, TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}, nil
	}

	var resp struct {
		Response   string `json:"response"`
		Done       bool   `json:"done"`
		EvalCount  int    `json:"eval_count"`
	}
	err := b.http.DoJSON(ctx, "POST", endpoint, map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": temperature,
			"max_tokens":  maxTokens,
		},
	}, &resp)
	if err != nil {
		return "", TokenUsage{}, err
	}
	return resp.Response, TokenUsage{CompletionTokens: resp.EvalCount, TotalTokens: resp.EvalCount}, nil
}

func isCompletionsStyle(endpoint string) bool {
	for i := len(endpoint) - len("/v1/completions"); i >= 0; i-- {
		if endpoint[i:] == "/v1/completions" {
			return true
		}
		break
	}
	return false
}
