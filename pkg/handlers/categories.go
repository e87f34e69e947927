package handlers

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/voiceorch/core/pkg/classify"
	"github.com/voiceorch/core/pkg/httpclient"
)

// The category-specific data-source APIs have no common response shape:
// upstream schemas vary per provider and are left pluggable, so each fetch
// function owns its own response struct and only the final projected,
// speakable string crosses the cascade boundary.

// WeatherFetcher calls a weather data source keyed on zone + qualifier
// (current/tomorrow/weekend/week/tonight).
func WeatherFetcher(baseURL string) Fetcher {
	return func(ctx context.Context, client *httpclient.Client, intent classify.Intent, zone string) (string, error) {
		var out struct {
			Summary     string  `json:"summary"`
			TempF       float64 `json:"temp_f"`
			Conditions  string  `json:"conditions"`
		}
		qualifier := intent.Entities["qualifier"]
		if qualifier == "" {
			qualifier = "current"
		}
		q := fmt.Sprintf("%s/weather?zone=%s&when=%s", baseURL, url.QueryEscape(zone), url.QueryEscape(qualifier))
		if err := client.DoJSON(ctx, "GET", q, nil, &out); err != nil {
			return "", err
		}
		if out.Conditions == "" {
			return "", nil
		}
		return fmt.Sprintf("%.0f°F %s", out.TempF, out.Conditions), nil
	}
}

// SportsFetcher calls a sports data source for score/schedule/standings.
func SportsFetcher(baseURL string) Fetcher {
	return func(ctx context.Context, client *httpclient.Client, intent classify.Intent, zone string) (string, error) {
		var out struct {
			Summary string `json:"summary"`
		}
		q := fmt.Sprintf("%s/sports?query=%s", baseURL, url.QueryEscape(intent.Text))
		if err := client.DoJSON(ctx, "GET", q, nil, &out); err != nil {
			return "", err
		}
		return out.Summary, nil
	}
}

// EventsFetcher calls an events data source for today/tomorrow/weekend/week.
func EventsFetcher(baseURL string) Fetcher {
	return func(ctx context.Context, client *httpclient.Client, intent classify.Intent, zone string) (string, error) {
		var out struct {
			Summary string `json:"summary"`
		}
		qualifier := intent.Entities["qualifier"]
		q := fmt.Sprintf("%s/events?zone=%s&when=%s", baseURL, url.QueryEscape(zone), url.QueryEscape(qualifier))
		if err := client.DoJSON(ctx, "GET", q, nil, &out); err != nil {
			return "", err
		}
		return out.Summary, nil
	}
}

// StreamingFetcher resolves content -> streaming service.
func StreamingFetcher(baseURL string) Fetcher {
	return func(ctx context.Context, client *httpclient.Client, intent classify.Intent, zone string) (string, error) {
		var out struct {
			Service string `json:"service"`
			Title   string `json:"title"`
		}
		q := fmt.Sprintf("%s/streaming/lookup?title=%s", baseURL, url.QueryEscape(intent.Text))
		if err := client.DoJSON(ctx, "GET", q, nil, &out); err != nil {
			return "", err
		}
		if out.Service == "" {
			return "", nil
		}
		return fmt.Sprintf("%s is available on %s", out.Title, out.Service), nil
	}
}

// NewsFetcher covers local/national/sports-topic news.
func NewsFetcher(baseURL string) Fetcher {
	return func(ctx context.Context, client *httpclient.Client, intent classify.Intent, zone string) (string, error) {
		var out struct {
			Headline string `json:"headline"`
		}
		q := fmt.Sprintf("%s/news?zone=%s&topic=%s", baseURL, url.QueryEscape(zone), url.QueryEscape(intent.Text))
		if err := client.DoJSON(ctx, "GET", q, nil, &out); err != nil {
			return "", err
		}
		return out.Headline, nil
	}
}

// StocksFetcher returns a single quote.
func StocksFetcher(baseURL string) Fetcher {
	return func(ctx context.Context, client *httpclient.Client, intent classify.Intent, zone string) (string, error) {
		var out struct {
			Symbol string  `json:"symbol"`
			Price  float64 `json:"price"`
		}
		q := fmt.Sprintf("%s/stocks/quote?query=%s", baseURL, url.QueryEscape(intent.Text))
		if err := client.DoJSON(ctx, "GET", q, nil, &out); err != nil {
			return "", err
		}
		if out.Symbol == "" {
			return "", nil
		}
		return fmt.Sprintf("%s is trading at $%.2f", out.Symbol, out.Price), nil
	}
}

// FlightsFetcher covers status-by-flight-number and airport delays.
func FlightsFetcher(baseURL string) Fetcher {
	return func(ctx context.Context, client *httpclient.Client, intent classify.Intent, zone string) (string, error) {
		var out struct {
			Summary string `json:"summary"`
		}
		q := fmt.Sprintf("%s/flights?query=%s", baseURL, url.QueryEscape(intent.Text))
		if err := client.DoJSON(ctx, "GET", q, nil, &out); err != nil {
			return "", err
		}
		return out.Summary, nil
	}
}

// WebSearchFetcher is the generic instant-answer fallback used when no
// category matched more specifically.
func WebSearchFetcher(baseURL string) Fetcher {
	return func(ctx context.Context, client *httpclient.Client, intent classify.Intent, zone string) (string, error) {
		var out struct {
			Answer string `json:"answer"`
		}
		q := fmt.Sprintf("%s/search?q=%s", baseURL, url.QueryEscape(intent.Text))
		if err := client.DoJSON(ctx, "GET", q, nil, &out); err != nil {
			return "", err
		}
		return out.Answer, nil
	}
}

// LocationFetcher answers static distance/venue queries from a small
// deterministic table rather than a network call — location answers in
// this domain are fixed facts about the installation's venue, not a live
// data source.
func LocationFetcher(table map[string]string) Fetcher {
	return func(ctx context.Context, client *httpclient.Client, intent classify.Intent, zone string) (string, error) {
		if v, ok := table[intent.Text]; ok {
			return v, nil
		}
		return "", nil
	}
}

// TimeHandler answers "what time is it"/"what day is it" from the local
// clock, bypassing the cache/network cascade: the answer is never stale
// and never worth caching.
type TimeHandler struct {
	loc *time.Location
}

// NewTimeHandler builds a TimeHandler reporting the given location's local
// time; a nil location defaults to UTC.
func NewTimeHandler(loc *time.Location) *TimeHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &TimeHandler{loc: loc}
}

func (h *TimeHandler) Category() string { return "time" }

func (h *TimeHandler) Handle(ctx context.Context, intent classify.Intent, zone string, sessCtx classify.SessionContext) (Response, error) {
	now := time.Now().In(h.loc)
	if strings.Contains(strings.ToLower(intent.Text), "day") {
		return Response{Text: "it's " + now.Format("Monday, January 2"), Category: "time"}, nil
	}
	return Response{Text: "it's " + now.Format("3:04 PM"), Category: "time"}, nil
}

// StaticHandler answers address/neighborhood/parking/transit/airport-static
// queries with deterministic strings, bypassing the cache/network cascade
// entirely.
type StaticHandler struct {
	answers map[string]string
}

// NewStaticHandler builds a StaticHandler from a fixed answer table.
func NewStaticHandler(answers map[string]string) *StaticHandler {
	return &StaticHandler{answers: answers}
}

func (h *StaticHandler) Category() string { return "static" }

func (h *StaticHandler) Handle(ctx context.Context, intent classify.Intent, zone string, sessCtx classify.SessionContext) (Response, error) {
	if v, ok := h.answers[intent.Text]; ok {
		return Response{Text: v, Category: "static"}, nil
	}
	return Response{}, fmt.Errorf("static: no deterministic answer for %q", intent.Text)
}
