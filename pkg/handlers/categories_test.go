package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voiceorch/core/pkg/classify"
	"github.com/voiceorch/core/pkg/httpclient"
)

func TestWeatherFetcher_ProjectsTemperatureAndConditions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/weather", r.URL.Path)
		assert.Equal(t, "tomorrow", r.URL.Query().Get("when"))
		w.Write([]byte(`{"temp_f": 71.4, "conditions": "partly cloudy"}`))
	}))
	defer srv.Close()

	fetch := WeatherFetcher(srv.URL)
	text, err := fetch(context.Background(), httpclient.New(time.Second, 1),
		classify.Intent{Entities: map[string]string{"qualifier": "tomorrow"}}, "zone-a")
	require.NoError(t, err)
	assert.Equal(t, "71°F partly cloudy", text)
}

func TestWeatherFetcher_DefaultsQualifierToCurrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "current", r.URL.Query().Get("when"))
		w.Write([]byte(`{"temp_f": 50, "conditions": "clear"}`))
	}))
	defer srv.Close()

	fetch := WeatherFetcher(srv.URL)
	_, err := fetch(context.Background(), httpclient.New(time.Second, 1), classify.Intent{}, "zone-a")
	require.NoError(t, err)
}

func TestWeatherFetcher_EmptyConditionsIsEmptyString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	fetch := WeatherFetcher(srv.URL)
	text, err := fetch(context.Background(), httpclient.New(time.Second, 1), classify.Intent{}, "zone-a")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestSportsFetcher_ReturnsSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"summary": "Home team won 3-1"}`))
	}))
	defer srv.Close()

	fetch := SportsFetcher(srv.URL)
	text, err := fetch(context.Background(), httpclient.New(time.Second, 1), classify.Intent{Text: "score"}, "zone-a")
	require.NoError(t, err)
	assert.Equal(t, "Home team won 3-1", text)
}

func TestStocksFetcher_ProjectsQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol": "ACME", "price": 123.45}`))
	}))
	defer srv.Close()

	fetch := StocksFetcher(srv.URL)
	text, err := fetch(context.Background(), httpclient.New(time.Second, 1), classify.Intent{Text: "acme"}, "zone-a")
	require.NoError(t, err)
	assert.Equal(t, "ACME is trading at $123.45", text)
}

func TestStreamingFetcher_ProjectsServiceAndTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"service": "Streamflix", "title": "A Movie"}`))
	}))
	defer srv.Close()

	fetch := StreamingFetcher(srv.URL)
	text, err := fetch(context.Background(), httpclient.New(time.Second, 1), classify.Intent{Text: "a movie"}, "zone-a")
	require.NoError(t, err)
	assert.Equal(t, "A Movie is available on Streamflix", text)
}

func TestLocationFetcher_ReturnsFromTable(t *testing.T) {
	fetch := LocationFetcher(map[string]string{"where is the parking garage": "Across the street, east entrance."})
	text, err := fetch(context.Background(), nil, classify.Intent{Text: "where is the parking garage"}, "zone")
	require.NoError(t, err)
	assert.Equal(t, "Across the street, east entrance.", text)
}

func TestLocationFetcher_MissingEntryReturnsEmpty(t *testing.T) {
	fetch := LocationFetcher(map[string]string{})
	text, err := fetch(context.Background(), nil, classify.Intent{Text: "unknown"}, "zone")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestTimeHandler_ReportsClockTime(t *testing.T) {
	h := NewTimeHandler(time.UTC)
	resp, err := h.Handle(context.Background(), classify.Intent{Text: "what time is it"}, "zone", classify.SessionContext{})
	require.NoError(t, err)
	assert.Equal(t, "time", resp.Category)
	assert.Contains(t, resp.Text, "it's ")
}

func TestTimeHandler_DayQueryReportsCalendarDate(t *testing.T) {
	h := NewTimeHandler(nil)
	resp, err := h.Handle(context.Background(), classify.Intent{Text: "what day is it"}, "zone", classify.SessionContext{})
	require.NoError(t, err)
	now := time.Now().UTC()
	assert.Equal(t, "it's "+now.Format("Monday, January 2"), resp.Text)
}

func TestWebSearchFetcher_ReturnsAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"answer": "42"}`))
	}))
	defer srv.Close()

	fetch := WebSearchFetcher(srv.URL)
	text, err := fetch(context.Background(), httpclient.New(time.Second, 1), classify.Intent{Text: "meaning of life"}, "zone")
	require.NoError(t, err)
	assert.Equal(t, "42", text)
}
