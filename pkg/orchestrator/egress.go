package orchestrator

import (
	"context"
	"fmt"

	"github.com/voiceorch/core/pkg/httpclient"
)

// STTClient transcribes audio via POST /transcribe, which returns
// {transcription, latency_ms, model}.
type STTClient struct {
	baseURL string
	http    *httpclient.Client
}

func NewSTTClient(baseURL string, http *httpclient.Client) *STTClient {
	return &STTClient{baseURL: baseURL, http: http}
}

// Transcribe sends audio and returns the recognized text.
func (c *STTClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	var resp struct {
		Transcription string `json:"transcription"`
		LatencyMs     int    `json:"latency_ms"`
		Model         string `json:"model"`
	}
	if err := c.http.DoJSON(ctx, "POST", c.baseURL+"/transcribe", map[string]any{
		"audio": audio,
	}, &resp); err != nil {
		return "", fmt.Errorf("stt: %w", err)
	}
	return resp.Transcription, nil
}

// TTSClient synthesizes audio via POST /synthesize with {text,
// voice_profile, wake_word}, returning a byte-stream.
type TTSClient struct {
	baseURL string
	http    *httpclient.Client
}

func NewTTSClient(baseURL string, http *httpclient.Client) *TTSClient {
	return &TTSClient{baseURL: baseURL, http: http}
}

// Synthesize returns the audio bytes for text.
func (c *TTSClient) Synthesize(ctx context.Context, text, voiceProfile, wakeWord string) ([]byte, error) {
	var resp struct {
		Audio []byte `json:"audio"`
	}
	if err := c.http.DoJSON(ctx, "POST", c.baseURL+"/synthesize", map[string]any{
		"text":          text,
		"voice_profile": voiceProfile,
		"wake_word":     wakeWord,
	}, &resp); err != nil {
		return nil, fmt.Errorf("tts: %w", err)
	}
	return resp.Audio, nil
}
