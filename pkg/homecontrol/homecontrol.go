// Package homecontrol implements deterministic extraction of a
// device-control intent into a concrete {area, device_kind, action,
// parameters} call against the control plane, bypassing the LLM entirely
// on success.
package homecontrol

import (
	"context"
	"fmt"
	"strings"

	"github.com/voiceorch/core/pkg/classify"
	"github.com/voiceorch/core/pkg/httpclient"
	"github.com/voiceorch/core/pkg/orcherr"
)

// Call is the concrete action sent to the control plane.
type Call struct {
	Area       string            `json:"area"`
	DeviceKind string            `json:"device_kind"`
	Action     string            `json:"action"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Ack is the control plane's acknowledgement.
type Ack struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
}

var actionTerms = map[string]string{
	"turn on":  "on",
	"turn off": "off",
	"dim":      "dim",
	"lock":     "lock",
	"unlock":   "unlock",
	"set":      "set",
}

var deviceKinds = []string{"lights", "thermostat", "lock", "tv", "speaker"}

// Extract turns an intent + zone into a Call. ok is false when extraction
// could not determine a single unambiguous device+action pair; in that
// case the caller should escalate to clarification rather than to the LLM.
func Extract(intent classify.Intent, zone string) (Call, bool) {
	lower := strings.ToLower(intent.Text)

	// The longest matching term wins, so "unlock" is not read as "lock".
	var action, matched string
	for term, act := range actionTerms {
		if strings.Contains(lower, term) && len(term) > len(matched) {
			action, matched = act, term
		}
	}
	if action == "" {
		return Call{}, false
	}

	deviceKind := intent.Entities["device_kind"]
	if deviceKind == "" {
		for _, dk := range deviceKinds {
			if strings.Contains(lower, dk) {
				deviceKind = dk
				break
			}
		}
	}
	if deviceKind == "" {
		return Call{}, false
	}

	area := zone
	for _, candidate := range []string{"kitchen", "living room", "bedroom", "office", "dining"} {
		if strings.Contains(lower, candidate) {
			area = candidate
			break
		}
	}

	return Call{Area: area, DeviceKind: deviceKind, Action: action}, true
}

// Client calls the control plane over HTTP/JSON.
type Client struct {
	baseURL string
	http    *httpclient.Client
}

// New creates a home-control Client against the configured control-plane endpoint.
func New(baseURL string, http *httpclient.Client) *Client {
	return &Client{baseURL: baseURL, http: http}
}

// Execute issues call against the control plane. Failure is reported as
// UpstreamUnavailableError so the orchestrator can fall back to the LLM
// path: a control-plane failure after successful extraction still needs a
// fallback, which the orchestrator provides by trying the LLM path next.
func (c *Client) Execute(ctx context.Context, call Call) (Ack, error) {
	var ack Ack
	if err := c.http.DoJSON(ctx, "POST", c.baseURL+"/control", map[string]any{
		"entity_id":  fmt.Sprintf("%s.%s", call.Area, call.DeviceKind),
		"action":     call.Action,
		"parameters": call.Parameters,
	}, &ack); err != nil {
		return Ack{}, &orcherr.UpstreamUnavailableError{Service: "home-control", Err: err}
	}
	return ack, nil
}
