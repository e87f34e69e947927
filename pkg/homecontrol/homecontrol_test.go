package homecontrol

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
	"github.com/voiceorch/core/pkg/orcherr"
)

func TestExtract_TurnOnLights(t *testing.T) {
	call, ok := Extract(classify.Intent{Text: "turn on the kitchen lights"}, "living room")
	require.True(t, ok)
	assert.Equal(t, "kitchen", call.Area)
	assert.Equal(t, "lights", call.DeviceKind)
	assert.Equal(t, "on", call.Action)
}

func TestExtract_DefaultsToCallerZoneWhenNoAreaMentioned(t *testing.T) {
	call, ok := Extract(classify.Intent{Text: "turn off the lights"}, "bedroom")
	require.True(t, ok)
	assert.Equal(t, "bedroom", call.Area)
}

func TestExtract_UsesEntityDeviceKindWhenPresent(t *testing.T) {
	call, ok := Extract(classify.Intent{Text: "turn off the heat", Entities: map[string]string{"device_kind": "thermostat"}}, "office")
	require.True(t, ok)
	assert.Equal(t, "thermostat", call.DeviceKind)
}

func TestExtract_NoActionFailsExtraction(t *testing.T) {
	_, ok := Extract(classify.Intent{Text: "what's the weather"}, "zone")
	assert.False(t, ok)
}

func TestExtract_NoDeviceKindFailsExtraction(t *testing.T) {
	_, ok := Extract(classify.Intent{Text: "turn on the thing"}, "zone")
	assert.False(t, ok)
}

func TestExtract_LockAction(t *testing.T) {
	call, ok := Extract(classify.Intent{Text: "lock the front door lock"}, "entryway")
	require.True(t, ok)
	assert.Equal(t, "lock", call.Action)
	assert.Equal(t, "lock", call.DeviceKind)
}

func TestClient_Execute_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/control", r.URL.Path)
		w.Write([]byte(`{"success": true, "response": "done"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, httpclient.New(time.Second, 1))
	ack, err := c.Execute(context.Background(), Call{Area: "kitchen", DeviceKind: "lights", Action: "on"})
	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.Equal(t, "done", ack.Response)
}

func TestClient_Execute_UpstreamFailureWraps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, httpclient.New(time.Second, 1))
	_, err := c.Execute(context.Background(), Call{Area: "kitchen", DeviceKind: "lights", Action: "on"})
	var upstream *orcherr.UpstreamUnavailableError
	assert.ErrorAs(t, err, &upstream)
}
