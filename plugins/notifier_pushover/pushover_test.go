package pushover

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mywio/pipeline-agent/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPushoverNotifier_SendsOnDeployFailure(t *testing.T) {
	received := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		received <- body
	}))
	defer srv.Close()

	mgr := core.NewModuleManager(discardLogger())
	mgr.SetConfig(map[string]map[string]any{
		"pushover": {"token": "po-token-123", "user": "po-user-456", "api_url": srv.URL},
	})

	n := New()
	require.NoError(t, n.Init(context.Background(), discardLogger(), mgr))
	assert.Equal(t, core.StatusHealthy, n.Status())
	assert.Equal(t, "***", mgr.Masker().Mask("po-token-123"))

	mgr.Publish(context.Background(), core.InternalEvent{
		Type:   core.EventDeployFailed,
		Repo:   "acme/app",
		String: "token po-token-123 rejected",
	})

	select {
	case body := <-received:
		assert.Equal(t, "po-token-123", body["token"])
		assert.Equal(t, float64(1), body["priority"])
		assert.Contains(t, body["message"], "token *** rejected")
		assert.NotContains(t, body["message"], "po-token-123")
	case <-time.After(2 * time.Second):
		t.Fatal("notification not sent")
	}
}

func TestPushoverNotifier_DisabledWithoutCredentials(t *testing.T) {
	mgr := core.NewModuleManager(discardLogger())
	mgr.SetConfig(map[string]map[string]any{"pushover": {"token": "", "user": ""}})

	n := New()
	require.NoError(t, n.Init(context.Background(), discardLogger(), mgr))
	assert.Equal(t, core.StatusDegraded, n.Status())
	assert.Equal(t, 0, mgr.Masker().Len())

	res, err := n.Execute(context.Background(), "notify", nil)
	assert.NoError(t, err)
	assert.Nil(t, res)
}

func TestPushoverNotifier_ConfigAndPriorities(t *testing.T) {
	mgr := core.NewModuleManager(discardLogger())
	mgr.SetConfig(map[string]map[string]any{
		"pushover": {
			"token":      "tok",
			"user":       "usr",
			"subscribe":  "notify_*",
			"priorities": map[string]any{"notify_env_forwarder_missing": 2},
		},
	})

	n := New()
	require.NoError(t, n.Init(context.Background(), discardLogger(), mgr))

	p := n.(*PushoverNotifier)
	assert.Equal(t, 2, p.priority("notify_env_forwarder_missing"))
	assert.Equal(t, 1, p.priority(core.EventDeployFailed))
	assert.Equal(t, 0, p.priority(core.EventDeploySuccess))

	data, err := json.Marshal(p.Config())
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"REDACTED","user":"REDACTED","priorities":{"notify_env_forwarder_missing":2},"subscribe":["notify_*"],"enabled":true}`, string(data))
}
