package envforwarder

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mywio/pipeline-agent/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestEnvForwarderPlugin_AllowsKeysAndPrefixes(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Setenv("APP_TOKEN", "abc123")

	mgr := core.NewModuleManager(newLogger())
	mgr.SetConfig(map[string]map[string]any{
		"env_forwarder": {
			"keys":     []string{"FOO", "MISSING_FORWARDER_KEY"},
			"prefixes": []string{"APP_"},
		},
	})

	missing := make(chan core.InternalEvent, 1)
	mgr.Subscribe(string(EventMissingKey), func(ctx context.Context, event core.InternalEvent) {
		missing <- event
	})

	p := New()
	require.NoError(t, p.Init(context.Background(), newLogger(), mgr))
	assert.Equal(t, core.StatusHealthy, p.Status())

	res, err := p.Execute(context.Background(), "get_secrets", map[string]interface{}{"owner": "acme", "repo": "app"})
	require.NoError(t, err)

	secrets, ok := res.(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "bar", secrets["FOO"])
	assert.Equal(t, "abc123", secrets["APP_TOKEN"])
	_, exists := secrets["MISSING_FORWARDER_KEY"]
	assert.False(t, exists)

	select {
	case event := <-missing:
		assert.Equal(t, "acme/app", event.Repo)
		assert.Equal(t, "MISSING_FORWARDER_KEY", event.Details["key"])
	case <-time.After(time.Second):
		t.Fatal("missing key event not published")
	}
}

func TestEnvForwarderPlugin_CommaSeparatedEnvConfig(t *testing.T) {
	t.Setenv("BAR_ONE", "1")

	mgr := core.NewModuleManager(newLogger())
	mgr.SetConfig(map[string]map[string]any{
		"env_forwarder": {"keys": "", "prefixes": " BAR_ , "},
	})

	p := New()
	require.NoError(t, p.Init(context.Background(), newLogger(), mgr))

	res, err := p.Execute(context.Background(), "get_secrets", nil)
	require.NoError(t, err)
	assert.Equal(t, "1", res.(map[string]string)["BAR_ONE"])
}

func TestEnvForwarderPlugin_DisabledWithoutConfig(t *testing.T) {
	mgr := core.NewModuleManager(newLogger())

	p := New()
	require.NoError(t, p.Init(context.Background(), newLogger(), mgr))
	assert.Equal(t, core.StatusDegraded, p.Status())

	res, err := p.Execute(context.Background(), "get_secrets", map[string]interface{}{})
	require.NoError(t, err)

	secrets, ok := res.(map[string]string)
	assert.True(t, ok)
	assert.Len(t, secrets, 0)
}

func TestEnvForwarderPlugin_UnknownAction(t *testing.T) {
	p := New()
	require.NoError(t, p.Init(context.Background(), newLogger(), nil))

	_, err := p.Execute(context.Background(), "nope", map[string]interface{}{})
	assert.Error(t, err)
}
