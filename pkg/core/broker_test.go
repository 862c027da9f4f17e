package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mywio/pipeline-agent/pkg/masking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroker(m masking.Masker) *Broker {
	return NewBroker(slog.New(slog.NewTextHandler(io.Discard, nil)), m)
}

func TestMatchesPattern(t *testing.T) {
	assert.True(t, matchesPattern("deploy_success", "deploy_success"))
	assert.True(t, matchesPattern("deploy_success", "deploy_*"))
	assert.True(t, matchesPattern("deploy_success", "*"))
	assert.False(t, matchesPattern("deploy_success", "reconcile_*"))
	assert.False(t, matchesPattern("deploy_success", "deploy"))
}

func TestBroker_RegisterEventTypeTwice(t *testing.T) {
	b := newTestBroker(nil)
	require.NoError(t, b.RegisterEventType(EventTypeDesc{Name: EventDeployFailed}))
	assert.Error(t, b.RegisterEventType(EventTypeDesc{Name: EventDeployFailed}))
}

func TestBroker_PublishMasksEvent(t *testing.T) {
	engine := masking.NewEngine()
	engine.AddValue("s3cr3t-token")
	b := newTestBroker(engine)

	got := make(chan InternalEvent, 1)
	b.Subscribe("deploy_*", func(ctx context.Context, event InternalEvent) {
		got <- event
	})

	b.Publish(context.Background(), InternalEvent{
		Type:   EventDeployFailed,
		Source: "reconciler",
		String: "compose failed with s3cr3t-token",
		Details: map[string]interface{}{
			"error":  errors.New("auth s3cr3t-token rejected"),
			"output": []string{"line s3cr3t-token"},
			"nested": map[string]interface{}{"v": "s3cr3t-token"},
			"code":   2,
		},
	})

	select {
	case event := <-got:
		assert.Equal(t, "compose failed with ***", event.String)
		assert.Equal(t, "auth *** rejected", event.Details["error"])
		assert.Equal(t, []string{"line ***"}, event.Details["output"])
		assert.Equal(t, map[string]interface{}{"v": "***"}, event.Details["nested"])
		assert.Equal(t, 2, event.Details["code"])
		assert.False(t, event.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBroker_PublishWithoutMatch(t *testing.T) {
	b := newTestBroker(nil)
	called := make(chan struct{}, 1)
	b.Subscribe("notify_*", func(ctx context.Context, event InternalEvent) {
		called <- struct{}{}
	})
	b.Publish(context.Background(), InternalEvent{Type: EventReconcileNow})

	select {
	case <-called:
		t.Fatal("listener should not be called")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMaskEvent_DoesNotMutateOriginal(t *testing.T) {
	engine := masking.NewEngine()
	engine.AddValue("topsecret")

	details := map[string]interface{}{"msg": "topsecret"}
	orig := InternalEvent{String: "topsecret", Details: details}
	masked := MaskEvent(orig, engine)

	assert.Equal(t, "***", masked.String)
	assert.Equal(t, "***", masked.Details["msg"])
	assert.Equal(t, "topsecret", details["msg"])
	assert.True(t, strings.Contains(orig.String, "topsecret"))
}

func TestModuleManager_SetMaskerFollowsBroker(t *testing.T) {
	mgr := newTestManager()
	replacement := masking.NewAuditedEngine(nil)
	replacement.AddValue("rotated-value", "test")
	mgr.SetMasker(replacement)

	got := make(chan InternalEvent, 1)
	mgr.Subscribe(string(EventDeploySuccess), func(ctx context.Context, event InternalEvent) {
		got <- event
	})
	mgr.Publish(context.Background(), InternalEvent{Type: EventDeploySuccess, String: "rotated-value"})

	select {
	case event := <-got:
		assert.Equal(t, "***", event.String)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}
