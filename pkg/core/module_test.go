package core

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockModule struct {
	name        string
	initErr     error
	initCalled  bool
	startCalled atomic.Bool
	stopCalled  bool
	registry    PluginRegistry
}

func (m *MockModule) Name() string { return m.name }
func (m *MockModule) Init(ctx context.Context, l *slog.Logger, r PluginRegistry) error {
	m.initCalled = true
	m.registry = r
	return m.initErr
}
func (m *MockModule) Start(ctx context.Context) error {
	m.startCalled.Store(true)
	return nil
}
func (m *MockModule) Stop(ctx context.Context) error {
	m.stopCalled = true
	return nil
}

func TestModuleManager(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	mgr := NewModuleManager(logger)

	// Mock Module
	mock := &MockModule{name: "mock"}
	mgr.Register(mock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := mgr.Init(ctx)
	assert.NoError(t, err)
	assert.True(t, mock.initCalled)
	assert.Same(t, mgr.Masker(), mock.registry.Masker())

	mgr.Start(ctx)
	assert.Eventually(t, mock.startCalled.Load, time.Second, 10*time.Millisecond)

	mgr.Stop(ctx)
	assert.True(t, mock.stopCalled)
}

func TestModuleManager_InitError(t *testing.T) {
	mgr := newTestManager()
	boom := errors.New("boom")
	mgr.Register(&MockModule{name: "broken", initErr: boom})

	err := mgr.Init(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "init broken")
}

func TestModuleManager_LoadPlugins(t *testing.T) {
	RegisterPluginFactory("factory_test", func() Plugin { return &testPlugin{name: "factory_test"} })

	mgr := newTestManager()
	err := mgr.LoadPlugins([]string{"factory_test", "does_not_exist"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown plugin "does_not_exist"`)

	plug, err := mgr.GetPlugin("factory_test")
	require.NoError(t, err)
	assert.Equal(t, "factory_test", plug.Name())
	assert.Contains(t, PluginFactoryNames(), "factory_test")
}

func TestModuleManager_GetPluginsWithCapability(t *testing.T) {
	mgr := newTestManager()
	mgr.Register(&testPlugin{name: "api"})
	mgr.Register(&MockModule{name: "not-a-plugin"})

	assert.Len(t, mgr.GetPluginsWithCapability(CapabilityAPI), 1)
	assert.Empty(t, mgr.GetPluginsWithCapability(CapabilitySecrets))
	assert.Len(t, mgr.ListPlugins(), 1)
}

func TestModuleManager_HTTPClientDefault(t *testing.T) {
	mgr := newTestManager()
	assert.NotNil(t, mgr.GetHTTPClient())
}
