package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/mywio/pipeline-agent/pkg/masking"
)

type Module interface {
	Name() string
	Init(ctx context.Context, logger *slog.Logger, registry PluginRegistry) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type Plugin interface {
	Module
	Description() string
	Capabilities() []Capability
	Status() ServiceStatus
	Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error)
}

// ConfigProvider is implemented by plugins that expose their effective config
// on the plugin API. Values must use Secret for anything sensitive.
type ConfigProvider interface {
	Config() any
}

// PluginRegistry is the view of the manager handed to modules during Init.
type PluginRegistry interface {
	GetConfig() map[string]map[string]any
	GetHTTPClient() *http.Client
	GetMuxServer() *http.ServeMux
	GetPluginsWithCapability(c Capability) []Plugin
	Masker() *masking.AuditedEngine
	RegisterEventType(desc EventTypeDesc) error
	Subscribe(pattern string, handler Listener)
	Publish(ctx context.Context, event InternalEvent)
}

// PluginFactory builds a fresh plugin instance.
type PluginFactory func() Plugin

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]PluginFactory)
)

// RegisterPluginFactory makes a plugin available to LoadPlugins under name.
func RegisterPluginFactory(name string, f PluginFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// PluginFactoryNames lists the registered plugin names in sorted order.
func PluginFactoryNames() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

type ModuleManager struct {
	mu         sync.RWMutex
	modules    []Module
	logger     *slog.Logger
	config     map[string]map[string]any
	httpClient *http.Client
	masker     *masking.AuditedEngine
	broker     *Broker

	mux        *http.ServeMux
	server     *http.Server
	serverOnce sync.Once
}

func NewModuleManager(logger *slog.Logger) *ModuleManager {
	masker := masking.NewAuditedEngine(nil)
	masker.SetTrace(logger.With("module", "masking"))
	m := &ModuleManager{
		modules: []Module{},
		logger:  logger,
		config:  map[string]map[string]any{},
		masker:  masker,
		broker:  NewBroker(logger.With("module", "broker"), masker),
		mux:     http.NewServeMux(),
	}
	m.registerCoreRoutes()
	return m
}

func (m *ModuleManager) Register(mod Module) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modules = append(m.modules, mod)
}

// LoadPlugins instantiates the named plugins from the factory registry. Unknown
// names are reported together; known ones are registered regardless.
func (m *ModuleManager) LoadPlugins(names []string) error {
	var errs []error
	for _, name := range names {
		factoriesMu.RLock()
		f, ok := factories[name]
		factoriesMu.RUnlock()
		if !ok {
			m.logger.Error("Unknown plugin", "name", name)
			errs = append(errs, fmt.Errorf("unknown plugin %q", name))
			continue
		}
		plug := f()
		m.Register(plug)
		m.logger.Info("Plugin loaded successfully", "name", plug.Name())
	}
	return errors.Join(errs...)
}

func (m *ModuleManager) Init(ctx context.Context) error {
	for _, mod := range m.snapshot() {
		if err := mod.Init(ctx, m.logger.With("module", mod.Name()), m); err != nil {
			return fmt.Errorf("init %s: %w", mod.Name(), err)
		}
	}
	return nil
}

func (m *ModuleManager) Start(ctx context.Context) {
	m.startHTTPServer()
	for _, mod := range m.snapshot() {
		go func(mod Module) {
			m.logger.Info("Starting module", "module", mod.Name())
			if err := mod.Start(ctx); err != nil {
				m.logger.Error("Module failed", "module", mod.Name(), "error", err)
			}
		}(mod)
	}
}

func (m *ModuleManager) Stop(ctx context.Context) {
	mods := m.snapshot()
	for i := len(mods) - 1; i >= 0; i-- {
		mod := mods[i]
		m.logger.Info("Stopping module", "module", mod.Name())
		if err := mod.Stop(ctx); err != nil {
			m.logger.Error("Error stopping module", "module", mod.Name(), "error", err)
		}
	}
	if m.server != nil {
		if err := m.server.Shutdown(ctx); err != nil {
			m.logger.Error("HTTP server shutdown failed", "error", err)
		}
	}
}

func (m *ModuleManager) snapshot() []Module {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.modules)
}

func (m *ModuleManager) SetConfig(cfg map[string]map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = cfg
}

func (m *ModuleManager) GetConfig() map[string]map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

func (m *ModuleManager) SetHTTPClient(c *http.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.httpClient = c
}

func (m *ModuleManager) GetHTTPClient() *http.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.httpClient == nil {
		return http.DefaultClient
	}
	return m.httpClient
}

func (m *ModuleManager) GetMuxServer() *http.ServeMux {
	return m.mux
}

// SetMasker replaces the agent-wide masking engine. The broker follows.
func (m *ModuleManager) SetMasker(a *masking.AuditedEngine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.masker = a
	m.broker.SetMasker(a)
}

// Masker returns the agent-wide masking engine.
func (m *ModuleManager) Masker() *masking.AuditedEngine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.masker
}

func (m *ModuleManager) ListPlugins() []Plugin {
	var out []Plugin
	for _, mod := range m.snapshot() {
		if p, ok := mod.(Plugin); ok {
			out = append(out, p)
		}
	}
	return out
}

func (m *ModuleManager) GetPlugin(name string) (Plugin, error) {
	for _, p := range m.ListPlugins() {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("plugin %s not found", name)
}

func (m *ModuleManager) GetPluginsWithCapability(c Capability) []Plugin {
	var out []Plugin
	for _, p := range m.ListPlugins() {
		if slices.Contains(p.Capabilities(), c) {
			out = append(out, p)
		}
	}
	return out
}

func (m *ModuleManager) RegisterEventType(desc EventTypeDesc) error {
	return m.broker.RegisterEventType(desc)
}

func (m *ModuleManager) Subscribe(pattern string, handler Listener) {
	m.broker.Subscribe(pattern, handler)
}

func (m *ModuleManager) Publish(ctx context.Context, event InternalEvent) {
	m.broker.Publish(ctx, event)
}
