// Package trigger exposes an HTTP endpoint that requests an immediate
// reconciliation (e.g. from GitHub Actions).
package trigger

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mywio/pipeline-agent/pkg/core"
)

const (
	Name = "webhook_trigger"

	EventWebhookReceived core.EventTypeName = "webhook_received"
)

type WebhookTriggerPlugin struct {
	port     string
	token    core.Secret
	logger   *slog.Logger
	registry core.PluginRegistry
	mux      *http.ServeMux
	server   *http.Server
}

type webhookTriggerConfig struct {
	Port  string `yaml:"port"`
	Token string `yaml:"token"`
}

func New() core.Plugin {
	return &WebhookTriggerPlugin{}
}

func (p *WebhookTriggerPlugin) Name() string {
	return Name
}

func (p *WebhookTriggerPlugin) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	p.logger = logger
	p.registry = registry

	if registry != nil {
		if section, ok := registry.GetConfig()[Name]; ok {
			var wcfg webhookTriggerConfig
			if err := core.DecodeConfigSection(section, &wcfg); err != nil {
				p.logger.WarnContext(ctx, "Invalid webhook_trigger config", "error", err)
			}
			p.port = strings.TrimSpace(wcfg.Port)
			p.token = core.NewSecret(wcfg.Token)
		}
		p.token.Register(registry.Masker(), "webhook_trigger.token")
	}

	if p.token.Value == "" {
		p.logger.WarnContext(ctx, "WEBHOOK_TOKEN not set, endpoint is unsecured (use with caution)")
	} else {
		p.logger.InfoContext(ctx, "Webhook Trigger Plugin Initialized", "port", p.port, "secured", true)
	}

	// A dedicated port gets its own server; otherwise share the core mux.
	if registry != nil && p.port == "" {
		p.mux = registry.GetMuxServer()
	} else {
		p.mux = http.NewServeMux()
	}
	if registry != nil {
		if err := registry.RegisterEventType(core.EventTypeDesc{
			Name:        EventWebhookReceived,
			Description: "Raw webhook received (before processing)",
		}); err != nil {
			p.logger.DebugContext(ctx, "Event type already registered", "type", EventWebhookReceived)
		}
	}
	p.mux.HandleFunc("/reconcile", p.handleReconcile)

	return nil
}

func (p *WebhookTriggerPlugin) Start(_ context.Context) error {
	if p.port == "" {
		return nil
	}
	p.server = &http.Server{Addr: ":" + p.port, Handler: p.mux}
	p.logger.Info("Webhook Trigger server starting", "port", p.port)
	if err := p.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webhook trigger server: %w", err)
	}
	return nil
}

func (p *WebhookTriggerPlugin) Stop(ctx context.Context) error {
	if p.server != nil {
		if err := p.server.Shutdown(ctx); err != nil {
			p.logger.Error("Webhook server shutdown failed", "error", err)
			return err
		}
		p.logger.Info("Webhook Trigger server stopped")
	}
	return nil
}

func (p *WebhookTriggerPlugin) Description() string {
	return "Webhook trigger for on-demand reconciliation"
}

func (p *WebhookTriggerPlugin) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilityTrigger}
}

func (p *WebhookTriggerPlugin) Status() core.ServiceStatus {
	if p.token.Value == "" {
		return core.StatusDegraded
	}
	return core.StatusHealthy
}

type webhookTriggerConfigView struct {
	Port  string      `json:"port,omitempty"`
	Token core.Secret `json:"token"`
}

func (p *WebhookTriggerPlugin) Config() any {
	return webhookTriggerConfigView{Port: p.port, Token: p.token}
}

func (p *WebhookTriggerPlugin) Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	return nil, fmt.Errorf("webhook_trigger plugin does not support Execute actions (use HTTP endpoint)")
}

func (p *WebhookTriggerPlugin) authorized(r *http.Request) bool {
	if p.token.Value == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	got, ok := strings.CutPrefix(auth, "Bearer ")
	return ok && subtle.ConstantTimeCompare([]byte(got), []byte(p.token.Value)) == 1
}

// HTTP handler for /reconcile
func (p *WebhookTriggerPlugin) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !p.authorized(r) {
		p.logger.Warn("Rejected reconcile trigger", "client_ip", r.RemoteAddr)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	p.logger.Info("Reconciliation trigger received via webhook",
		"client_ip", r.RemoteAddr,
		"user_agent", r.UserAgent())

	if p.registry != nil {
		// Detached from the request so listeners outlive the response.
		ctx := context.WithoutCancel(r.Context())
		p.registry.Publish(ctx, core.InternalEvent{
			Type:   EventWebhookReceived,
			Source: Name,
			Details: map[string]interface{}{
				"client_ip":  r.RemoteAddr,
				"method":     r.Method,
				"user_agent": r.UserAgent(),
			},
		})
		p.registry.Publish(ctx, core.InternalEvent{
			Type:    core.EventReconcileNow,
			Source:  Name,
			Details: map[string]interface{}{"client_ip": r.RemoteAddr},
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, `{"status": "accepted", "message": "Reconciliation triggered"}`)
}
