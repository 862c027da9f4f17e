package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mywio/pipeline-agent/pkg/core"
)

const Name = "webhook"

type WebhookPlugin struct {
	logger        *slog.Logger
	url           core.Secret
	client        *http.Client
	enabled       bool
	subscriptions []string
}

type webhookConfig struct {
	URL string `yaml:"url"`
}

func New() core.Plugin {
	return &WebhookPlugin{}
}

func (p *WebhookPlugin) Name() string {
	return Name
}

func (p *WebhookPlugin) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	p.logger = logger
	var subscribeProvided bool
	var subscribePatterns []string
	if registry != nil {
		if section, ok := registry.GetConfig()[Name]; ok {
			_, subscribeProvided = section["subscribe"]
			var wcfg webhookConfig
			if err := core.DecodeConfigSection(section, &wcfg); err != nil {
				p.logger.WarnContext(ctx, "Invalid webhook config", "error", err)
			}
			p.url = core.NewSecret(wcfg.URL)
			subscribePatterns = core.ParseSubscribePatterns(section)
		}
		p.client = registry.GetHTTPClient()
		// Webhook URLs usually embed their credential in the path.
		p.url.Register(registry.Masker(), "webhook.url")
	}
	if p.client == nil {
		p.client = http.DefaultClient
	}
	if p.url.Value == "" {
		p.logger.WarnContext(ctx, "NOTIFY_WEBHOOK_URL not set, webhook notifications disabled")
		p.enabled = false
		return nil
	}

	p.enabled = true
	p.logger.InfoContext(ctx, "Webhook Plugin Initialized", "url", p.url)
	if registry != nil {
		if !subscribeProvided {
			subscribePatterns = []string{"deploy_*", "notify_*"}
		}
		p.subscriptions = append([]string(nil), subscribePatterns...)
		for _, pattern := range subscribePatterns {
			registry.Subscribe(pattern, p.process)
		}
		if len(subscribePatterns) == 0 {
			p.logger.InfoContext(ctx, "Webhook notifier has no subscriptions configured; skipping event registration")
		}
	}
	return nil
}

func (p *WebhookPlugin) Start(ctx context.Context) error {
	return nil
}

func (p *WebhookPlugin) Stop(ctx context.Context) error {
	return nil
}

func (p *WebhookPlugin) Description() string { return "Generic webhook notifier" }

func (p *WebhookPlugin) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilityNotifier}
}

func (p *WebhookPlugin) Status() core.ServiceStatus {
	if p.enabled && p.url.Value != "" {
		return core.StatusHealthy
	}
	return core.StatusUnhealthy
}

type webhookConfigView struct {
	URL       core.Secret `json:"url"`
	Subscribe []string    `json:"subscribe,omitempty"`
	Enabled   bool        `json:"enabled"`
}

func (p *WebhookPlugin) Config() any {
	return webhookConfigView{
		URL:       p.url,
		Subscribe: append([]string(nil), p.subscriptions...),
		Enabled:   p.enabled,
	}
}

func (p *WebhookPlugin) Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	if p.url.Value == "" {
		p.logger.DebugContext(ctx, "Webhook URL not set, skipping notification")
		return nil, nil
	}

	if action != "notify" {
		return nil, fmt.Errorf("unsupported action: %s", action)
	}

	eventRaw, ok := params["event"]
	if !ok {
		return nil, fmt.Errorf("missing event")
	}

	event, ok := eventRaw.(core.InternalEvent)
	if !ok {
		return nil, fmt.Errorf("invalid event type %T", eventRaw)
	}

	if err := p.send(ctx, event); err != nil {
		return nil, err
	}
	return map[string]string{"status": "delivered"}, nil
}

func (p *WebhookPlugin) process(ctx context.Context, event core.InternalEvent) {
	if !p.enabled {
		return
	}
	if err := p.send(ctx, event); err != nil {
		p.logger.ErrorContext(ctx, "Webhook notification failed", "error", err)
	}
}

func (p *WebhookPlugin) send(ctx context.Context, event core.InternalEvent) error {
	payload := map[string]interface{}{
		"event_type": event.Type,
		"source":     event.Source,
		"repo":       event.Repo,
		"job_id":     event.JobID,
		"message":    event.String,
		"details":    event.Details,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url.Value, bytes.NewBuffer(data))
	if err != nil {
		return fmt.Errorf("build webhook request: invalid url")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}

	p.logger.InfoContext(ctx, "Webhook delivered successfully", "event_type", event.Type)
	return nil
}
