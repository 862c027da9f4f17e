package pushover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mywio/pipeline-agent/pkg/core"
)

const (
	Name       = "pushover"
	DefaultURL = "https://api.pushover.net/1/messages.json"
)

type PushoverNotifier struct {
	logger        *slog.Logger
	client        *http.Client
	apiURL        string
	token         core.Secret
	user          core.Secret
	priorities    map[string]int
	enabled       bool
	subscriptions []string
}

type pushoverConfig struct {
	Token      string         `yaml:"token"`
	User       string         `yaml:"user"`
	APIURL     string         `yaml:"api_url"`
	Priorities map[string]int `yaml:"priorities"`
}

func New() core.Plugin {
	return &PushoverNotifier{}
}

func (n *PushoverNotifier) Name() string {
	return Name
}

func (n *PushoverNotifier) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	n.logger = logger
	n.apiURL = DefaultURL
	var subscribeProvided bool
	var subscribePatterns []string
	if registry != nil {
		n.client = registry.GetHTTPClient()
		if section, ok := registry.GetConfig()[Name]; ok {
			_, subscribeProvided = section["subscribe"]
			var pushoverCfg pushoverConfig
			if err := core.DecodeConfigSection(section, &pushoverCfg); err != nil {
				n.logger.WarnContext(ctx, "Invalid pushover config", "error", err)
			}
			n.token = core.NewSecret(pushoverCfg.Token)
			n.user = core.NewSecret(pushoverCfg.User)
			n.priorities = pushoverCfg.Priorities
			if pushoverCfg.APIURL != "" {
				n.apiURL = pushoverCfg.APIURL
			}
			subscribePatterns = core.ParseSubscribePatterns(section)
		}
		n.token.Register(registry.Masker(), "pushover.token")
		n.user.Register(registry.Masker(), "pushover.user")
	}
	if n.client == nil {
		n.client = http.DefaultClient
	}
	if n.token.Value == "" || n.user.Value == "" {
		n.logger.WarnContext(ctx, "Pushover token or user not set, notifications disabled")
		n.enabled = false
		return nil
	}
	n.enabled = true
	n.logger.InfoContext(ctx, "Pushover Notifier Initialized")

	if registry != nil {
		if !subscribeProvided {
			subscribePatterns = []string{"deploy_failed", "notify_*"}
		}
		n.subscriptions = append([]string(nil), subscribePatterns...)
		for _, pattern := range subscribePatterns {
			registry.Subscribe(pattern, n.process)
		}
		if len(subscribePatterns) == 0 {
			n.logger.InfoContext(ctx, "Pushover notifier has no subscriptions configured; skipping event registration")
		}
	}

	return nil
}

func (n *PushoverNotifier) Start(ctx context.Context) error {
	return nil
}

func (n *PushoverNotifier) Stop(ctx context.Context) error {
	return nil
}

func (n *PushoverNotifier) Description() string {
	return "Pushover notifier for sending notifications via Pushover API"
}

func (n *PushoverNotifier) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilityNotifier}
}

func (n *PushoverNotifier) Status() core.ServiceStatus {
	if n.enabled {
		return core.StatusHealthy
	}
	return core.StatusDegraded
}

func (n *PushoverNotifier) process(ctx context.Context, event core.InternalEvent) {
	if !n.enabled {
		return
	}
	if err := n.send(ctx, event); err != nil {
		n.logger.ErrorContext(ctx, "Failed to send Pushover notification", "error", err)
	}
}

func (n *PushoverNotifier) Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	if !n.enabled {
		n.logger.DebugContext(ctx, "Pushover token or user not set, skipping notification")
		return nil, nil
	}
	if action != "notify" {
		return nil, fmt.Errorf("unsupported action: %s", action)
	}
	event, ok := params["event"].(core.InternalEvent)
	if !ok {
		return nil, fmt.Errorf("missing or invalid event")
	}
	if err := n.send(ctx, event); err != nil {
		return nil, err
	}
	return map[string]string{"status": "delivered"}, nil
}

type pushoverConfigView struct {
	Token      core.Secret    `json:"token"`
	User       core.Secret    `json:"user"`
	Priorities map[string]int `json:"priorities,omitempty"`
	Subscribe  []string       `json:"subscribe,omitempty"`
	Enabled    bool           `json:"enabled"`
}

func (n *PushoverNotifier) Config() any {
	return pushoverConfigView{
		Token:      n.token,
		User:       n.user,
		Priorities: n.priorities,
		Subscribe:  append([]string(nil), n.subscriptions...),
		Enabled:    n.enabled,
	}
}

func (n *PushoverNotifier) priority(t core.EventTypeName) int {
	if p, ok := n.priorities[string(t)]; ok {
		return p
	}
	if t == core.EventDeployFailed {
		return 1
	}
	return 0
}

func (n *PushoverNotifier) send(ctx context.Context, event core.InternalEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"token":    n.token.Value,
		"user":     n.user.Value,
		"message":  fmt.Sprintf("[%s] %s\nRepo: %s\n%s", event.Type, event.String, event.Repo, string(details)),
		"title":    "pipeline-agent Notification",
		"priority": n.priority(event.Type),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiURL, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushover API error: %d", resp.StatusCode)
	}

	n.logger.InfoContext(ctx, "Pushover notification delivered successfully")
	return nil
}
