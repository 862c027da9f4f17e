package envforwarder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mywio/pipeline-agent/pkg/core"
)

const Name = "env_forwarder"

// EventMissingKey is published when an allowlisted variable is not set.
const EventMissingKey core.EventTypeName = "notify_env_forwarder_missing"

type EnvForwarderPlugin struct {
	logger   *slog.Logger
	registry core.PluginRegistry
	keys     []string
	prefixes []string
	enabled  bool
}

type envForwarderConfig struct {
	Keys     []string `yaml:"keys"`
	Prefixes []string `yaml:"prefixes"`
}

func New() core.Plugin {
	return &EnvForwarderPlugin{}
}

func (p *EnvForwarderPlugin) Name() string {
	return Name
}

func (p *EnvForwarderPlugin) Description() string {
	return "Forwards allowlisted environment variables into docker compose execution"
}

func (p *EnvForwarderPlugin) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	p.logger = logger
	p.registry = registry

	if registry != nil {
		if section, ok := registry.GetConfig()[Name]; ok {
			p.keys = core.NormalizePatterns(listValue(section["keys"]))
			p.prefixes = core.NormalizePatterns(listValue(section["prefixes"]))
		}
	}

	if len(p.keys) == 0 && len(p.prefixes) == 0 {
		p.logger.WarnContext(ctx, "env_forwarder has no keys or prefixes configured, disabled")
		p.enabled = false
		return nil
	}

	if registry != nil {
		if err := registry.RegisterEventType(core.EventTypeDesc{
			Name:        EventMissingKey,
			Description: "An allowlisted environment variable is not set",
			PayloadSpec: map[string]core.PayloadField{
				"key": {Type: "string", Description: "Variable name", Required: true},
			},
		}); err != nil {
			p.logger.DebugContext(ctx, "Event type already registered", "type", EventMissingKey)
		}
	}

	p.enabled = true
	p.logger.InfoContext(ctx, "env_forwarder initialized", "keys", len(p.keys), "prefixes", len(p.prefixes))
	return nil
}

// listValue accepts the YAML list form and the comma separated env form.
func listValue(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		return strings.Split(t, ",")
	default:
		return []string{fmt.Sprint(t)}
	}
}

func (p *EnvForwarderPlugin) Start(ctx context.Context) error {
	return nil
}

func (p *EnvForwarderPlugin) Stop(ctx context.Context) error {
	return nil
}

func (p *EnvForwarderPlugin) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilitySecrets}
}

func (p *EnvForwarderPlugin) Status() core.ServiceStatus {
	if p.enabled {
		return core.StatusHealthy
	}
	return core.StatusDegraded
}

type envForwarderConfigView struct {
	Keys     []string `json:"keys,omitempty"`
	Prefixes []string `json:"prefixes,omitempty"`
	Enabled  bool     `json:"enabled"`
}

func (p *EnvForwarderPlugin) Config() any {
	return envForwarderConfigView{Keys: p.keys, Prefixes: p.prefixes, Enabled: p.enabled}
}

func (p *EnvForwarderPlugin) Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	if action != "get_secrets" {
		return nil, fmt.Errorf("unknown action: %s", action)
	}
	if !p.enabled {
		return map[string]string{}, nil
	}

	secrets := make(map[string]string)

	for _, key := range p.keys {
		value, ok := os.LookupEnv(key)
		if !ok {
			p.logger.WarnContext(ctx, "Env var not set", "key", key)
			if p.registry != nil {
				p.registry.Publish(ctx, core.InternalEvent{
					Type:    EventMissingKey,
					Source:  Name,
					Repo:    repoOf(params),
					String:  fmt.Sprintf("Env var %s not set", key),
					Details: map[string]interface{}{"key": key},
				})
			}
			continue
		}
		secrets[key] = value
	}

	if len(p.prefixes) > 0 {
		for _, env := range os.Environ() {
			key, value, ok := strings.Cut(env, "=")
			if !ok {
				continue
			}
			for _, prefix := range p.prefixes {
				if strings.HasPrefix(key, prefix) {
					if _, exists := secrets[key]; !exists {
						secrets[key] = value
					}
					break
				}
			}
		}
	}

	return secrets, nil
}

func repoOf(params map[string]interface{}) string {
	owner, _ := params["owner"].(string)
	repo, _ := params["repo"].(string)
	if owner == "" || repo == "" {
		return ""
	}
	return owner + "/" + repo
}
