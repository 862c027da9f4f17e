package secretmanager

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	gsm "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/mywio/pipeline-agent/pkg/core"
)

const Name = "google_secret_manager"

// accessor is the subset of the Secret Manager client the plugin uses.
type accessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

type SecretManagerPlugin struct {
	logger    *slog.Logger
	projectID string
	secrets   map[string]string // env key -> secret name template
	client    accessor
	initErr   error

	newClient func(ctx context.Context) (accessor, error)
}

type secretManagerConfig struct {
	ProjectID string            `yaml:"project_id"`
	Secrets   map[string]string `yaml:"secrets"`
}

func New() core.Plugin {
	return &SecretManagerPlugin{newClient: defaultClient}
}

func defaultClient(ctx context.Context) (accessor, error) {
	c, err := gsm.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (p *SecretManagerPlugin) Name() string {
	return Name
}

func (p *SecretManagerPlugin) Description() string {
	return "Fetches deployment secrets from Google Cloud Secret Manager"
}

func (p *SecretManagerPlugin) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	p.logger = logger
	if registry != nil {
		if section, ok := registry.GetConfig()[Name]; ok {
			var cfg secretManagerConfig
			if err := core.DecodeConfigSection(section, &cfg); err != nil {
				p.logger.WarnContext(ctx, "Invalid google_secret_manager config", "error", err)
			}
			p.projectID = strings.TrimSpace(cfg.ProjectID)
			p.secrets = cfg.Secrets
		}
	}

	if p.projectID == "" || len(p.secrets) == 0 {
		p.logger.WarnContext(ctx, "google_secret_manager has no project_id or secrets configured, disabled")
		return nil
	}

	if p.newClient == nil {
		p.newClient = defaultClient
	}
	client, err := p.newClient(ctx)
	if err != nil {
		// Missing credentials should not take the agent down.
		p.initErr = err
		p.logger.ErrorContext(ctx, "Failed to create Secret Manager client", "error", err)
		return nil
	}
	p.client = client
	p.logger.InfoContext(ctx, "Secret Manager Plugin Initialized", "project_id", p.projectID, "secrets", len(p.secrets))
	return nil
}

func (p *SecretManagerPlugin) Start(ctx context.Context) error {
	return nil
}

func (p *SecretManagerPlugin) Stop(ctx context.Context) error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

func (p *SecretManagerPlugin) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilitySecrets}
}

func (p *SecretManagerPlugin) Status() core.ServiceStatus {
	switch {
	case p.initErr != nil:
		return core.StatusUnhealthy
	case p.client == nil:
		return core.StatusDegraded
	default:
		return core.StatusHealthy
	}
}

type secretManagerConfigView struct {
	ProjectID string            `json:"project_id,omitempty"`
	Secrets   map[string]string `json:"secrets,omitempty"`
}

// Config exposes secret names only, never their values.
func (p *SecretManagerPlugin) Config() any {
	return secretManagerConfigView{ProjectID: p.projectID, Secrets: p.secrets}
}

func (p *SecretManagerPlugin) Execute(ctx context.Context, action string, params map[string]interface{}) (interface{}, error) {
	if action != "get_secrets" {
		return nil, fmt.Errorf("unknown action: %s", action)
	}
	if p.client == nil {
		if p.initErr != nil {
			return nil, fmt.Errorf("secret manager unavailable: %w", p.initErr)
		}
		return map[string]string{}, nil
	}

	owner, _ := params["owner"].(string)
	repo, _ := params["repo"].(string)

	out := make(map[string]string, len(p.secrets))
	for _, key := range slices.Sorted(maps.Keys(p.secrets)) {
		name := p.resourceName(p.secrets[key], owner, repo)
		resp, err := p.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
		if err != nil {
			return nil, fmt.Errorf("access %s: %w", name, err)
		}
		out[key] = string(resp.GetPayload().GetData())
	}
	return out, nil
}

// resourceName expands {owner} and {repo} and qualifies short names with the
// project and the latest version.
func (p *SecretManagerPlugin) resourceName(template, owner, repo string) string {
	name := strings.NewReplacer("{owner}", owner, "{repo}", repo).Replace(strings.TrimSpace(template))
	if !strings.HasPrefix(name, "projects/") {
		name = fmt.Sprintf("projects/%s/secrets/%s", p.projectID, name)
	}
	if !strings.Contains(name, "/versions/") {
		name += "/versions/latest"
	}
	return name
}
