package reconciler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/mywio/pipeline-agent/pkg/config"
	"github.com/mywio/pipeline-agent/pkg/core"
	"github.com/mywio/pipeline-agent/pkg/masking"
	"github.com/mywio/pipeline-agent/pkg/process"
	"golang.org/x/oauth2"
)

const removeTopic = "pipeline-agent-remove"

type Reconciler struct {
	cfg      config.Config
	client   *github.Client
	logger   *slog.Logger
	registry core.PluginRegistry
	stopCh   chan struct{}
	trigger  chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex // serializes reconcile passes
	started  bool

	compose        []string
	stdout, stderr io.Writer
}

func NewReconciler(cfg config.Config) *Reconciler {
	return &Reconciler{
		cfg:     cfg,
		stopCh:  make(chan struct{}),
		trigger: make(chan struct{}, 1),
		compose: []string{"docker", "compose"},
	}
}

// SetGitHubClient overrides the client built from the configured token.
func (r *Reconciler) SetGitHubClient(c *github.Client) {
	r.client = c
}

func (r *Reconciler) Name() string {
	return "reconciler"
}

func (r *Reconciler) Init(ctx context.Context, logger *slog.Logger, registry core.PluginRegistry) error {
	r.logger = logger
	r.registry = registry
	if r.client == nil {
		if r.cfg.Token == "" {
			return fmt.Errorf("missing GITHUB_TOKEN")
		}
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: r.cfg.Token})
		r.client = github.NewClient(oauth2.NewClient(ctx, ts))
	}

	if r.cfg.TargetDir == "" {
		r.cfg.TargetDir = "./stacks"
	}
	if r.cfg.Interval == 0 {
		r.cfg.Interval = 5 * time.Minute
	}

	for _, desc := range coreEventTypes() {
		if err := registry.RegisterEventType(desc); err != nil {
			logger.Debug("Event type already registered", "type", desc.Name)
		}
	}
	registry.Subscribe(string(core.EventReconcileNow), r.handleReconcileNow)

	return nil
}

func coreEventTypes() []core.EventTypeDesc {
	return []core.EventTypeDesc{
		{
			Name:        core.EventReconcileNow,
			Description: "Request an immediate full reconciliation",
			PayloadSpec: map[string]core.PayloadField{
				"force": {Type: "bool", Description: "Force even if locked", Required: false},
			},
		},
		{
			Name:        core.EventDeploySuccess,
			Description: "Stack deployed successfully",
			PayloadSpec: map[string]core.PayloadField{
				"duration": {Type: "time.Duration", Description: "Deploy time", Required: true},
			},
		},
		{
			Name:        core.EventDeployFailed,
			Description: "Stack deployment failed",
			PayloadSpec: map[string]core.PayloadField{
				"error": {Type: "string", Description: "Masked failure reason", Required: true},
			},
		},
	}
}

func (r *Reconciler) handleReconcileNow(ctx context.Context, event core.InternalEvent) {
	r.logger.Info("Reconcile requested", "source", event.Source)
	select {
	case r.trigger <- struct{}{}:
	default:
		// one pending request is enough
	}
}

func (r *Reconciler) Start(ctx context.Context) error {
	if r.started {
		return nil
	}
	r.started = true

	r.logger.Info("Starting Reconciler", "users", r.cfg.Users, "topic", r.cfg.Topic)
	ticker := time.NewTicker(r.cfg.Interval)

	go func() {
		defer ticker.Stop()
		// Run once immediately
		r.runReconcile(ctx)

		for {
			select {
			case <-ticker.C:
				r.runReconcile(ctx)
			case <-r.trigger:
				r.runReconcile(ctx)
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (r *Reconciler) Stop(ctx context.Context) error {
	if !r.started {
		return nil
	}
	close(r.stopCh)
	r.logger.Info("Waiting for reconciliation to finish...")

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Reconciler stopped gracefully")
	case <-ctx.Done():
		r.logger.Warn("Context cancelled while waiting for reconciler to stop")
		return ctx.Err()
	}

	return nil
}

func (r *Reconciler) runReconcile(ctx context.Context) {
	r.wg.Add(1)
	defer r.wg.Done()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconcile(ctx)
}

func (r *Reconciler) reconcile(ctx context.Context) {
	// Map Key: "Owner/RepoName"
	desiredState := make(map[string]*github.Repository)
	removalState := make(map[string]bool)

	for _, user := range r.cfg.Users {
		if user == "" {
			continue
		}

		queryDesired := fmt.Sprintf("user:%s topic:%s archived:false", user, r.cfg.Topic)
		r.fetchReposInto(ctx, queryDesired, desiredState)

		queryRemoveTopic := fmt.Sprintf("user:%s topic:%s", user, removeTopic)
		r.fetchRemovalInto(ctx, queryRemoveTopic, removalState)

		queryArchived := fmt.Sprintf("user:%s topic:%s archived:true", user, r.cfg.Topic)
		r.fetchRemovalInto(ctx, queryArchived, removalState)
	}

	r.logger.Info("State calculated", "desired", len(desiredState), "removal", len(removalState))

	r.processLocalState(ctx, desiredState, removalState)

	for fullName, repo := range desiredState {
		// Removal trumps desired.
		if removalState[fullName] {
			r.logger.Warn("Repo found in both Desired and Removal state, skipping deploy", "repo", fullName)
			continue
		}
		r.deploy(ctx, fullName, repo)
	}
}

func (r *Reconciler) search(ctx context.Context, query string) []*github.Repository {
	opts := &github.SearchOptions{ListOptions: github.ListOptions{PerPage: 100}}
	repos, _, err := r.client.Search.Repositories(ctx, query, opts)
	if err != nil {
		r.logger.Error("Search failed", "query", query, "error", err)
		return nil
	}
	return repos.Repositories
}

func (r *Reconciler) fetchReposInto(ctx context.Context, query string, target map[string]*github.Repository) {
	for _, repo := range r.search(ctx, query) {
		target[fullNameOf(repo)] = repo
	}
}

func (r *Reconciler) fetchRemovalInto(ctx context.Context, query string, target map[string]bool) {
	for _, repo := range r.search(ctx, query) {
		target[fullNameOf(repo)] = true
	}
}

func fullNameOf(repo *github.Repository) string {
	return fmt.Sprintf("%s/%s", repo.GetOwner().GetLogin(), repo.GetName())
}

func (r *Reconciler) processLocalState(ctx context.Context, desiredState map[string]*github.Repository, removalState map[string]bool) {
	// Walk TARGET_DIR/OWNER/REPO
	entries, err := os.ReadDir(r.cfg.TargetDir)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Error("Failed to read target dir", "path", r.cfg.TargetDir, "error", err)
		}
		return
	}

	for _, userDir := range entries {
		if !userDir.IsDir() {
			continue
		}

		userPath := filepath.Join(r.cfg.TargetDir, userDir.Name())
		repos, _ := os.ReadDir(userPath)

		for _, repoDir := range repos {
			if !repoDir.IsDir() {
				continue
			}

			currentKey := fmt.Sprintf("%s/%s", userDir.Name(), repoDir.Name())
			fullPath := filepath.Join(userPath, repoDir.Name())

			if removalState[currentKey] {
				r.logger.Info("Explicit removal detected", "service", currentKey)
				r.pruneService(ctx, fullPath)
			} else if desiredState[currentKey] == nil {
				// Exists locally but is neither desired nor marked for removal. Never delete.
				r.logger.Warn("Sync Divergence: Local service exists but not found in Desired State. Skipping removal.", "service", currentKey)
			}
		}
	}
}

func (r *Reconciler) pruneService(ctx context.Context, path string) {
	if r.cfg.DryRun {
		r.logger.Info("DryRun: Would remove service", "path", path)
		return
	}

	runner := r.newRunner(r.registry.Masker(), r.logger)
	if err := runner.Run(ctx, r.composeCommand(path, nil, "down", "--remove-orphans")); err != nil {
		r.logger.Warn("compose down failed", "path", path, "error", err)
	}

	if err := os.RemoveAll(path); err != nil {
		r.logger.Error("Failed to remove service folder", "path", path, "error", err)
	}
}

func (r *Reconciler) newRunner(m masking.Masker, logger *slog.Logger) *process.Runner {
	return &process.Runner{Masker: m, Logger: logger, Stdout: r.stdout, Stderr: r.stderr}
}

func (r *Reconciler) composeCommand(dir string, env []string, args ...string) process.Command {
	full := append(append([]string{}, r.compose[1:]...), args...)
	return process.Command{Name: r.compose[0], Args: full, Dir: dir, Env: env}
}
