package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/google/uuid"
	"github.com/mywio/pipeline-agent/pkg/core"
	"github.com/mywio/pipeline-agent/pkg/masking"
	"github.com/mywio/pipeline-agent/pkg/metrics"
)

// job is one deployment attempt. Secrets fetched for it live only in its own
// masker, which starts as a copy of the agent-wide one.
type job struct {
	id      string
	service string
	masker  *masking.AuditedEngine
	logger  *slog.Logger
}

func (r *Reconciler) newJob(service string) *job {
	id := uuid.NewString()
	m := r.registry.Masker().Clone()
	logger := slog.New(masking.NewHandler(r.logger.Handler(), m)).With("job_id", id, "service", service)
	m.SetTrace(logger.With("module", "masking"))
	return &job{id: id, service: service, masker: m, logger: logger}
}

func (r *Reconciler) deploy(ctx context.Context, fullName string, repo *github.Repository) {
	j := r.newJob(fullName)
	start := time.Now()

	changed, err := r.deployRepo(ctx, j, repo)
	if err == nil && !changed {
		return
	}

	elapsed := time.Since(start)
	metrics.DeploymentDuration.Observe(elapsed.Seconds())

	event := core.InternalEvent{
		Source: r.Name(),
		Repo:   fullName,
		JobID:  j.id,
	}
	if err != nil {
		metrics.DeploymentsTotal.WithLabelValues("failure").Inc()
		j.logger.Error("Deploy failed", "error", err)
		event.Type = core.EventDeployFailed
		event.String = fmt.Sprintf("Deploy of %s failed: %v", fullName, err)
		event.Details = map[string]interface{}{"error": err.Error()}
	} else {
		metrics.DeploymentsTotal.WithLabelValues("success").Inc()
		event.Type = core.EventDeploySuccess
		event.String = fmt.Sprintf("Deployed %s", fullName)
		event.Details = map[string]interface{}{"duration": elapsed.String()}
	}
	// The broker only knows the agent-wide secrets.
	r.registry.Publish(ctx, core.MaskEvent(event, j.masker))
}

// deployRepo reports whether a deployment was attempted.
func (r *Reconciler) deployRepo(ctx context.Context, j *job, repo *github.Repository) (bool, error) {
	owner, name := repo.GetOwner().GetLogin(), repo.GetName()

	fileContent, _, _, err := r.client.Repositories.GetContents(ctx, owner, name, "docker-compose.yml", nil)
	if err != nil {
		if isNotFound(err) {
			j.logger.Debug("No docker-compose.yml found, skipping")
			return false, nil
		}
		return true, fmt.Errorf("fetch docker-compose.yml: %w", err)
	}
	content, err := fileContent.GetContent()
	if err != nil {
		return true, fmt.Errorf("decode docker-compose.yml: %w", err)
	}

	// TARGET_DIR / OWNER / REPO / docker-compose.yml
	repoLocalPath := filepath.Join(r.cfg.TargetDir, owner, name)
	filePath := filepath.Join(repoLocalPath, "docker-compose.yml")

	existing, _ := os.ReadFile(filePath)
	if string(existing) == content {
		return false, nil
	}

	if r.cfg.DryRun {
		j.logger.Info("DryRun: Would update deployment")
		return false, nil
	}
	j.logger.Info("Updating deployment")

	if err := os.MkdirAll(repoLocalPath, 0o755); err != nil {
		return true, fmt.Errorf("create service dir: %w", err)
	}
	if err := os.WriteFile(filePath, []byte(content), 0o644); err != nil {
		return true, fmt.Errorf("write docker-compose.yml: %w", err)
	}

	for _, stage := range []string{"pre", "post"} {
		if err := r.fetchRepoHooks(ctx, j, owner, name, stage, repoLocalPath); err != nil {
			return true, fmt.Errorf("fetch %s hooks: %w", stage, err)
		}
	}

	secretEnv, err := r.collectSecrets(ctx, j, owner, name)
	if err != nil {
		return true, err
	}

	hookEnv := []string{
		fmt.Sprintf("REPO_NAME=%s", name),
		fmt.Sprintf("REPO_OWNER=%s", owner),
		fmt.Sprintf("TARGET_DIR=%s", repoLocalPath),
	}
	runner := r.newRunner(j.masker, j.logger)

	if r.cfg.GlobalHooksDir != "" {
		if err := runner.ExecuteHooks(ctx, filepath.Join(r.cfg.GlobalHooksDir, "pre"), hookEnv); err != nil {
			return true, fmt.Errorf("global pre-hook: %w", err)
		}
	}
	if err := runner.ExecuteHooks(ctx, filepath.Join(repoLocalPath, ".deploy", "pre"), hookEnv); err != nil {
		return true, fmt.Errorf("repo pre-hook: %w", err)
	}

	// Secrets go to the compose process only.
	if err := runner.Run(ctx, r.composeCommand(repoLocalPath, secretEnv, "up", "-d", "--remove-orphans")); err != nil {
		return true, fmt.Errorf("compose up: %w", err)
	}

	if err := runner.ExecuteHooks(ctx, filepath.Join(repoLocalPath, ".deploy", "post"), hookEnv); err != nil {
		j.logger.Warn("Repo post-hook failed", "error", err)
	}
	if r.cfg.GlobalHooksDir != "" {
		if err := runner.ExecuteHooks(ctx, filepath.Join(r.cfg.GlobalHooksDir, "post"), hookEnv); err != nil {
			j.logger.Warn("Global post-hook failed", "error", err)
		}
	}

	j.logger.Info("Deploy sequence complete")
	return true, nil
}

// collectSecrets asks every secrets plugin for the repo's values and registers
// each one with the job masker before it can reach any process.
func (r *Reconciler) collectSecrets(ctx context.Context, j *job, owner, name string) ([]string, error) {
	var env []string
	for _, p := range r.registry.GetPluginsWithCapability(core.CapabilitySecrets) {
		res, err := p.Execute(ctx, "get_secrets", map[string]interface{}{
			"owner": owner,
			"repo":  name,
		})
		if err != nil {
			return nil, fmt.Errorf("secrets from %s: %w", p.Name(), err)
		}

		secrets, ok := res.(map[string]string)
		if !ok {
			j.logger.Warn("Secrets plugin returned unexpected result", "plugin", p.Name(), "type", fmt.Sprintf("%T", res))
			continue
		}
		for _, key := range slices.Sorted(maps.Keys(secrets)) {
			j.masker.AddValue(secrets[key], fmt.Sprintf("plugin.%s.%s", p.Name(), key))
			env = append(env, fmt.Sprintf("%s=%s", key, secrets[key]))
		}
	}
	return env, nil
}

// fetchRepoHooks downloads all scripts from .deploy/{stage} to the local repo dir
func (r *Reconciler) fetchRepoHooks(ctx context.Context, j *job, owner, repo, stage, localDir string) error {
	path := fmt.Sprintf(".deploy/%s", stage)
	_, dirContent, _, err := r.client.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}

	hooksDir := filepath.Join(localDir, ".deploy", stage)
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		return err
	}

	for _, fileMeta := range dirContent {
		if fileMeta.GetType() != "file" || !strings.HasSuffix(fileMeta.GetName(), ".sh") {
			continue
		}

		fileContent, _, _, err := r.client.Repositories.GetContents(ctx, owner, repo, fileMeta.GetPath(), nil)
		if err != nil {
			j.logger.Error("Failed to fetch hook content", "file", fileMeta.GetName(), "error", err)
			continue
		}
		decoded, err := fileContent.GetContent()
		if err != nil {
			continue
		}

		if err := os.WriteFile(filepath.Join(hooksDir, fileMeta.GetName()), []byte(decoded), 0o755); err != nil {
			return err
		}
	}
	return nil
}

func isNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}

