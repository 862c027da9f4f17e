package secretmanager

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/mywio/pipeline-agent/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccessor struct {
	values    map[string]string
	requested []string
	closed    bool
}

func (f *fakeAccessor) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.requested = append(f.requested, req.GetName())
	v, ok := f.values[req.GetName()]
	if !ok {
		return nil, errors.New("not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.GetName(),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(v)},
	}, nil
}

func (f *fakeAccessor) Close() error {
	f.closed = true
	return nil
}

func newPlugin(t *testing.T, fake *fakeAccessor, section map[string]any) *SecretManagerPlugin {
	t.Helper()
	mgr := core.NewModuleManager(slog.New(slog.NewTextHandler(io.Discard, nil)))
	mgr.SetConfig(map[string]map[string]any{Name: section})

	p := &SecretManagerPlugin{newClient: func(ctx context.Context) (accessor, error) {
		if fake == nil {
			return nil, errors.New("no credentials")
		}
		return fake, nil
	}}
	require.NoError(t, p.Init(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)), mgr))
	return p
}

func TestSecretManager_GetSecrets(t *testing.T) {
	fake := &fakeAccessor{values: map[string]string{
		"projects/demo/secrets/acme-app-db/versions/latest": "db-value",
		"projects/other/secrets/shared/versions/3":          "shared-value",
	}}
	p := newPlugin(t, fake, map[string]any{
		"project_id": "demo",
		"secrets": map[string]any{
			"DB_PASSWORD": "{owner}-{repo}-db",
			"SHARED":      "projects/other/secrets/shared/versions/3",
		},
	})
	assert.Equal(t, core.StatusHealthy, p.Status())

	res, err := p.Execute(context.Background(), "get_secrets", map[string]interface{}{"owner": "acme", "repo": "app"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"DB_PASSWORD": "db-value", "SHARED": "shared-value"}, res)
	assert.Equal(t, []string{
		"projects/demo/secrets/acme-app-db/versions/latest",
		"projects/other/secrets/shared/versions/3",
	}, fake.requested)

	require.NoError(t, p.Stop(context.Background()))
	assert.True(t, fake.closed)
}

func TestSecretManager_AccessErrorAborts(t *testing.T) {
	p := newPlugin(t, &fakeAccessor{}, map[string]any{
		"project_id": "demo",
		"secrets":    map[string]any{"MISSING": "nope"},
	})

	_, err := p.Execute(context.Background(), "get_secrets", map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "projects/demo/secrets/nope/versions/latest")
}

func TestSecretManager_ClientFailureIsUnhealthy(t *testing.T) {
	p := newPlugin(t, nil, map[string]any{
		"project_id": "demo",
		"secrets":    map[string]any{"A": "a"},
	})
	assert.Equal(t, core.StatusUnhealthy, p.Status())

	_, err := p.Execute(context.Background(), "get_secrets", nil)
	assert.ErrorContains(t, err, "no credentials")
}

func TestSecretManager_DisabledWithoutConfig(t *testing.T) {
	p := newPlugin(t, &fakeAccessor{}, map[string]any{"project_id": ""})
	assert.Equal(t, core.StatusDegraded, p.Status())

	res, err := p.Execute(context.Background(), "get_secrets", nil)
	require.NoError(t, err)
	assert.Empty(t, res)

	_, err = p.Execute(context.Background(), "other", nil)
	assert.Error(t, err)
}
