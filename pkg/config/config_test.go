package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mywio/pipeline-agent/pkg/masking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_envtoken")
	t.Setenv("GITHUB_USERS", "alice, bob")
	t.Setenv("TOPIC_FILTER", "pipeline")
	t.Setenv("SYNC_INTERVAL", "")
	t.Setenv("PLUGINS", "env_forwarder, ,pushover")
	t.Setenv("MASK_MIN_SECRET_LENGTH", "4")
	t.Setenv("MASK_VALUES", "alpha-secret\nbeta-secret\n")
	t.Setenv("MASK_PATTERNS", "")
	t.Setenv("MASK_ENCODERS", "base64,json")

	cfg := LoadConfig()
	assert.Equal(t, "ghp_envtoken", cfg.Token)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Users)
	assert.Equal(t, 5*time.Minute, cfg.Interval)
	assert.Equal(t, []string{"env_forwarder", "pushover"}, cfg.Plugins)
	assert.Equal(t, 4, cfg.Masking.MinSecretLength)
	assert.Equal(t, []string{"alpha-secret", "beta-secret"}, cfg.Masking.Values)
	assert.Nil(t, cfg.Masking.Patterns)
	assert.Equal(t, []string{"base64", "json"}, cfg.Masking.Encoders)
}

func TestLoadConfig_MaskingKeepsCommas(t *testing.T) {
	t.Setenv("MASK_MIN_SECRET_LENGTH", "6")
	t.Setenv("MASK_VALUES", "hunter,22secret")
	t.Setenv("MASK_PATTERNS", `tok_\d{3,4}`)
	t.Setenv("MASK_ENCODERS", "none")

	cfg := LoadConfig()
	assert.Equal(t, []string{"hunter,22secret"}, cfg.Masking.Values)
	assert.Equal(t, []string{`tok_\d{3,4}`}, cfg.Masking.Patterns)

	engine := masking.NewAuditedEngine(nil)
	require.NoError(t, RegisterSecrets(cfg, ConfigMap{}, engine))
	assert.Equal(t, "id *** pw ***", engine.Mask("id tok_1234 pw hunter,22secret"))
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
core:
  token: file-token
  users: [alice]
  topic: pipeline
  interval: 30s
  http_addr: ":9090"
  plugins: [pushover]
masking:
  min_secret_length: 10
  values: ["file-secret", 123456]
  patterns: ['ghp_[A-Za-z0-9]{36}']
  encoders: [uri]
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cm, err := LoadConfigFile(path)
	require.NoError(t, err)

	cfg := LoadConfigFromConfigMap(cm)
	assert.Equal(t, "file-token", cfg.Token)
	assert.Equal(t, 30*time.Second, cfg.Interval)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, []string{"pushover"}, cfg.Plugins)
	assert.Equal(t, 10, cfg.Masking.MinSecretLength)
	assert.Equal(t, []string{"file-secret", "123456"}, cfg.Masking.Values)
	assert.Equal(t, []string{"ghp_[A-Za-z0-9]{36}"}, cfg.Masking.Patterns)
	assert.Equal(t, []string{"uri"}, cfg.Masking.Encoders)
}

func TestLoadConfigFile_Missing(t *testing.T) {
	cm, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cm)
}

func TestMergeConfig(t *testing.T) {
	primary := Config{
		Token:   "primary",
		Masking: MaskingConfig{Values: []string{"p"}},
	}
	fallback := Config{
		Token:    "fallback",
		Topic:    "pipeline",
		HTTPAddr: ":8080",
		Masking: MaskingConfig{
			MinSecretLength: 3,
			Values:          []string{"f"},
			Encoders:        []string{"json"},
		},
	}

	out := MergeConfig(primary, fallback)
	assert.Equal(t, "primary", out.Token)
	assert.Equal(t, "pipeline", out.Topic)
	assert.Equal(t, ":8080", out.HTTPAddr)
	assert.Equal(t, 3, out.Masking.MinSecretLength)
	assert.Equal(t, []string{"p", "f"}, out.Masking.Values)
	assert.Equal(t, []string{"json"}, out.Masking.Encoders)
}

func TestMergeConfigMap(t *testing.T) {
	fallback := ConfigMap{"core": {"token": "env", "topic": "t"}}
	primary := ConfigMap{"core": {"token": "file"}, "pushover": {"user": "u"}}

	out := MergeConfigMap(primary, fallback)
	assert.Equal(t, "file", out["core"]["token"])
	assert.Equal(t, "t", out["core"]["topic"])
	assert.Equal(t, "u", out["pushover"]["user"])
	assert.Equal(t, "env", fallback["core"]["token"])
}

func TestRegisterSecrets(t *testing.T) {
	engine := masking.NewAuditedEngine(nil)
	cfg := Config{
		Token: "ghp_coretoken",
		Masking: MaskingConfig{
			MinSecretLength: 4,
			Values:          []string{"abc", "database-password"},
			Patterns:        []string{`sk-[a-z]{4}`, `[broken`},
			Encoders:        []string{"base64", "not-an-encoder"},
		},
	}
	cm := ConfigMap{
		"webhook":         {"url": "https://hooks.example.com/T000/B000/XXXX"},
		"webhook_trigger": {"token": ""},
	}

	err := RegisterSecrets(cfg, cm, engine)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not-an-encoder")

	assert.Equal(t, 4, engine.MinLength())
	assert.Equal(t, "x *** x", engine.Mask("x database-password x"))
	assert.Equal(t, "x *** x", engine.Mask("x "+masking.Base64Encoder(0)("database-password")+" x"))
	assert.Equal(t, "*** ***", engine.Mask("ghp_coretoken sk-abcd"))
	assert.Equal(t, "post ***", engine.Mask("post https://hooks.example.com/T000/B000/XXXX"))
	assert.Equal(t, "abc", engine.Mask("abc"), "short values are purged")
}

func TestRegisterSecrets_DefaultsToAllEncoders(t *testing.T) {
	engine := masking.NewAuditedEngine(nil)
	cfg := Config{Masking: MaskingConfig{Values: []string{`pa"ss word`}}}

	require.NoError(t, RegisterSecrets(cfg, ConfigMap{}, engine))
	assert.Equal(t, "url=***", engine.Mask("url=pa%22ss%20word"))
	assert.Equal(t, `{"p":"***"}`, engine.Mask(`{"p":"pa\"ss word"}`))
}

func TestRegisterSecrets_NoEncoders(t *testing.T) {
	engine := masking.NewAuditedEngine(nil)
	cfg := Config{Masking: MaskingConfig{Values: []string{"plain-secret"}, Encoders: []string{"none"}}}

	require.NoError(t, RegisterSecrets(cfg, ConfigMap{}, engine))
	assert.Equal(t, 1, engine.Len())
}
