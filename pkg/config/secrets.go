package config

import (
	"fmt"
	"strings"

	"github.com/mywio/pipeline-agent/pkg/masking"
)

// SecretRegistrar is the registration surface of the agent-wide masker.
// *masking.AuditedEngine satisfies it.
type SecretRegistrar interface {
	AddValue(value, origin string)
	AddRegex(pattern, origin string)
	AddValueEncoder(enc masking.ValueEncoder, origin string)
	SetMinLength(n int)
	RemoveShortSecrets()
}

// credentialKeys are config entries that hold credentials regardless of which
// plugins end up loaded.
var credentialKeys = []struct{ section, key string }{
	{"pushover", "token"},
	{"pushover", "user"},
	{"webhook", "url"},
	{"webhook_trigger", "token"},
}

// RegisterSecrets performs the startup registration: encoders first so every
// value gets its derived forms, then the floor, then values and patterns.
// Unknown encoder names are reported in the returned error; everything else is
// still registered.
func RegisterSecrets(cfg Config, cfgMap ConfigMap, r SecretRegistrar) error {
	var unknown []string
	encoders := cfg.Masking.Encoders
	if encoders == nil {
		encoders = masking.EncoderNames()
	}
	for _, name := range encoders {
		if strings.EqualFold(name, "none") {
			continue
		}
		enc, ok := masking.LookupEncoder(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		r.AddValueEncoder(enc, "masking.encoders."+strings.ToLower(strings.TrimSpace(name)))
	}

	if cfg.Masking.MinSecretLength > 0 {
		r.SetMinLength(cfg.Masking.MinSecretLength)
	}

	for i, v := range cfg.Masking.Values {
		r.AddValue(v, fmt.Sprintf("masking.values[%d]", i))
	}
	for i, p := range cfg.Masking.Patterns {
		r.AddRegex(p, fmt.Sprintf("masking.patterns[%d]", i))
	}

	if cfg.Token != "" {
		r.AddValue(cfg.Token, "core.token")
	}
	for _, ck := range credentialKeys {
		if v, ok := getString(cfgMap[ck.section], ck.key); ok && v != "" {
			r.AddValue(v, ck.section+"."+ck.key)
		}
	}

	if cfg.Masking.MinSecretLength > 0 {
		r.RemoveShortSecrets()
	}

	if len(unknown) > 0 {
		return fmt.Errorf("unknown masking encoders: %s", strings.Join(unknown, ", "))
	}
	return nil
}
