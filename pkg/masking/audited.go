package masking

import (
	"errors"
	"sync"
	"sync/atomic"
)

// MinSecretLengthCeiling is the highest minimum secret length an AuditedEngine
// accepts. Literal secrets of this length or longer are always scanned.
const MinSecretLengthCeiling = 6

// Tracer receives diagnostic lines about registrations. It never receives
// secret content. *slog.Logger satisfies it.
type Tracer interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// AuditedEngine wraps an Engine with origin-tagged tracing and the minimum
// length ceiling. Registration problems are traced and skipped instead of
// being returned to the caller.
type AuditedEngine struct {
	inner *Engine

	mu    sync.RWMutex
	trace Tracer

	// encoderPanics counts recovered encoder panics. Clones share it with
	// the engine they came from, since they share its encoders too.
	encoderPanics *atomic.Int64
}

// NewAuditedEngine wraps inner. A nil inner gets a fresh Engine.
func NewAuditedEngine(inner *Engine) *AuditedEngine {
	if inner == nil {
		inner = NewEngine()
	}
	return &AuditedEngine{inner: inner, encoderPanics: new(atomic.Int64)}
}

// SetTrace attaches the diagnostic sink. A nil tracer disables tracing.
func (a *AuditedEngine) SetTrace(t Tracer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trace = t
}

func (a *AuditedEngine) tracer() Tracer {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.trace
}

func (a *AuditedEngine) info(msg string, args ...any) {
	if t := a.tracer(); t != nil {
		t.Info(msg, args...)
	}
}

func (a *AuditedEngine) warn(msg string, args ...any) {
	if t := a.tracer(); t != nil {
		t.Warn(msg, args...)
	}
}

// AddValue registers value as a literal secret.
func (a *AuditedEngine) AddValue(value, origin string) {
	if value == "" {
		a.warn("Skipping empty secret value", "origin", origin)
		return
	}
	a.info("Registering secret value", "origin", origin, "length", textLength(value))
	before := a.encoderPanics.Load()
	a.inner.AddValue(value)
	a.warnEncoderPanics(before, origin)
}

// AddRegex registers pattern as a pattern secret. Invalid patterns are traced
// and skipped.
func (a *AuditedEngine) AddRegex(pattern, origin string) {
	if pattern == "" {
		a.warn("Skipping empty secret pattern", "origin", origin)
		return
	}
	a.info("Registering secret pattern", "origin", origin, "length", len(pattern))
	if err := a.inner.AddRegex(pattern); err != nil {
		reason := "rejected"
		var verr *ValidationError
		if errors.As(err, &verr) {
			reason = verr.Reason
		}
		a.warn("Skipping invalid secret pattern", "origin", origin, "length", len(pattern), "reason", reason)
	}
}

// AddValueEncoder registers enc for every current and future literal secret.
func (a *AuditedEngine) AddValueEncoder(enc ValueEncoder, origin string) {
	if enc == nil {
		a.warn("Skipping nil value encoder", "origin", origin)
		return
	}
	a.info("Registering value encoder", "origin", origin)
	before := a.encoderPanics.Load()
	a.inner.AddValueEncoder(a.safeEncoder(enc))
	a.warnEncoderPanics(before, origin)
}

// safeEncoder turns a panic in enc into an empty encoding, which the engine
// skips. It cannot trace directly: the engine lock is held while encoding and
// the tracer may itself mask through this engine.
func (a *AuditedEngine) safeEncoder(enc ValueEncoder) ValueEncoder {
	panics := a.encoderPanics
	return func(value string) (encoded string) {
		defer func() {
			if recover() != nil {
				panics.Add(1)
				encoded = ""
			}
		}()
		return enc(value)
	}
}

func (a *AuditedEngine) warnEncoderPanics(before int64, origin string) {
	if n := a.encoderPanics.Load() - before; n > 0 {
		a.warn("Skipping encodings from failing value encoder", "origin", origin, "failures", n)
	}
}

// MinLength returns the effective minimum secret length.
func (a *AuditedEngine) MinLength() int {
	return a.inner.MinLength()
}

// SetMinLength sets the minimum secret length, clamped to MinSecretLengthCeiling.
func (a *AuditedEngine) SetMinLength(n int) {
	if n > MinSecretLengthCeiling {
		n = MinSecretLengthCeiling
	}
	a.inner.SetMinLength(n)
}

// RemoveShortSecrets delegates to the wrapped engine.
func (a *AuditedEngine) RemoveShortSecrets() {
	before := a.inner.Len()
	a.inner.RemoveShortSecrets()
	a.info("Removed short secrets", "min_length", a.inner.MinLength(), "removed", before-a.inner.Len())
}

// Len returns the number of registered secrets.
func (a *AuditedEngine) Len() int {
	return a.inner.Len()
}

// Clone wraps a clone of the inner engine. The tracer is not carried over.
func (a *AuditedEngine) Clone() *AuditedEngine {
	return &AuditedEngine{inner: a.inner.Clone(), encoderPanics: a.encoderPanics}
}

// Mask redacts registered secrets from input.
func (a *AuditedEngine) Mask(input string) string {
	return a.inner.Mask(input)
}
