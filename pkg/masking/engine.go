package masking

import (
	"maps"
	"slices"
	"strings"
	"sync"
)

// RedactionToken replaces every masked span regardless of its length.
const RedactionToken = "***"

// Masker redacts registered secrets from text.
type Masker interface {
	Mask(input string) string
}

// Engine owns the set of active secrets and the minimum secret length. It is
// safe for concurrent use.
type Engine struct {
	mu        sync.RWMutex
	secrets   map[secretKey]Secret
	encoders  []ValueEncoder
	minLength int
}

// NewEngine returns an empty engine.
func NewEngine() *Engine {
	return &Engine{
		secrets: make(map[secretKey]Secret),
	}
}

// AddValue registers a literal secret and derives an encoded secret for every
// registered encoder. Empty and already registered values are ignored.
func (e *Engine) AddValue(value string) {
	if value == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	lit := NewLiteralSecret(value)
	if _, exists := e.secrets[lit.key()]; exists {
		return
	}
	e.secrets[lit.key()] = lit
	for _, enc := range e.encoders {
		e.addEncodedLocked(value, enc)
	}
}

// AddRegex registers a pattern secret. The pattern must be non-empty and compile.
func (e *Engine) AddRegex(pattern string) error {
	ps, err := NewPatternSecret(pattern)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.secrets[ps.key()]; !exists {
		e.secrets[ps.key()] = ps
	}
	return nil
}

// AddValueEncoder registers enc and applies it to every literal already
// registered. Literals added later are encoded on registration.
func (e *Engine) AddValueEncoder(enc ValueEncoder) {
	if enc == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.encoders = append(e.encoders, enc)
	for _, s := range slices.Collect(maps.Values(e.secrets)) {
		if lit, ok := s.(LiteralSecret); ok {
			e.addEncodedLocked(lit.Value, enc)
		}
	}
}

func (e *Engine) addEncodedLocked(value string, enc ValueEncoder) {
	es := NewEncodedSecret(value, enc)
	if es.EncodedValue == "" || es.EncodedValue == value {
		return
	}
	if _, exists := e.secrets[es.key()]; !exists {
		e.secrets[es.key()] = es
	}
}

// MinLength returns the length below which literal secrets are not scanned.
func (e *Engine) MinLength() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.minLength
}

// SetMinLength sets the minimum scanned literal length.
func (e *Engine) SetMinLength(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.minLength = n
}

// RemoveShortSecrets drops every literal shorter than MinLength together with
// the encoded secrets derived from it. Pattern secrets are kept.
func (e *Engine) RemoveShortSecrets() {
	e.mu.Lock()
	defer e.mu.Unlock()

	maps.DeleteFunc(e.secrets, func(_ secretKey, s Secret) bool {
		switch v := s.(type) {
		case LiteralSecret:
			return textLength(v.Value) < e.minLength
		case EncodedSecret:
			return textLength(v.SourceValue) < e.minLength
		}
		return false
	})
}

// Len returns the number of registered secrets, derived ones included.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.secrets)
}

// Clone returns an engine with a copy of the secrets, encoders and minimum
// length. Later changes to either engine are not visible to the other.
func (e *Engine) Clone() *Engine {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return &Engine{
		secrets:   maps.Clone(e.secrets),
		encoders:  slices.Clone(e.encoders),
		minLength: e.minLength,
	}
}

// Mask replaces every occurrence of every eligible secret with RedactionToken.
// Overlapping or touching matches collapse into a single token. Input without
// matches is returned unchanged.
func (e *Engine) Mask(input string) string {
	if input == "" {
		return input
	}

	e.mu.RLock()
	var positions []ReplacementPosition
	for _, s := range e.secrets {
		if !e.eligibleLocked(s) {
			continue
		}
		for p := range s.Positions(input) {
			positions = append(positions, p)
		}
	}
	e.mu.RUnlock()

	if len(positions) == 0 {
		return input
	}
	return redact(input, mergePositions(positions))
}

func (e *Engine) eligibleLocked(s Secret) bool {
	switch v := s.(type) {
	case LiteralSecret:
		return textLength(v.Value) >= e.minLength
	case EncodedSecret:
		return textLength(v.EncodedValue) >= e.minLength
	}
	return true
}

func redact(input string, spans []ReplacementPosition) string {
	var b strings.Builder
	b.Grow(len(input))
	last := 0
	for _, span := range spans {
		b.WriteString(input[last:span.Start])
		b.WriteString(RedactionToken)
		last = span.End()
	}
	b.WriteString(input[last:])
	return b.String()
}
