package masking

import (
	"iter"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Secret is a registered value or pattern that must never appear verbatim in
// emitted text.
type Secret interface {
	// Positions yields every match span of the secret in input. The sequence is
	// lazy and restartable; each call scans input from the beginning.
	Positions(input string) iter.Seq[ReplacementPosition]

	// key identifies the secret for deduplication inside an Engine.
	key() secretKey
}

type secretKind uint8

const (
	kindLiteral secretKind = iota
	kindPattern
	kindEncoded
)

type secretKey struct {
	kind  secretKind
	value string
	// source is the literal an encoded secret was derived from.
	source string
}

// LiteralSecret matches an exact, case-sensitive value.
type LiteralSecret struct {
	Value string
}

// NewLiteralSecret wraps value as a LiteralSecret.
func NewLiteralSecret(value string) LiteralSecret {
	return LiteralSecret{Value: value}
}

func (s LiteralSecret) Positions(input string) iter.Seq[ReplacementPosition] {
	return literalPositions(input, s.Value)
}

func (s LiteralSecret) key() secretKey {
	return secretKey{kind: kindLiteral, value: s.Value}
}

// PatternSecret matches a regular expression. Two pattern secrets with the same
// pattern text are the same secret.
type PatternSecret struct {
	Pattern string
	re      *regexp.Regexp
}

// NewPatternSecret compiles pattern. It returns a *ValidationError when the
// pattern is empty or does not compile.
func NewPatternSecret(pattern string) (*PatternSecret, error) {
	if pattern == "" {
		return nil, &ValidationError{Field: "pattern", Reason: "must not be empty"}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &ValidationError{Field: "pattern", Reason: "does not compile", Err: err}
	}
	return &PatternSecret{Pattern: pattern, re: re}, nil
}

func (s *PatternSecret) Positions(input string) iter.Seq[ReplacementPosition] {
	return func(yield func(ReplacementPosition) bool) {
		for start := 0; start < len(input); {
			loc := s.re.FindStringIndex(input[start:])
			if loc == nil {
				return
			}
			at := start + loc[0]
			if loc[1] > loc[0] {
				if !yield(ReplacementPosition{Start: at, Length: loc[1] - loc[0]}) {
					return
				}
			}
			start = nextRune(input, at)
		}
	}
}

func (s *PatternSecret) key() secretKey {
	return secretKey{kind: kindPattern, value: s.Pattern}
}

// EncodedSecret is a literal derived from another literal by a ValueEncoder.
// EncodedValue is computed once, when the secret is created.
type EncodedSecret struct {
	SourceValue  string
	EncodedValue string
}

// NewEncodedSecret applies enc to source.
func NewEncodedSecret(source string, enc ValueEncoder) EncodedSecret {
	return EncodedSecret{SourceValue: source, EncodedValue: enc(source)}
}

func (s EncodedSecret) Positions(input string) iter.Seq[ReplacementPosition] {
	return literalPositions(input, s.EncodedValue)
}

func (s EncodedSecret) key() secretKey {
	return secretKey{kind: kindEncoded, value: s.EncodedValue, source: s.SourceValue}
}

// literalPositions scans for value and resumes one character past the start of
// each match, so occurrences overlapping themselves are all reported.
func literalPositions(input, value string) iter.Seq[ReplacementPosition] {
	return func(yield func(ReplacementPosition) bool) {
		if value == "" {
			return
		}
		for start := 0; start < len(input); {
			idx := strings.Index(input[start:], value)
			if idx < 0 {
				return
			}
			at := start + idx
			if !yield(ReplacementPosition{Start: at, Length: len(value)}) {
				return
			}
			start = nextRune(input, at)
		}
	}
}

// nextRune returns the offset of the character following the one at i.
func nextRune(s string, i int) int {
	_, size := utf8.DecodeRuneInString(s[i:])
	return i + size
}

// textLength is the length used against the minimum secret length.
func textLength(s string) int {
	return utf8.RuneCountInString(s)
}
