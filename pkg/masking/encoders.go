package masking

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"encoding/xml"
	"net/url"
	"slices"
	"strings"
)

// ValueEncoder derives another textual form of a literal secret that must be
// masked as well.
type ValueEncoder func(value string) string

var builtinEncoders = map[string]ValueEncoder{
	"base64":        Base64Encoder(0),
	"base64_shift1": Base64Encoder(1),
	"base64_shift2": Base64Encoder(2),
	"json":          JSONStringEscape,
	"uri":           URIDataEscape,
	"backslash":     BackslashEscape,
	"xml":           XMLDataEscape,
	"trim_quotes":   TrimDoubleQuotes,
}

// LookupEncoder returns the built-in encoder registered under name.
func LookupEncoder(name string) (ValueEncoder, bool) {
	enc, ok := builtinEncoders[strings.ToLower(strings.TrimSpace(name))]
	return enc, ok
}

// EncoderNames lists the built-in encoder names in sorted order.
func EncoderNames() []string {
	names := make([]string, 0, len(builtinEncoders))
	for name := range builtinEncoders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Base64Encoder returns an encoder for a value embedded in a larger base64
// blob at an offset of shift (mod 3) bytes. Only characters fully determined by
// the value's own bytes are kept, so the result matches regardless of what
// surrounds the value.
func Base64Encoder(shift int) ValueEncoder {
	shift = ((shift % 3) + 3) % 3
	return func(value string) string {
		if value == "" {
			return ""
		}
		data := make([]byte, shift, shift+len(value))
		data = append(data, value...)
		encoded := base64.RawStdEncoding.EncodeToString(data)

		// Leading characters that mix in the padding bytes.
		skip := 0
		switch shift {
		case 1:
			skip = 2
		case 2:
			skip = 3
		}
		// Trailing characters that would mix in the bytes after the value.
		keep := len(data) / 3 * 4
		switch len(data) % 3 {
		case 1:
			keep++
		case 2:
			keep += 2
		}
		if keep <= skip {
			return ""
		}
		return encoded[skip:keep]
	}
}

// JSONStringEscape escapes value the way it appears inside a JSON string.
func JSONStringEscape(value string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return ""
	}
	out := strings.TrimSuffix(buf.String(), "\n")
	return strings.TrimSuffix(strings.TrimPrefix(out, `"`), `"`)
}

// URIDataEscape percent-encodes value as a URI data component.
func URIDataEscape(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}

var backslashReplacer = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// BackslashEscape escapes backslashes and double quotes.
func BackslashEscape(value string) string {
	return backslashReplacer.Replace(value)
}

// XMLDataEscape escapes value as XML character data.
func XMLDataEscape(value string) string {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(value)); err != nil {
		return ""
	}
	return buf.String()
}

// TrimDoubleQuotes strips one pair of surrounding double quotes.
func TrimDoubleQuotes(value string) string {
	if len(value) >= 2 && strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
		return value[1 : len(value)-1]
	}
	return value
}
