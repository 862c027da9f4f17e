package core

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// DecodeConfigSection decodes a config section into a struct with yaml tags.
// It is safe to call with a nil or empty section. Errors never quote values,
// since sections routinely hold credentials.
func DecodeConfigSection(section map[string]any, out any) error {
	if len(section) == 0 {
		return nil
	}
	data, err := yaml.Marshal(section)
	if err != nil {
		return fmt.Errorf("encode config section: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("decode config section: %d field(s) have the wrong type", len(typeErr.Errors))
		}
		return fmt.Errorf("decode config section: %w", err)
	}
	return nil
}
