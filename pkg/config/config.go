// Package config provides YAML-based configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// Load loads configuration from a YAML file with environment variable expansion
// and validates it when target implements Validator.
func Load[T any](filename string, target *T) error {
	if err := decode(filename, target); err != nil {
		return err
	}
	if validator, ok := any(target).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}
	return nil
}

// LoadOptional decodes filename over target when the file exists and leaves
// target untouched when it does not. It does not validate: callers apply
// their overrides first and validate the result.
func LoadOptional[T any](filename string, target *T) (bool, error) {
	if filename == "" {
		return false, nil
	}
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := decode(filename, target); err != nil {
		return false, err
	}
	return true, nil
}

func decode[T any](filename string, target *T) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	expandedData := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expandedData), target); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}
	return nil
}
