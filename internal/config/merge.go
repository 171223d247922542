package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Top-level YAML config key names used for shallow merge.
const (
	keyTIM     = "tim"
	keyStore   = "store"
	keyLogging = "logging"
	keyOutput  = "output"
)

// knownTopLevelKeys lists the YAML keys that correspond to exported Config fields.
// Keys not in this list are silently ignored during merge.
//
//nolint:gochecknoglobals // Compile-time constant lookup table.
var knownTopLevelKeys = map[string]bool{
	keyTIM:     true,
	keyStore:   true,
	keyLogging: true,
	keyOutput:  true,
}

// ShallowMergeYAML loads a YAML file and merges its top-level keys onto
// the target Config. Keys present in the overlay replace entire sections
// in the target; fields the overlay section omits take their built-in
// defaults. Keys absent in the overlay are left unchanged.
//
// Environment overrides are not reapplied; callers that want them to win
// call ApplyEnv afterwards.
func ShallowMergeYAML(target *Config, overlayPath string) error {
	if target == nil {
		return errors.New("nil target *Config in ShallowMergeYAML")
	}

	data, err := os.ReadFile(overlayPath)
	if err != nil {
		return fmt.Errorf("reading overlay file %s: %w", overlayPath, err)
	}

	var overlay map[string]interface{}
	if err = yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing overlay YAML from %s: %w", overlayPath, err)
	}

	// Empty or comment-only file: nothing to merge.
	if len(overlay) == 0 {
		return nil
	}

	defaults := Defaults(target.homeDir())
	for key, value := range overlay {
		if !knownTopLevelKeys[key] {
			continue
		}

		// Re-marshal the single section so it can be decoded onto the
		// strongly-typed target field.
		sectionBytes, marshalErr := yaml.Marshal(value)
		if marshalErr != nil {
			return fmt.Errorf("re-marshalling overlay section %q: %w", key, marshalErr)
		}

		if err = unmarshalSection(target, defaults, key, sectionBytes); err != nil {
			return fmt.Errorf("applying overlay section %q: %w", key, err)
		}
	}

	return nil
}

// homeDir returns the directory holding c's config file.
func (c *Config) homeDir() string {
	if c.configPath != "" {
		return filepath.Dir(c.configPath)
	}
	if home, err := GetConfigDir(); err == nil {
		return home
	}
	return "."
}

// unmarshalSection decodes one section onto that section's defaults and
// replaces the matching field of target wholesale.
func unmarshalSection(target, defaults *Config, key string, data []byte) error {
	switch key {
	case keyTIM:
		v := defaults.TIM
		if err := yaml.Unmarshal(data, &v); err != nil {
			return err
		}
		target.TIM = v
		return nil
	case keyStore:
		v := defaults.Store
		if err := yaml.Unmarshal(data, &v); err != nil {
			return err
		}
		target.Store = v
		return nil
	case keyLogging:
		v := defaults.Logging
		if err := yaml.Unmarshal(data, &v); err != nil {
			return err
		}
		target.Logging = v
		return nil
	case keyOutput:
		v := defaults.Output
		if err := yaml.Unmarshal(data, &v); err != nil {
			return err
		}
		target.Output = v
		return nil
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
}
