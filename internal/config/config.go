// Package config loads travelcarbon settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backend names.
const (
	BackendFile  = "file"
	BackendMongo = "mongo"
)

// Output format names.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// Defaults applied by New.
const (
	DefaultTIMBaseURL    = "https://travelimpactmodel.googleapis.com/v1"
	DefaultTIMTimeout    = 10 * time.Second
	DefaultMongoDatabase = "travelcarbon"
	DefaultLogLevel      = "info"
	configFileName       = "config.yaml"
	dataFileName         = "travelcarbon.json"
	outputTypeFile       = "file"
)

// Environment variables that override file settings.
const (
	EnvTIMAPIKey    = "TIM_API_KEY"
	EnvTIMBaseURL   = "TIM_BASE_URL"
	EnvHome         = "TRAVELCARBON_HOME"
	EnvStoreBackend = "TRAVELCARBON_STORE_BACKEND"
	EnvMongoURI     = "TRAVELCARBON_MONGO_URI"
	EnvLogLevel     = "TRAVELCARBON_LOG_LEVEL"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full travelcarbon configuration.
type Config struct {
	TIM     TIMConfig     `yaml:"tim"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
	Output  OutputConfig  `yaml:"output"`

	configPath string
}

// TIMConfig configures the Travel Impact Model client.
type TIMConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key,omitempty"`
	Timeout time.Duration `yaml:"timeout"`
	// MinInterval spaces consecutive model requests; zero disables it.
	MinInterval time.Duration `yaml:"min_interval,omitempty"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	MongoURI      string `yaml:"mongo_uri,omitempty"`
	MongoDatabase string `yaml:"mongo_database"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// OutputConfig configures CLI rendering.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
}

// Defaults returns a Config populated with built-in defaults rooted at home.
func Defaults(home string) *Config {
	return &Config{
		TIM: TIMConfig{
			BaseURL: DefaultTIMBaseURL,
			Timeout: DefaultTIMTimeout,
		},
		Store: StoreConfig{
			Backend:       BackendFile,
			Path:          filepath.Join(home, "data", dataFileName),
			MongoDatabase: DefaultMongoDatabase,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: "console",
		},
		Output: OutputConfig{
			DefaultFormat: FormatTable,
		},
		configPath: filepath.Join(home, configFileName),
	}
}

// New builds the effective configuration: defaults, then the config file in
// the travelcarbon home directory (if present), then environment overrides.
// A malformed config file is logged and ignored.
func New() *Config {
	home, err := GetConfigDir()
	if err != nil {
		home = "."
	}

	cfg := Defaults(home)
	if loadErr := cfg.Load(cfg.configPath); loadErr != nil && !errors.Is(loadErr, os.ErrNotExist) {
		logger := GetLogger()
		logger.Warn().
			Str("component", "config").
			Err(loadErr).
			Str("config_path", cfg.configPath).
			Msg("failed to load config file, using defaults")
	}
	cfg.ApplyEnv(os.LookupEnv)

	return cfg
}

// Load reads the YAML file at path onto c. Keys absent from the file keep
// their current values.
func (c *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err = yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvTIMAPIKey); ok && v != "" {
		c.TIM.APIKey = v
	}
	if v, ok := lookup(EnvTIMBaseURL); ok && v != "" {
		c.TIM.BaseURL = v
	}
	if v, ok := lookup(EnvStoreBackend); ok && v != "" {
		c.Store.Backend = strings.ToLower(v)
	}
	if v, ok := lookup(EnvMongoURI); ok && v != "" {
		c.Store.MongoURI = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for semantic errors. A missing TIM API
// key is not a validation error: commands that never call the model do not
// need it.
func (c *Config) Validate() error {
	if c.TIM.MinInterval < 0 {
		return fmt.Errorf("%w: tim.min_interval must not be negative, got %s", ErrInvalidConfig, c.TIM.MinInterval)
	}
	if c.TIM.Timeout <= 0 {
		return fmt.Errorf("%w: tim.timeout must be positive, got %s", ErrInvalidConfig, c.TIM.Timeout)
	}
	u, err := url.Parse(c.TIM.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: tim.base_url %q is not an absolute URL", ErrInvalidConfig, c.TIM.BaseURL)
	}

	switch c.Store.Backend {
	case BackendFile:
		if c.Store.Path == "" {
			return fmt.Errorf("%w: store.path is required for the file backend", ErrInvalidConfig)
		}
	case BackendMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("%w: store.mongo_uri is required for the mongo backend", ErrInvalidConfig)
		}
		if c.Store.MongoDatabase == "" {
			return fmt.Errorf("%w: store.mongo_database is required for the mongo backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store.backend %q", ErrInvalidConfig, c.Store.Backend)
	}

	switch c.Output.DefaultFormat {
	case FormatTable, FormatJSON:
	default:
		return fmt.Errorf("%w: unknown output.default_format %q", ErrInvalidConfig, c.Output.DefaultFormat)
	}

	return nil
}

// Save writes the configuration to its config path, creating the parent
// directory when needed.
func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.configPath), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err = os.WriteFile(c.configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// ConfigPath returns where Save writes the configuration.
func (c *Config) ConfigPath() string {
	return c.configPath
}

// SetConfigPath changes where Save writes the configuration.
func (c *Config) SetConfigPath(path string) {
	c.configPath = path
}

// RedactedAPIKey returns the API key with all but its last four characters
// masked, or "(not set)".
func (c *Config) RedactedAPIKey() string {
	const visible = 4
	key := c.TIM.APIKey
	if key == "" {
		return "(not set)"
	}
	if len(key) <= visible {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-visible) + key[len(key)-visible:]
}
