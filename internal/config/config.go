// Package config loads and saves .sculpt/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// Dir is the per-repository directory holding config and index.
	Dir  = ".sculpt"
	File = "config.yaml"

	DefaultMaxAliasHops = 32
	DefaultIndexPath    = ".sculpt/index.db"
)

// Config is the repository configuration.
type Config struct {
	Languages    []string `yaml:"languages,omitempty" mapstructure:"languages"`
	Ignore       []string `yaml:"ignore,omitempty" mapstructure:"ignore"`
	MaxAliasHops int      `yaml:"maxAliasHops" mapstructure:"maxAliasHops"`
	Parallelism  int      `yaml:"parallelism" mapstructure:"parallelism"`

	Index   IndexConfig   `yaml:"index" mapstructure:"index"`
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	Python  PythonConfig  `yaml:"python" mapstructure:"python"`
	Scripts ScriptsConfig `yaml:"scripts" mapstructure:"scripts"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// IndexConfig controls the sqlite snapshot of the graph.
type IndexConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// StorageConfig selects the backing store. An empty URL means the local
// repository root.
type StorageConfig struct {
	URL string `yaml:"url,omitempty" mapstructure:"url"`
}

// PythonConfig holds Python module resolution settings.
type PythonConfig struct {
	SourceRoots []string `yaml:"sourceRoots,omitempty" mapstructure:"sourceRoots"`
}

// ScriptsConfig locates codemod scripts.
type ScriptsConfig struct {
	Dir string `yaml:"dir,omitempty" mapstructure:"dir"`
}

// LoggingConfig configures the default logger.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Ignore:       []string{"node_modules", ".git", "__pycache__", ".venv", "venv", "dist", "build"},
		MaxAliasHops: DefaultMaxAliasHops,
		Index:        IndexConfig{Path: DefaultIndexPath},
		Logging:      LoggingConfig{Level: "warn", Format: "text"},
	}
}

// Path returns the config file location for a repository root.
func Path(root string) string {
	return filepath.Join(root, Dir, File)
}

// Load reads the repository config, falling back to DefaultConfig when the
// file does not exist. Missing keys take their default values.
func Load(root string) (*Config, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetDefault("ignore", def.Ignore)
	v.SetDefault("maxAliasHops", def.MaxAliasHops)
	v.SetDefault("parallelism", def.Parallelism)
	v.SetDefault("index.enabled", def.Index.Enabled)
	v.SetDefault("index.path", def.Index.Path)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(root, Dir))
	v.SetEnvPrefix("SCULPT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return def, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", Path(root), err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", Path(root), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes c to .sculpt/config.yaml under root.
func (c *Config) Save(root string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: encoding: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, Dir), 0o755); err != nil {
		return fmt.Errorf("config: creating %s: %w", Dir, err)
	}
	if err := os.WriteFile(Path(root), data, 0o644); err != nil {
		return fmt.Errorf("config: writing: %w", err)
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.MaxAliasHops < 1 {
		return &Error{Field: "maxAliasHops", Message: "must be at least 1"}
	}
	if c.Parallelism < 0 {
		return &Error{Field: "parallelism", Message: "must not be negative"}
	}
	return nil
}

// IndexPath returns the sqlite path resolved against root.
func (c *Config) IndexPath(root string) string {
	p := c.Index.Path
	if p == "" {
		p = DefaultIndexPath
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// Error is a validation failure.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}
