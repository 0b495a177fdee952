package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"issueline/internal/domain"
)

const FileName = "issueline.yml"

// Config models issueline.yml.
type Config struct {
	Store struct {
		Dir         string        `yaml:"dir"`
		Actor       string        `yaml:"actor"`
		LockTimeout time.Duration `yaml:"lock_timeout"`
		Snapshot    bool          `yaml:"snapshot"`
	} `yaml:"store"`
	Issues struct {
		IDPrefix        string          `yaml:"id_prefix"`
		DefaultPriority domain.Priority `yaml:"default_priority"`
		DefaultType     string          `yaml:"default_type"`
		Types           []string        `yaml:"types"`
	} `yaml:"issues"`
	Log    LogConfig `yaml:"log"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with il config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Store.Dir) == "" {
		return fmt.Errorf("config.store.dir is required")
	}
	if c.Store.Actor == "" {
		return fmt.Errorf("config.store.actor is required")
	}
	if c.Store.LockTimeout < 0 {
		return fmt.Errorf("config.store.lock_timeout must not be negative")
	}
	if !c.Issues.DefaultPriority.Valid() {
		return fmt.Errorf("config.issues.default_priority must be 0-4, got %d", c.Issues.DefaultPriority)
	}
	if c.Issues.DefaultType == "" {
		return fmt.Errorf("config.issues.default_type is required")
	}
	if len(c.Issues.Types) > 0 {
		found := false
		for _, t := range c.Issues.Types {
			if t == "" {
				return fmt.Errorf("config.issues.types contains an empty type")
			}
			if t == c.Issues.DefaultType {
				found = true
			}
		}
		if !found {
			return fmt.Errorf("config.issues.default_type %s is not listed in config.issues.types", c.Issues.DefaultType)
		}
	}
	if strings.ContainsAny(c.Issues.IDPrefix, " /") {
		return fmt.Errorf("config.issues.id_prefix must not contain spaces or slashes")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be debug, info, warn or error")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	return nil
}

// AllowsType reports whether issueType is accepted. An empty type list
// accepts any type.
func (c *Config) AllowsType(issueType string) bool {
	if len(c.Issues.Types) == 0 {
		return true
	}
	for _, t := range c.Issues.Types {
		if t == issueType {
			return true
		}
	}
	return false
}

// StoreDir resolves the store directory against the workspace.
func (c *Config) StoreDir(workspace string) string {
	if filepath.IsAbs(c.Store.Dir) {
		return c.Store.Dir
	}
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, c.Store.Dir)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// YAML renders the config as it would be written to disk.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `store:
  dir: .issueline
  actor: system
  lock_timeout: 10s
  snapshot: true

issues:
  id_prefix: ""
  default_priority: 2
  default_type: task
  types: []

log:
  level: info
  format: text
  file: ""
  max_size_mb: 10
  max_backups: 3

server:
  addr: 127.0.0.1:8080
  base_path: /v0
`
