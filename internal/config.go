package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Graph drivers.
const (
	GraphDriverNeo4j  = "neo4j"
	GraphDriverSQLite = "sqlite"
)

const redacted = "***"

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Vault     VaultConfig       `yaml:"vault"`
	Graph     GraphConfig       `yaml:"graph"`
	Inference InferenceConfig   `yaml:"inference"`
	Tools     ToolsConfig       `yaml:"tools"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Vault.Validate(); err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	if err := c.Graph.Validate(); err != nil {
		return fmt.Errorf("graph: %w", err)
	}
	if err := c.Inference.Validate(); err != nil {
		return fmt.Errorf("inference: %w", err)
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds the optional health probe listener configuration.
type HTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// GraphConfig selects and configures the graph backend.
//
// Driver "neo4j" connects to URI with Username and Password. Driver "sqlite"
// keeps the graph in an embedded database at SQLitePath.
type GraphConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Driver     string `yaml:"driver"`
	URI        string `yaml:"uri"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Database   string `yaml:"database"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Validate validates the graph configuration.
func (c *GraphConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Driver == "" {
		c.Driver = GraphDriverNeo4j
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(GraphDriverNeo4j, GraphDriverSQLite)),
		validation.Field(&c.URI, validation.When(c.Driver == GraphDriverNeo4j, validation.Required)),
		validation.Field(&c.SQLitePath, validation.When(c.Driver == GraphDriverSQLite, validation.Required)),
	)
}

// QueryLanguage names the language accepted by query_graph.
func (c *GraphConfig) QueryLanguage() string {
	if c.Driver == GraphDriverSQLite {
		return "SQL"
	}
	return "Cypher"
}

// InferenceConfig configures the Ollama client.
type InferenceConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	DefaultModel string        `yaml:"default_model"`
	EmbedModel   string        `yaml:"embed_model"`
	Breaker      BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the inference circuit breaker. MaxFailures of
// zero disables it.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// Validate validates the inference configuration.
func (c *InferenceConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Host, validation.Required),
		validation.Field(&c.Port, validation.Min(0), validation.Max(65535)),
		validation.Field(&c.Breaker, validation.By(func(any) error {
			if c.Breaker.MaxFailures > 0 && c.Breaker.OpenTimeout <= 0 {
				return fmt.Errorf("open_timeout must be positive when max_failures is set")
			}
			return nil
		})),
	)
}

// ToolsConfig controls tool dispatch.
type ToolsConfig struct {
	// ValidateArguments checks declared schemas before handlers run.
	ValidateArguments bool `yaml:"validate_arguments"`
}

// Summary returns the effective configuration as a document safe to expose
// to clients.
func (c *Config) Summary() map[string]any {
	password := ""
	if c.Graph.Password != "" {
		password = redacted
	}
	return map[string]any{
		"app": map[string]any{
			"log_level": c.App.LogLevel.String(),
			"http":      map[string]any{"enabled": c.App.HTTP.Enabled, "port": c.App.HTTP.Port},
		},
		"vault": map[string]any{"path": c.Vault.Path},
		"graph": map[string]any{
			"enabled":        c.Graph.Enabled,
			"driver":         c.Graph.Driver,
			"uri":            c.Graph.URI,
			"username":       c.Graph.Username,
			"password":       password,
			"database":       c.Graph.Database,
			"sqlite_path":    c.Graph.SQLitePath,
			"query_language": c.Graph.QueryLanguage(),
		},
		"inference": map[string]any{
			"enabled":       c.Inference.Enabled,
			"host":          c.Inference.Host,
			"port":          c.Inference.Port,
			"default_model": c.Inference.DefaultModel,
			"embed_model":   c.Inference.EmbedModel,
			"breaker": map[string]any{
				"max_failures": c.Inference.Breaker.MaxFailures,
				"open_timeout": c.Inference.Breaker.OpenTimeout.String(),
			},
		},
		"tools": map[string]any{"validate_arguments": c.Tools.ValidateArguments},
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		Graph: GraphConfig{
			Enabled:    true,
			Driver:     GraphDriverNeo4j,
			URI:        "bolt://localhost:7687",
			Username:   "neo4j",
			SQLitePath: "./mnemo-graph.db",
		},
		Inference: InferenceConfig{
			Enabled:      true,
			Host:         "localhost",
			Port:         11434,
			DefaultModel: "llama3.2",
			EmbedModel:   "nomic-embed-text",
			Breaker: BreakerConfig{
				MaxFailures: 5,
				OpenTimeout: 30 * time.Second,
			},
		},
	}
}
