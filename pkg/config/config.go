package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the motivator daemon.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Engine       EngineConfig       `yaml:"engine"`
	Temporal     TemporalConfig     `yaml:"temporal"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	HTTPPort     int           `yaml:"http_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`

	// AuthTokenHash is the bcrypt hash of the API bearer token. Empty
	// disables authentication (local development only). Generate with
	// `motivator -hash-token`.
	AuthTokenHash string `yaml:"auth_token_hash"`
}

// DatabaseConfig configures the sqlite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EngineConfig configures the motivation evaluation loop.
type EngineConfig struct {
	EvaluationInterval          time.Duration `yaml:"evaluation_interval"`
	MaxConcurrentMotivatedTasks int           `yaml:"max_concurrent_motivated_tasks"`
	MinArbitrationThreshold     float64       `yaml:"min_arbitration_threshold"`

	// FastIteration switches the per-type cooldown table to the short
	// variants used for test environments.
	FastIteration bool `yaml:"fast_iteration"`

	// StartupGracePeriod is the window after process start during which
	// cooldowns run at a quarter of their normal duration.
	StartupGracePeriod time.Duration `yaml:"startup_grace_period"`

	// PollingInterval controls how often the integration layer checks for
	// queued tasks to hand to the executor.
	PollingInterval time.Duration `yaml:"polling_interval"`
}

// TemporalConfig configures the workflow execution backend.
type TemporalConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Host      string `yaml:"host"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"task_queue"`
}

// OrchestratorConfig points at the external orchestrator's signal API.
// When the URL is empty the engine falls back to its local activity tracker.
type OrchestratorConfig struct {
	BaseURL       string        `yaml:"base_url"`
	AuthToken     string        `yaml:"auth_token"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:     8085,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "motivator.db",
		},
		Engine: EngineConfig{
			EvaluationInterval:          30 * time.Second,
			MaxConcurrentMotivatedTasks: 3,
			MinArbitrationThreshold:     0.3,
			StartupGracePeriod:          30 * time.Minute,
			PollingInterval:             10 * time.Second,
		},
		Temporal: TemporalConfig{
			Enabled:   false,
			Host:      "localhost:7233",
			Namespace: "default",
			TaskQueue: "motivated-tasks",
		},
		Orchestrator: OrchestratorConfig{
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
			RetryDelay:    2 * time.Second,
		},
	}
}

// LoadConfigFromFile loads YAML configuration, filling unset fields from
// DefaultConfig.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Engine.EvaluationInterval <= 0 {
		return fmt.Errorf("engine.evaluation_interval must be positive, got %v", c.Engine.EvaluationInterval)
	}
	if c.Engine.MaxConcurrentMotivatedTasks <= 0 {
		return fmt.Errorf("engine.max_concurrent_motivated_tasks must be positive, got %d", c.Engine.MaxConcurrentMotivatedTasks)
	}
	if c.Engine.MinArbitrationThreshold < 0 || c.Engine.MinArbitrationThreshold > 1 {
		return fmt.Errorf("engine.min_arbitration_threshold must be in [0,1], got %f", c.Engine.MinArbitrationThreshold)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	return nil
}
