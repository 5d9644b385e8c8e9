// Package config provides configuration loading for admind: YAML file,
// ADMIND_-prefixed environment overrides, and hardcoded defaults, in
// that precedence order (environment highest).
package config

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/halcyonlabs/admind/internal/logging"
	"github.com/halcyonlabs/admind/internal/memory"
	"github.com/halcyonlabs/admind/internal/orchestrator"
)

// Config is the root admind configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Logging      logging.Config     `koanf:"logging"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Service      ServiceConfig      `koanf:"service"`
	Memory       MemoryConfig       `koanf:"memory"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// OrchestratorConfig holds the pipeline settings.
type OrchestratorConfig struct {
	ExtractionTarget float64       `koanf:"extraction_target"`
	WorkflowTarget   float64       `koanf:"workflow_target"`
	DefaultDomain    string        `koanf:"default_domain"`
	RequestTimeout   time.Duration `koanf:"request_timeout"`
	SuggestionLimit  int           `koanf:"suggestion_limit"`
	RetryAttempts    int           `koanf:"retry_attempts"`
	RetryDelay       time.Duration `koanf:"retry_delay"`
}

// ServiceConfig holds the async submission settings.
type ServiceConfig struct {
	Workers   int     `koanf:"workers"`
	QueueSize int     `koanf:"queue_size"`
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// MemoryConfig holds the memory store settings.
type MemoryConfig struct {
	Path      string        `koanf:"path"`
	Compress  bool          `koanf:"compress"`
	Dimension int           `koanf:"dimension"`
	Timeout   time.Duration `koanf:"timeout"`
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8710
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	cfg.Logging.ApplyDefaults()
}

// Validate checks field ranges. Zero values are allowed everywhere the
// consuming component applies its own default.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Orchestrator.ExtractionTarget < 0 || c.Orchestrator.ExtractionTarget > 1 {
		return fmt.Errorf("orchestrator.extraction_target %f out of range [0,1]", c.Orchestrator.ExtractionTarget)
	}
	if c.Orchestrator.WorkflowTarget < 0 || c.Orchestrator.WorkflowTarget > 1 {
		return fmt.Errorf("orchestrator.workflow_target %f out of range [0,1]", c.Orchestrator.WorkflowTarget)
	}
	if c.Service.Workers < 0 {
		return fmt.Errorf("service.workers must not be negative")
	}
	if c.Service.RateLimit < 0 {
		return fmt.Errorf("service.rate_limit must not be negative")
	}
	if c.Memory.Dimension < 0 {
		return fmt.Errorf("memory.dimension must not be negative")
	}
	return nil
}

// OrchestratorConfig converts to the orchestrator package's config.
func (c *Config) OrchestratorConfig() orchestrator.Config {
	out := orchestrator.Config{
		ExtractionTarget: c.Orchestrator.ExtractionTarget,
		WorkflowTarget:   c.Orchestrator.WorkflowTarget,
		DefaultDomain:    c.Orchestrator.DefaultDomain,
		RequestTimeout:   c.Orchestrator.RequestTimeout,
		SuggestionLimit:  c.Orchestrator.SuggestionLimit,
	}
	out.Executor.Retry.MaxAttempts = c.Orchestrator.RetryAttempts
	out.Executor.Retry.Delay = c.Orchestrator.RetryDelay
	return out
}

// ServiceConfig converts to the orchestrator service's config.
func (c *Config) ServiceConfig() orchestrator.ServiceConfig {
	return orchestrator.ServiceConfig{
		Workers:   c.Service.Workers,
		QueueSize: c.Service.QueueSize,
		RateLimit: rate.Limit(c.Service.RateLimit),
		RateBurst: c.Service.RateBurst,
	}
}

// MemoryConfig converts to the memory store's config.
func (c *Config) MemoryConfig() memory.Config {
	return memory.Config{
		Path:      c.Memory.Path,
		Compress:  c.Memory.Compress,
		Dimension: c.Memory.Dimension,
		Timeout:   c.Memory.Timeout,
	}
}
