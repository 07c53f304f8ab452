// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

package config

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/veer-dev/veer/internal/catalog"
	"github.com/veer-dev/veer/internal/client"
	"github.com/veer-dev/veer/internal/health"
	"github.com/veer-dev/veer/internal/router"
	veererr "github.com/veer-dev/veer/pkg/errors"
)

// Config is the top-level Veer configuration. It is loaded once at
// process start; nothing in the core hot-reloads it.
type Config struct {
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Models    map[string]ModelConfig    `mapstructure:"models"`
	Routing   RoutingConfig             `mapstructure:"routing"`
	Circuit   CircuitConfig             `mapstructure:"circuit"`
	Costs     CostsConfig               `mapstructure:"costs"`
}

// ProviderConfig holds credentials and endpoint for an LLM provider.
type ProviderConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

// ModelConfig is one model registry entry, keyed by model ID in the
// parent map.
type ModelConfig struct {
	Provider      string  `mapstructure:"provider"`
	PricePerKIn   float64 `mapstructure:"price_per_k_in"`
	PricePerKOut  float64 `mapstructure:"price_per_k_out"`
	TimeoutMs     int     `mapstructure:"timeout_ms"`
	Fallback      string  `mapstructure:"fallback"`
	CrossProvider string  `mapstructure:"cross_provider"`
	Streaming     bool    `mapstructure:"streaming"`
	Vision        bool    `mapstructure:"vision"`
	Thinking      bool    `mapstructure:"thinking"`
}

// RoutingConfig controls model selection.
type RoutingConfig struct {
	Default               string            `mapstructure:"default"`
	Fast                  string            `mapstructure:"fast"`
	Reasoning             string            `mapstructure:"reasoning"`
	News                  string            `mapstructure:"news"`
	TaskModels            map[string]string `mapstructure:"task_models"`
	EscalationMessages    int               `mapstructure:"escalation_messages"`
	EscalationChars       int               `mapstructure:"escalation_chars"`
	CrossProviderFallback bool              `mapstructure:"cross_provider_fallback"`
}

// CircuitConfig sets the per-provider breaker thresholds.
type CircuitConfig struct {
	FailureThreshold  int `mapstructure:"failure_threshold"`
	RecoveryTimeoutMs int `mapstructure:"recovery_timeout_ms"`
	HalfOpenSuccesses int `mapstructure:"half_open_successes"`
	FailureWindowMs   int `mapstructure:"failure_window_ms"`
}

// CostsConfig controls cost persistence. An empty ledger path keeps
// cost tracking in memory only.
type CostsConfig struct {
	LedgerPath string `mapstructure:"ledger_path"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix VEER_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.recovery_timeout_ms", 30000)
	v.SetDefault("circuit.half_open_successes", 2)
	v.SetDefault("circuit.failure_window_ms", 60000)
	v.SetDefault("routing.escalation_messages", 10)
	v.SetDefault("routing.escalation_chars", 4000)
	v.SetDefault("routing.cross_provider_fallback", true)

	// Environment
	v.SetEnvPrefix("VEER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, veererr.Errorf(veererr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, veererr.Errorf(veererr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, veererr.Errorf(veererr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateModels()...)
	errs = append(errs, c.validateRouting()...)
	errs = append(errs, c.validateCircuit()...)

	return errs
}

func (c *Config) validateModels() []error {
	var errs []error

	for id, m := range c.Models {
		if m.Provider == "" {
			errs = append(errs, veererr.Errorf(veererr.CodeConfigValidateInvalidValue,
				"config: models.%s.provider must not be empty", id))
			continue
		}
		if c.Providers != nil {
			// Only cross-reference providers when the providers section
			// exists in config. A nil map means defaults only, which is
			// valid until a request actually needs credentials.
			if _, ok := c.Providers[m.Provider]; !ok {
				errs = append(errs, veererr.Errorf(veererr.CodeConfigValidateInvalidValue,
					"config: models.%s references provider %q which is not configured",
					id, m.Provider))
			}
		}
		if m.PricePerKIn < 0 || m.PricePerKOut < 0 {
			errs = append(errs, veererr.Errorf(veererr.CodeConfigValidateInvalidValue,
				"config: models.%s pricing must not be negative", id))
		}
		if m.TimeoutMs < 0 {
			errs = append(errs, veererr.Errorf(veererr.CodeConfigValidateInvalidValue,
				"config: models.%s.timeout_ms must not be negative, got %d", id, m.TimeoutMs))
		}
		if m.Fallback != "" {
			if _, ok := c.Models[m.Fallback]; !ok {
				errs = append(errs, veererr.Errorf(veererr.CodeConfigValidateInvalidValue,
					"config: models.%s.fallback references unknown model %q", id, m.Fallback))
			}
		}
		if m.CrossProvider != "" {
			if _, ok := c.Models[m.CrossProvider]; !ok {
				errs = append(errs, veererr.Errorf(veererr.CodeConfigValidateInvalidValue,
					"config: models.%s.cross_provider references unknown model %q", id, m.CrossProvider))
			}
		}
	}

	return errs
}

func (c *Config) validateRouting() []error {
	var errs []error

	if c.Routing.Default == "" {
		errs = append(errs, veererr.Errorf(veererr.CodeConfigValidateInvalidValue,
			"config: routing.default must not be empty"))
	} else if _, ok := c.Models[c.Routing.Default]; !ok {
		errs = append(errs, veererr.Errorf(veererr.CodeConfigValidateInvalidValue,
			"config: routing.default %q is not a configured model", c.Routing.Default))
	}

	for _, ref := range []struct{ key, model string }{
		{"routing.fast", c.Routing.Fast},
		{"routing.reasoning", c.Routing.Reasoning},
		{"routing.news", c.Routing.News},
	} {
		if ref.model == "" {
			continue
		}
		if _, ok := c.Models[ref.model]; !ok {
			errs = append(errs, veererr.Errorf(veererr.CodeConfigValidateInvalidValue,
				"config: %s %q is not a configured model", ref.key, ref.model))
		}
	}

	for task, model := range c.Routing.TaskModels {
		if _, ok := c.Models[model]; !ok {
			errs = append(errs, veererr.Errorf(veererr.CodeConfigValidateInvalidValue,
				"config: routing.task_models[%s] %q is not a configured model", task, model))
		}
	}

	if c.Routing.EscalationMessages <= 0 {
		errs = append(errs, veererr.Errorf(veererr.CodeConfigValidateInvalidValue,
			"config: routing.escalation_messages must be greater than 0, got %d",
			c.Routing.EscalationMessages))
	}
	if c.Routing.EscalationChars <= 0 {
		errs = append(errs, veererr.Errorf(veererr.CodeConfigValidateInvalidValue,
			"config: routing.escalation_chars must be greater than 0, got %d",
			c.Routing.EscalationChars))
	}

	return errs
}

func (c *Config) validateCircuit() []error {
	var errs []error

	for _, f := range []struct {
		key string
		val int
	}{
		{"circuit.failure_threshold", c.Circuit.FailureThreshold},
		{"circuit.recovery_timeout_ms", c.Circuit.RecoveryTimeoutMs},
		{"circuit.half_open_successes", c.Circuit.HalfOpenSuccesses},
		{"circuit.failure_window_ms", c.Circuit.FailureWindowMs},
	} {
		if f.val <= 0 {
			errs = append(errs, veererr.Errorf(veererr.CodeConfigValidateInvalidValue,
				"config: %s must be greater than 0, got %d", f.key, f.val))
		}
	}

	return errs
}

// CatalogModels converts the models section into registry entries,
// sorted by ID so catalog construction is deterministic.
func (c *Config) CatalogModels() []catalog.Model {
	out := make([]catalog.Model, 0, len(c.Models))
	for id, m := range c.Models {
		out = append(out, catalog.Model{
			ID:            id,
			Provider:      m.Provider,
			PricePerKIn:   m.PricePerKIn,
			PricePerKOut:  m.PricePerKOut,
			Timeout:       time.Duration(m.TimeoutMs) * time.Millisecond,
			Fallback:      m.Fallback,
			CrossProvider: m.CrossProvider,
			Capabilities: catalog.Capabilities{
				SupportsStreaming: m.Streaming,
				SupportsVision:    m.Vision,
				SupportsThinking:  m.Thinking,
			},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RouterRules converts the routing section into selection rules.
func (c *Config) RouterRules() router.Rules {
	return router.Rules{
		Default:               c.Routing.Default,
		Fast:                  c.Routing.Fast,
		Reasoning:             c.Routing.Reasoning,
		News:                  c.Routing.News,
		TaskModels:            c.Routing.TaskModels,
		EscalationMessages:    c.Routing.EscalationMessages,
		EscalationChars:       c.Routing.EscalationChars,
		CrossProviderFallback: c.Routing.CrossProviderFallback,
	}
}

// CircuitPolicy converts the circuit section into breaker thresholds.
func (c *Config) CircuitPolicy() health.Policy {
	return health.Policy{
		FailureThreshold:  c.Circuit.FailureThreshold,
		RecoveryTimeout:   time.Duration(c.Circuit.RecoveryTimeoutMs) * time.Millisecond,
		HalfOpenSuccesses: c.Circuit.HalfOpenSuccesses,
		FailureWindow:     time.Duration(c.Circuit.FailureWindowMs) * time.Millisecond,
	}
}

// ClientCredentials converts the providers section into per-provider
// connection settings.
func (c *Config) ClientCredentials() map[string]client.Credentials {
	out := make(map[string]client.Credentials, len(c.Providers))
	for name, p := range c.Providers {
		out[name] = client.Credentials{APIKey: p.APIKey, BaseURL: p.Endpoint}
	}
	return out
}
