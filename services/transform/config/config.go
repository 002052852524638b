// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config defines the immutable configuration for the
// transformation pipeline.
//
// A Config is built once (from defaults, a YAML file, or both), validated,
// and then passed explicitly into every constructor that needs it. Nothing
// in the pipeline reads configuration from ambient global state, and
// nothing mutates a Config after validation.
//
// Invalid configuration is a fatal condition: Load and Validate return a
// *ConfigError immediately and nothing downstream retries it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/genreshift/services/transform/attributes"
)

// Strategy names accepted by Exploration.Strategy. The exploration engine
// maps these to its closed strategy variant: strategy_1 suggests target
// genres and instructions directly, strategy_2 first transforms the
// attribute space explicitly and derives instructions from the shift.
const (
	StrategyGenrePriority  = "strategy_1"
	StrategyDimensionShift = "strategy_2"
)

// ErrInvalidConfig is the sentinel wrapped by every *ConfigError.
var ErrInvalidConfig = errors.New("invalid pipeline configuration")

// ConfigError reports a fatal configuration problem. It is never retried.
type ConfigError struct {
	// Field is the dotted path of the offending setting.
	Field string

	// Reason describes what is wrong with the value.
	Reason string

	// Err optionally carries the underlying cause (e.g.
	// attributes.ErrUnknownDimension).
	Err error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid pipeline configuration: %s: %s", e.Field, e.Reason)
}

// Unwrap exposes ErrInvalidConfig and the underlying cause, if any, for
// errors.Is support.
func (e *ConfigError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidConfig, e.Err}
	}
	return []error{ErrInvalidConfig}
}

// Duration is a time.Duration that decodes from YAML strings like "500ms"
// as well as plain nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("duration must be a string like \"500ms\" or an integer nanosecond count")
	}
	*d = Duration(n)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// =============================================================================
// Sections
// =============================================================================

// EvaluationConfig holds the plan-scoring weights and the recommendation
// threshold.
type EvaluationConfig struct {
	ConsistencyWeight float64 `json:"consistency_weight" yaml:"consistency_weight"`
	FeasibilityWeight float64 `json:"feasibility_weight" yaml:"feasibility_weight"`
	ValueWeight       float64 `json:"value_weight" yaml:"value_weight"`
	Threshold         float64 `json:"threshold" yaml:"threshold"`
}

// ExplorationConfig controls candidate plan generation and evaluation.
type ExplorationConfig struct {
	// Strategy selects the plan-generation strategy: strategy_1
	// (genre and instruction priority) or strategy_2 (explicit
	// dimension transformation).
	Strategy string `json:"strategy" yaml:"strategy"`

	// NumPlans is the number of candidate plans requested per exploration.
	NumPlans int `json:"num_plans" yaml:"num_plans"`

	// MaxConcurrent bounds the number of plan evaluations in flight.
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent"`

	Evaluation EvaluationConfig `json:"evaluation" yaml:"evaluation"`
}

// QualityWeights optionally overrides the arithmetic-mean combination of
// the four generation quality criteria. All four must be set together.
type QualityWeights struct {
	SemanticFidelity     float64 `json:"semantic_fidelity" yaml:"semantic_fidelity"`
	AttributeConformity  float64 `json:"attribute_conformity" yaml:"attribute_conformity"`
	InstructionAdherence float64 `json:"instruction_adherence" yaml:"instruction_adherence"`
	Fluency              float64 `json:"fluency" yaml:"fluency"`
}

// GenerationConfig controls the generate-evaluate-refine loop.
type GenerationConfig struct {
	// QualityThreshold is the overall score at which the loop stops early.
	QualityThreshold float64 `json:"quality_threshold" yaml:"quality_threshold"`

	// MaxIterations caps generate+refine rounds. The loop always stops
	// here even if the threshold was never reached.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`

	// PostProcessing enables the evaluate/refine phase. When false the
	// loop performs exactly one generation and one evaluation.
	PostProcessing bool `json:"post_processing" yaml:"post_processing"`

	// QualityWeights, when non-nil, replaces the arithmetic mean.
	QualityWeights *QualityWeights `json:"quality_weights,omitempty" yaml:"quality_weights,omitempty"`
}

// LLMConfig holds the generation-service settings shared by every engine.
type LLMConfig struct {
	// BaseURL points at an OpenAI-compatible endpoint. Empty means the
	// public OpenAI API.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Model is the chat model name.
	Model string `json:"model" yaml:"model"`

	Temperature float32 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`

	// MaxRetries bounds retry attempts after a service failure.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RetryBackoff is the base delay; attempt n waits backoff * 2^(n-1).
	RetryBackoff Duration `json:"retry_backoff" yaml:"retry_backoff"`
}

// LoggingConfig controls the process-wide logger.
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
	JSON  bool   `json:"json" yaml:"json"`
}

// ServerConfig holds the HTTP serving settings.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// Config is the complete, immutable pipeline configuration.
type Config struct {
	Exploration ExplorationConfig     `json:"exploration" yaml:"exploration"`
	Generation  GenerationConfig      `json:"generation" yaml:"generation"`
	LLM         LLMConfig             `json:"llm" yaml:"llm"`
	Dimensions  attributes.Dimensions `json:"dimensions" yaml:"dimensions"`
	Logging     LoggingConfig         `json:"logging" yaml:"logging"`
	Server      ServerConfig          `json:"server" yaml:"server"`
}

// =============================================================================
// Construction
// =============================================================================

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Exploration: ExplorationConfig{
			Strategy:      StrategyDimensionShift,
			NumPlans:      3,
			MaxConcurrent: 4,
			Evaluation: EvaluationConfig{
				ConsistencyWeight: 0.3,
				FeasibilityWeight: 0.4,
				ValueWeight:       0.3,
				Threshold:         0.6,
			},
		},
		Generation: GenerationConfig{
			QualityThreshold: 0.7,
			MaxIterations:    3,
			PostProcessing:   true,
		},
		LLM: LLMConfig{
			Model:        "gpt-4o-mini",
			Temperature:  0.7,
			MaxTokens:    2000,
			MaxRetries:   3,
			RetryBackoff: Duration(500 * time.Millisecond),
		},
		Dimensions: attributes.DefaultDimensions(),
		Logging:    LoggingConfig{Level: "info"},
		Server:     ServerConfig{Addr: ":8080"},
	}
}

// Load reads a YAML configuration file layered over the defaults.
//
// # Description
//
// Starts from Default(), decodes the file on top of it (so omitted keys
// keep their defaults), and validates the result. Decoding is strict:
// unknown keys are rejected, which catches typos before they silently
// no-op.
//
// # Inputs
//
//   - path: YAML file path.
//
// # Outputs
//
//   - Config: Validated configuration.
//   - error: *ConfigError on read, decode, or validation failure.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &ConfigError{Field: "file", Reason: fmt.Sprintf("read %s: %v", path, err)}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, &ConfigError{Field: "file", Reason: fmt.Sprintf("decode %s: %v", path, err)}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for fatal problems.
//
// Outputs:
//   - error: *ConfigError describing the first problem found, or nil.
func (c Config) Validate() error {
	switch c.Exploration.Strategy {
	case StrategyGenrePriority, StrategyDimensionShift:
	default:
		return &ConfigError{
			Field:  "exploration.strategy",
			Reason: fmt.Sprintf("unknown strategy %q (want %s or %s)", c.Exploration.Strategy, StrategyGenrePriority, StrategyDimensionShift),
		}
	}

	if c.Exploration.NumPlans < 1 {
		return &ConfigError{Field: "exploration.num_plans", Reason: "must be at least 1"}
	}
	if c.Exploration.MaxConcurrent < 1 {
		return &ConfigError{Field: "exploration.max_concurrent", Reason: "must be at least 1"}
	}

	ev := c.Exploration.Evaluation
	for _, w := range []struct {
		name  string
		value float64
	}{
		{"consistency_weight", ev.ConsistencyWeight},
		{"feasibility_weight", ev.FeasibilityWeight},
		{"value_weight", ev.ValueWeight},
	} {
		if w.value < 0 {
			return &ConfigError{Field: "exploration.evaluation." + w.name, Reason: "must not be negative"}
		}
	}
	if ev.ConsistencyWeight+ev.FeasibilityWeight+ev.ValueWeight <= 0 {
		return &ConfigError{Field: "exploration.evaluation", Reason: "weights must not all be zero"}
	}
	if ev.Threshold < 0 || ev.Threshold > 1 {
		return &ConfigError{Field: "exploration.evaluation.threshold", Reason: "must be within [0, 1]"}
	}

	if c.Generation.QualityThreshold < 0 || c.Generation.QualityThreshold > 1 {
		return &ConfigError{Field: "generation.quality_threshold", Reason: "must be within [0, 1]"}
	}
	if c.Generation.MaxIterations < 1 {
		return &ConfigError{Field: "generation.max_iterations", Reason: "must be at least 1"}
	}
	if qw := c.Generation.QualityWeights; qw != nil {
		if qw.SemanticFidelity < 0 || qw.AttributeConformity < 0 || qw.InstructionAdherence < 0 || qw.Fluency < 0 {
			return &ConfigError{Field: "generation.quality_weights", Reason: "weights must not be negative"}
		}
		if qw.SemanticFidelity+qw.AttributeConformity+qw.InstructionAdherence+qw.Fluency <= 0 {
			return &ConfigError{Field: "generation.quality_weights", Reason: "weights must not all be zero"}
		}
	}

	if c.LLM.MaxRetries < 0 {
		return &ConfigError{Field: "llm.max_retries", Reason: "must not be negative"}
	}
	if c.LLM.RetryBackoff < 0 {
		return &ConfigError{Field: "llm.retry_backoff", Reason: "must not be negative"}
	}

	if err := c.Dimensions.Validate(); err != nil {
		return &ConfigError{Field: "dimensions", Reason: err.Error(), Err: err}
	}

	return nil
}
