// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/genreshift/services/transform/attributes"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, StrategyDimensionShift, cfg.Exploration.Strategy)
	assert.Equal(t, 3, cfg.Exploration.NumPlans)
	assert.InDelta(t, 0.6, cfg.Exploration.Evaluation.Threshold, 1e-9)
	assert.InDelta(t, 0.7, cfg.Generation.QualityThreshold, 1e-9)
	assert.True(t, cfg.Generation.PostProcessing)
	assert.False(t, cfg.Dimensions.Active(attributes.DimAdjustment))
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
exploration:
  strategy: strategy_1
  num_plans: 5
llm:
  model: qwen2.5:32b
  base_url: http://localhost:11434/v1
  retry_backoff: 250ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, StrategyGenrePriority, cfg.Exploration.Strategy)
	assert.Equal(t, 5, cfg.Exploration.NumPlans)
	assert.Equal(t, "qwen2.5:32b", cfg.LLM.Model)
	assert.Equal(t, 250*time.Millisecond, cfg.LLM.RetryBackoff.Std())

	// Keys the file omits keep their defaults.
	assert.InDelta(t, 0.4, cfg.Exploration.Evaluation.FeasibilityWeight, 1e-9)
	assert.Equal(t, 3, cfg.Generation.MaxIterations)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, "explorationn:\n  num_plans: 5\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "file", cfgErr.Field)
}

func TestValidate_UnknownStrategy(t *testing.T) {
	cfg := Default()
	cfg.Exploration.Strategy = "strategy_9"

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "exploration.strategy")
}

func TestValidate_UnknownDimension(t *testing.T) {
	cfg := Default()
	cfg.Dimensions["reading_level"] = attributes.DimensionConfig{Active: true, Weight: 1.0}

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.True(t, errors.Is(err, attributes.ErrUnknownDimension))
}

func TestValidate_Bounds(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero plans", func(c *Config) { c.Exploration.NumPlans = 0 }, "num_plans"},
		{"zero workers", func(c *Config) { c.Exploration.MaxConcurrent = 0 }, "max_concurrent"},
		{"threshold above one", func(c *Config) { c.Exploration.Evaluation.Threshold = 1.5 }, "threshold"},
		{"negative weight", func(c *Config) { c.Exploration.Evaluation.ValueWeight = -0.1 }, "value_weight"},
		{"all weights zero", func(c *Config) {
			c.Exploration.Evaluation = EvaluationConfig{Threshold: 0.6}
		}, "evaluation"},
		{"quality threshold negative", func(c *Config) { c.Generation.QualityThreshold = -0.1 }, "quality_threshold"},
		{"zero iterations", func(c *Config) { c.Generation.MaxIterations = 0 }, "max_iterations"},
		{"zero quality weights", func(c *Config) {
			c.Generation.QualityWeights = &QualityWeights{}
		}, "quality_weights"},
		{"negative retries", func(c *Config) { c.LLM.MaxRetries = -1 }, "max_retries"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestDuration_YAMLRoundTrip(t *testing.T) {
	d := Duration(2 * time.Second)
	out, err := d.MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "2s", out)
}
