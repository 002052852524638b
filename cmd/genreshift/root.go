// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/genreshift/pkg/logging"
	"github.com/AleutianAI/genreshift/services/transform/config"
	"github.com/AleutianAI/genreshift/services/transform/llm"
	"github.com/AleutianAI/genreshift/services/transform/session"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logJSON    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "genreshift",
		Short: "Transform text between genres with an LLM-driven pipeline",
		Long: `genreshift explores candidate genre transformations for a document,
scores them, and drives an iterative generate-evaluate-refine loop for
the selected plan.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML configuration")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "emit JSON logs")

	cmd.AddCommand(newTransformCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	return cmd
}

// loadConfig resolves configuration and installs the process logger.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	levelName := cfg.Logging.Level
	if o.logLevel != "" {
		levelName = o.logLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return config.Config{}, fmt.Errorf("invalid log level: %w", err)
	}
	logging.Setup(logging.Config{
		Level:   level,
		Service: "genreshift",
		JSON:    o.logJSON || cfg.Logging.JSON,
	})

	return cfg, nil
}

// buildPipeline wires the generation client and the engines.
func buildPipeline(cfg config.Config) (*session.Pipeline, error) {
	client, err := llm.NewOpenAIClient(llm.OpenAIOptions{
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
	})
	if err != nil {
		return nil, err
	}
	return session.NewPipeline(client, cfg)
}
