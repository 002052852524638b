// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIOptions configures the OpenAI-backed client.
type OpenAIOptions struct {
	// APIKey authenticates against the API. If empty, OPENAI_API_KEY is
	// consulted, then the container secret path.
	APIKey string

	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string

	// Model selects the chat model. Default: gpt-4o-mini.
	Model string

	// SystemPrompt is the default system message for plain requests.
	SystemPrompt string
}

// OpenAIClient implements Client against any OpenAI-compatible chat API.
type OpenAIClient struct {
	client       *openai.Client
	model        string
	systemPrompt string
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
//
// # Description
//
// Resolves the API key from the options, the OPENAI_API_KEY environment
// variable, or the /run/secrets/openai_api_key secret file, in that order.
// The model defaults to gpt-4o-mini when unset.
//
// # Outputs
//
//   - *OpenAIClient: Ready-to-use client.
//   - error: Non-nil if no API key could be resolved.
func NewOpenAIClient(opts OpenAIOptions) (*OpenAIClient, error) {
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API key from container secrets")
		} else {
			slog.Error("OPENAI_API_KEY not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}

	model := opts.Model
	if model == "" {
		model = defaultOpenAIModel
		slog.Warn("model not configured, defaulting", "model", model)
	}

	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	slog.Info("Initializing OpenAI client", "model", model, "base_url", cfg.BaseURL)
	return &OpenAIClient{
		client:       openai.NewClientWithConfig(cfg),
		model:        model,
		systemPrompt: opts.SystemPrompt,
	}, nil
}

// Complete implements the Client interface.
func (o *OpenAIClient) Complete(ctx context.Context, request *Request) (*Response, error) {
	slog.Debug("Generating text via OpenAI", "model", o.model, "json_only", request.JSONOnly)

	system := request.SystemPrompt
	if system == "" {
		system = o.systemPrompt
	}
	if system == "" {
		system = "You are a text transformation assistant."
	}
	if request.JSONOnly {
		system += " Always respond with valid JSON. Do not include any explanations," +
			" markdown formatting, or text outside of the JSON structure."
	}

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: request.Prompt},
		},
	}
	if request.Temperature != 0 {
		req.Temperature = request.Temperature
	}
	if request.MaxTokens != 0 {
		req.MaxCompletionTokens = request.MaxTokens
	}
	if request.JSONOnly {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices")
		return nil, ErrEmptyResponse
	}

	choice := resp.Choices[0]
	slog.Debug("Received response from OpenAI", "finish_reason", choice.FinishReason)
	return &Response{
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
		TokensUsed: resp.Usage.TotalTokens,
		Duration:   time.Since(start),
		Model:      resp.Model,
	}, nil
}

// Name implements the Client interface.
func (o *OpenAIClient) Name() string { return "openai" }

// Model implements the Client interface.
func (o *OpenAIClient) Model() string { return o.model }
