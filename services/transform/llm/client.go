// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the text-generation client interface for the
// transformation pipeline.
//
// This package defines the interface that generation providers must
// implement to work with the pipeline. Actual implementations are injected
// at construction time, which keeps every engine testable with a scripted
// client.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client defines the interface for text-generation interactions.
//
// Implementations must be safe for concurrent use.
type Client interface {
	// Complete sends a prompt to the generation service and returns a response.
	//
	// Inputs:
	//   ctx - Context for cancellation and timeout
	//   request - The completion request
	//
	// Outputs:
	//   *Response - The service response
	//   error - Non-nil if the request failed
	Complete(ctx context.Context, request *Request) (*Response, error)

	// Name returns the provider name (e.g., "openai").
	Name() string

	// Model returns the model being used.
	Model() string
}

// Request represents a completion request to the generation service.
type Request struct {
	// SystemPrompt is the system message.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Prompt is the user message content.
	Prompt string `json:"prompt"`

	// MaxTokens limits the response length.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0-2.0).
	Temperature float32 `json:"temperature,omitempty"`

	// JSONOnly requests a structured JSON response. Providers that
	// support a native JSON response mode should enable it; all
	// providers additionally get a "JSON only" system directive.
	JSONOnly bool `json:"json_only,omitempty"`
}

// Response represents a generation service response.
type Response struct {
	// Content is the text response.
	Content string `json:"content"`

	// StopReason indicates why generation stopped.
	StopReason string `json:"stop_reason,omitempty"`

	// TokensUsed is the total tokens consumed (input + output).
	TokensUsed int `json:"tokens_used,omitempty"`

	// Duration is how long the request took.
	Duration time.Duration `json:"duration,omitempty"`

	// Model is the model that generated this response.
	Model string `json:"model,omitempty"`
}

// =============================================================================
// Errors
// =============================================================================

// ErrEmptyResponse is returned when the service replies with no content.
var ErrEmptyResponse = errors.New("generation service returned no content")

// ServiceError wraps a failed call to the generation service.
//
// ServiceError is the retryable class in the pipeline's error taxonomy:
// callers retry a bounded number of times with backoff before surfacing
// the failure with partial results attached.
type ServiceError struct {
	// Op names the pipeline operation that issued the call
	// (e.g., "explore.generate_plans", "generate.evaluate").
	Op string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("generation service call failed during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ServiceError) Unwrap() error {
	return e.Err
}
