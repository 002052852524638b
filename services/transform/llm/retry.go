// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"log/slog"
	"time"
)

// RetryPolicy bounds retries around generation service calls.
//
// Attempt n (1-based) waits Backoff * 2^(n-1) before running. A context
// cancellation aborts both the wait and the remaining attempts.
type RetryPolicy struct {
	// MaxRetries is the number of additional attempts after the first.
	// Zero means a single attempt.
	MaxRetries int

	// Backoff is the base delay before the first retry.
	Backoff time.Duration

	// OnRetry, if set, is invoked before each retry with the operation
	// name. Used to feed the retry counter.
	OnRetry func(op string)

	// Observe, if set, records the outcome and latency of each attempt.
	Observe func(op, status string, d time.Duration)
}

// Do runs a completion under the retry policy.
//
// # Description
//
// Calls client.Complete up to 1+MaxRetries times with exponential
// backoff. Every failure is logged at Warn; the final failure is wrapped
// in a *ServiceError carrying the operation name. Context errors are
// returned as-is so callers can distinguish cancellation from service
// failure.
//
// # Inputs
//
//   - ctx: Cancels the wait between attempts as well as the calls.
//   - client: The generation client.
//   - op: Pipeline operation name for logs, errors, and metrics.
//   - req: The completion request, reused across attempts.
//
// # Outputs
//
//   - *Response: The first successful response.
//   - error: ctx.Err() on cancellation, *ServiceError once retries are
//     exhausted.
func (p RetryPolicy) Do(ctx context.Context, client Client, op string, req *Request) (*Response, error) {
	return p.DoDecode(ctx, client, op, req, nil)
}

// DoDecode runs a completion and decodes the response under one policy.
//
// A response that arrives but fails decode counts as a failed attempt
// and is retried exactly like a transport failure: malformed responses
// are in the retryable class, not a separate fast-fail path. The decode
// function runs once per attempt and must leave no partial state behind
// on failure.
func (p RetryPolicy) DoDecode(ctx context.Context, client Client, op string, req *Request, decode func(*Response) error) (*Response, error) {
	var lastErr error

	for attempt := 1; attempt <= 1+p.MaxRetries; attempt++ {
		if attempt > 1 {
			wait := p.Backoff * time.Duration(1<<(attempt-2))
			slog.Warn("Retrying generation service call",
				"operation", op,
				"attempt", attempt,
				"backoff", wait,
				"error", lastErr)
			if p.OnRetry != nil {
				p.OnRetry(op)
			}

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		start := time.Now()
		resp, err := client.Complete(ctx, req)
		if p.Observe != nil {
			status := "ok"
			if err != nil {
				status = "error"
			}
			p.Observe(op, status, time.Since(start))
		}
		if err == nil && decode != nil {
			err = decode(resp)
		}
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}

	slog.Error("Generation service call failed after retries",
		"operation", op,
		"attempts", 1+p.MaxRetries,
		"error", lastErr)
	return nil, &ServiceError{Op: op, Err: lastErr}
}
