// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package explore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"text/template"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/genreshift/services/transform/attributes"
	"github.com/AleutianAI/genreshift/services/transform/config"
	"github.com/AleutianAI/genreshift/services/transform/llm"
	"github.com/AleutianAI/genreshift/services/transform/observability"
	"github.com/AleutianAI/genreshift/services/transform/planner"
)

var tracer = otel.Tracer("genreshift/explore")

// PlanGenerationError reports that the generation service could not
// produce a usable plan list, including after the strict-JSON retry.
type PlanGenerationError struct {
	// Strategy is the plan-generation strategy that was running.
	Strategy Strategy

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *PlanGenerationError) Error() string {
	return fmt.Sprintf("plan generation failed (%s): %v", e.Strategy, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *PlanGenerationError) Unwrap() error {
	return e.Err
}

// Engine generates, evaluates, and ranks transformation plans.
//
// An Engine is immutable after construction and safe for concurrent use.
type Engine struct {
	client        llm.Client
	scorer        *planner.Scorer
	strategy      Strategy
	numPlans      int
	maxConcurrent int
	llmCfg        config.LLMConfig
	retry         llm.RetryPolicy
}

// New builds an exploration engine from validated configuration.
//
// Outputs:
//   - *Engine: Ready-to-use engine.
//   - error: Non-nil when the configured strategy name is unknown.
func New(client llm.Client, scorer *planner.Scorer, cfg config.Config) (*Engine, error) {
	strategy, err := ParseStrategy(cfg.Exploration.Strategy)
	if err != nil {
		return nil, err
	}
	return &Engine{
		client:        client,
		scorer:        scorer,
		strategy:      strategy,
		numPlans:      cfg.Exploration.NumPlans,
		maxConcurrent: cfg.Exploration.MaxConcurrent,
		llmCfg:        cfg.LLM,
		retry: llm.RetryPolicy{
			MaxRetries: cfg.LLM.MaxRetries,
			Backoff:    cfg.LLM.RetryBackoff.Std(),
			OnRetry:    observability.IncRetry,
			Observe:    observability.ObserveLLMRequest,
		},
	}, nil
}

// Strategy returns the engine's plan-generation strategy.
func (e *Engine) Strategy() Strategy {
	return e.strategy
}

// rawPlan is the wire shape of one model-proposed plan.
type rawPlan struct {
	TargetGenre      string          `json:"target_genre"`
	TargetAttributes *attributes.Set `json:"target_attributes"`
	Instruction      string          `json:"instruction"`
}

// planList accepts the documented {"plans": [...]} envelope.
type planList struct {
	Plans []rawPlan `json:"plans"`
}

// GeneratePlans asks the generation service for candidate plans.
//
// # Description
//
// Issues a single completion requesting numPlans candidates under the
// configured strategy. A response that fails to decode triggers exactly
// one stricter retry; a second failure surfaces as *PlanGenerationError.
// A decodable response with fewer plans than requested is accepted with a
// warning. Plans missing fields are completed with genre defaults.
//
// # Inputs
//
//   - ctx: Cancels the service calls.
//   - semanticCore: Content summary the plans must preserve.
//   - original: The source text's attribute set.
//   - userInstruction: Optional constraint every plan must honor.
//
// # Outputs
//
//   - []planner.Plan: One to numPlans normalized candidate plans.
//   - error: ctx.Err(), *llm.ServiceError, or *PlanGenerationError.
func (e *Engine) GeneratePlans(ctx context.Context, semanticCore string, original attributes.Set, userInstruction string) ([]planner.Plan, error) {
	ctx, span := tracer.Start(ctx, "explore.generate_plans")
	defer span.End()
	span.SetAttributes(
		attribute.String("strategy", e.strategy.String()),
		attribute.Int("num_plans", e.numPlans),
	)

	prompt, err := e.renderPrompt(semanticCore, original, userInstruction)
	if err != nil {
		return nil, err
	}

	plans, err := e.requestPlans(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var svcErr *llm.ServiceError
		if errors.As(err, &svcErr) {
			// Service-level retries are already exhausted.
			return nil, err
		}

		// Decode failure: one stricter retry, then give up.
		slog.Warn("Plan list did not decode, retrying with strict JSON directive",
			"strategy", e.strategy.String(), "error", err)
		plans, err = e.requestPlans(ctx, prompt+strictRetrySuffix)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &PlanGenerationError{Strategy: e.strategy, Err: err}
		}
	}

	if len(plans) < e.numPlans {
		slog.Warn("Fewer plans than requested", "want", e.numPlans, "got", len(plans))
	}
	if len(plans) > e.numPlans {
		plans = plans[:e.numPlans]
	}

	out := make([]planner.Plan, 0, len(plans))
	for _, p := range plans {
		out = append(out, normalizePlan(p))
	}
	slog.Info("Generated transformation plans",
		"strategy", e.strategy.String(), "count", len(out))
	return out, nil
}

// requestPlans performs one completion (with service-level retries) and
// decodes the plan list. The returned error is either a service error or
// a decode error; callers inspect ctx to tell cancellation apart.
func (e *Engine) requestPlans(ctx context.Context, prompt string) ([]rawPlan, error) {
	resp, err := e.retry.Do(ctx, e.client, "explore.generate_plans", &llm.Request{
		SystemPrompt: exploreSystemPrompt,
		Prompt:       prompt,
		MaxTokens:    e.llmCfg.MaxTokens,
		Temperature:  e.llmCfg.Temperature,
		JSONOnly:     true,
	})
	if err != nil {
		return nil, err
	}
	return decodePlans(resp.Content)
}

// decodePlans accepts the {"plans": [...]} envelope, a bare array, or a
// single plan object.
func decodePlans(content string) ([]rawPlan, error) {
	payload := []byte(llm.ExtractJSON(content))

	var envelope planList
	if err := json.Unmarshal(payload, &envelope); err == nil && len(envelope.Plans) > 0 {
		return envelope.Plans, nil
	}

	var list []rawPlan
	if err := json.Unmarshal(payload, &list); err == nil && len(list) > 0 {
		return list, nil
	}

	var single rawPlan
	if err := json.Unmarshal(payload, &single); err == nil && (single.TargetGenre != "" || single.Instruction != "") {
		return []rawPlan{single}, nil
	}

	return nil, fmt.Errorf("response contains no decodable plans")
}

// normalizePlan fills the fields a model response may omit.
func normalizePlan(p rawPlan) planner.Plan {
	genre := p.TargetGenre
	if genre == "" {
		genre = attributes.FallbackGenres()[0]
	}

	instruction := p.Instruction
	if instruction == "" {
		instruction = fmt.Sprintf("Transform the content into a %s.", genre)
	}

	var attrs attributes.Set
	switch {
	case p.TargetAttributes != nil && !p.TargetAttributes.IsZero():
		attrs = *p.TargetAttributes
	default:
		if seed, ok := attributes.GenreDefaults(genre); ok {
			attrs = seed
		} else {
			attrs = attributes.FallbackSet()
		}
	}

	return planner.Plan{
		TargetGenre:      genre,
		TargetAttributes: attrs.Normalize(),
		Instruction:      instruction,
	}
}

func (e *Engine) renderPrompt(semanticCore string, original attributes.Set, userInstruction string) (string, error) {
	originalJSON, err := json.MarshalIndent(original.Normalize(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode original attributes: %w", err)
	}

	var tmpl *template.Template
	switch e.strategy {
	case GenrePriority:
		tmpl = genrePriorityPrompt
	case DimensionShift:
		tmpl = dimensionShiftPrompt
	default:
		return "", fmt.Errorf("unknown exploration strategy %q", e.strategy)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, map[string]any{
		"SemanticCore":       semanticCore,
		"OriginalAttributes": string(originalJSON),
		"UserInstruction":    userInstruction,
		"GenreReference":     genreCompatibilityReference,
		"NumPlans":           e.numPlans,
	})
	if err != nil {
		return "", fmt.Errorf("render exploration prompt: %w", err)
	}
	return buf.String(), nil
}

// EvaluatePlans scores every plan, a bounded number at a time.
//
// # Description
//
// Evaluations run concurrently under the configured limit. Output order
// matches input order regardless of completion order. The first failure
// cancels the remaining evaluations and is returned.
//
// # Outputs
//
//   - []planner.EvaluatedPlan: One entry per input plan, same order.
//   - error: The first evaluation failure, or ctx.Err().
func (e *Engine) EvaluatePlans(ctx context.Context, plans []planner.Plan, semanticCore string, original attributes.Set, userInstruction string) ([]planner.EvaluatedPlan, error) {
	ctx, span := tracer.Start(ctx, "explore.evaluate_plans")
	defer span.End()
	span.SetAttributes(attribute.Int("plan_count", len(plans)))

	results := make([]planner.EvaluatedPlan, len(plans))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrent)
	for i, plan := range plans {
		g.Go(func() error {
			eval, err := e.scorer.Score(ctx, plan, semanticCore, original, userInstruction)
			if err != nil {
				return err
			}
			results[i] = planner.EvaluatedPlan{Plan: plan, Evaluation: eval}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Explore runs the full exploration stage: generate, evaluate, rank.
func (e *Engine) Explore(ctx context.Context, semanticCore string, original attributes.Set, userInstruction string) ([]planner.EvaluatedPlan, error) {
	plans, err := e.GeneratePlans(ctx, semanticCore, original, userInstruction)
	if err != nil {
		return nil, err
	}
	evaluated, err := e.EvaluatePlans(ctx, plans, semanticCore, original, userInstruction)
	if err != nil {
		return nil, err
	}
	return Rank(evaluated), nil
}

// Rank orders evaluated plans best first: overall score descending, ties
// broken by consistency score descending, remaining ties keep generation
// order.
func Rank(plans []planner.EvaluatedPlan) []planner.EvaluatedPlan {
	ranked := make([]planner.EvaluatedPlan, len(plans))
	copy(ranked, plans)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].Evaluation, ranked[j].Evaluation
		if a.OverallScore != b.OverallScore {
			return a.OverallScore > b.OverallScore
		}
		return a.ConsistencyScore > b.ConsistencyScore
	})
	return ranked
}

// Shortlist returns the ranked plans meeting the threshold. When none
// qualify, the single best plan is returned so exploration always yields
// at least one candidate.
func Shortlist(ranked []planner.EvaluatedPlan, threshold float64) []planner.EvaluatedPlan {
	if len(ranked) == 0 {
		return nil
	}
	var keep []planner.EvaluatedPlan
	for _, p := range ranked {
		if p.Evaluation.OverallScore >= threshold {
			keep = append(keep, p)
		}
	}
	if len(keep) == 0 {
		return ranked[:1]
	}
	return keep
}
