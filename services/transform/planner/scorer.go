// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/AleutianAI/genreshift/services/transform/attributes"
	"github.com/AleutianAI/genreshift/services/transform/config"
	"github.com/AleutianAI/genreshift/services/transform/llm"
	"github.com/AleutianAI/genreshift/services/transform/observability"
)

const scorerSystemPrompt = "You are a transformation plan evaluator. " +
	"You judge whether a proposed genre transformation fits the source content."

const evaluatePlanPromptText = `# Task: Evaluate a genre transformation plan.

## Semantic Core:
{{.SemanticCore}}

## Original Attributes:
{{.OriginalAttributes}}

## Transformation Plan:
{{.Plan}}
{{if .UserInstruction}}
## User Instruction (the plan must be judged against it):
{{.UserInstruction}}
{{end}}
## Instructions:
Score the plan on three criteria, each between 0.0 and 1.0:
- consistency_score: how well the target genre and attributes fit the semantic core
- feasibility_score: whether the transformation can be performed without losing essential meaning
- value_score: how much the transformation adds for the target audience

Return JSON with exactly these fields:
{"consistency_score": <float>, "feasibility_score": <float>, "value_score": <float>, "rationale": "<one or two sentences>"}`

var evaluatePlanPrompt = template.Must(template.New("evaluate_plan").Parse(evaluatePlanPromptText))

// Scorer evaluates transformation plans through the generation service.
//
// A Scorer is immutable after construction and safe for concurrent use.
type Scorer struct {
	client  llm.Client
	weights config.EvaluationConfig
	retry   llm.RetryPolicy
	llmCfg  config.LLMConfig
}

// NewScorer builds a Scorer from validated configuration.
func NewScorer(client llm.Client, cfg config.Config) *Scorer {
	return &Scorer{
		client:  client,
		weights: cfg.Exploration.Evaluation,
		llmCfg:  cfg.LLM,
		retry: llm.RetryPolicy{
			MaxRetries: cfg.LLM.MaxRetries,
			Backoff:    cfg.LLM.RetryBackoff.Std(),
			OnRetry:    observability.IncRetry,
			Observe:    observability.ObserveLLMRequest,
		},
	}
}

// rawEvaluation is the wire shape of the model's judgment. Pointer fields
// distinguish absent criteria from literal zeros.
type rawEvaluation struct {
	ConsistencyScore *float64 `json:"consistency_score"`
	FeasibilityScore *float64 `json:"feasibility_score"`
	ValueScore       *float64 `json:"value_score"`
	Rationale        string   `json:"rationale"`
}

// Score evaluates one plan against the source content.
//
// # Description
//
// Prompts the generation service for raw criterion scores, clamps
// out-of-range values into [0, 1] with a warning, fills absent criteria
// with a neutral 0.7, and combines them into the weighted overall score.
// The recommendation label is Recommended exactly when the overall score
// meets the configured threshold.
//
// # Inputs
//
//   - ctx: Cancels the service calls.
//   - plan: The plan to judge.
//   - semanticCore: Content summary the plan must preserve.
//   - original: The source text's attribute set.
//   - userInstruction: Optional constraint the plan must honor; empty
//     when the user supplied none.
//
// # Outputs
//
//   - Evaluation: Scores in [0, 1] plus the recommendation label.
//   - error: ctx.Err() on cancellation, *llm.ServiceError once retries
//     are exhausted. An undecodable response is retried like any other
//     service failure, never surfaced as a fast-fail.
func (s *Scorer) Score(ctx context.Context, plan Plan, semanticCore string, original attributes.Set, userInstruction string) (Evaluation, error) {
	prompt, err := s.renderPrompt(plan, semanticCore, original, userInstruction)
	if err != nil {
		return Evaluation{}, err
	}

	var raw rawEvaluation
	_, err = s.retry.DoDecode(ctx, s.client, "plan.score", &llm.Request{
		SystemPrompt: scorerSystemPrompt,
		Prompt:       prompt,
		MaxTokens:    s.llmCfg.MaxTokens,
		Temperature:  s.llmCfg.Temperature,
		JSONOnly:     true,
	}, func(resp *llm.Response) error {
		var r rawEvaluation
		if err := json.Unmarshal([]byte(llm.ExtractJSON(resp.Content)), &r); err != nil {
			return fmt.Errorf("decode plan evaluation: %w", err)
		}
		raw = r
		return nil
	})
	if err != nil {
		return Evaluation{}, err
	}

	eval := Evaluation{
		ConsistencyScore: clampScore("consistency_score", raw.ConsistencyScore),
		FeasibilityScore: clampScore("feasibility_score", raw.FeasibilityScore),
		ValueScore:       clampScore("value_score", raw.ValueScore),
		Rationale:        raw.Rationale,
	}
	eval.OverallScore = s.Overall(eval.ConsistencyScore, eval.FeasibilityScore, eval.ValueScore)
	eval.Recommendation = s.recommend(eval.OverallScore)

	observability.ObservePlanScore(eval.OverallScore)
	slog.Debug("Scored transformation plan",
		"target_genre", plan.TargetGenre,
		"overall_score", eval.OverallScore,
		"recommendation", eval.Recommendation)
	return eval, nil
}

// Overall combines the three criterion scores into the weighted overall
// score: sum(w_i * s_i) / sum(w_i).
func (s *Scorer) Overall(consistency, feasibility, value float64) float64 {
	w := s.weights
	total := w.ConsistencyWeight + w.FeasibilityWeight + w.ValueWeight
	if total <= 0 {
		// Validate rejects this; guard against a hand-built Scorer.
		return 0
	}
	return (consistency*w.ConsistencyWeight + feasibility*w.FeasibilityWeight + value*w.ValueWeight) / total
}

// Threshold returns the configured recommendation threshold.
func (s *Scorer) Threshold() float64 {
	return s.weights.Threshold
}

func (s *Scorer) recommend(overall float64) string {
	if overall >= s.weights.Threshold {
		return Recommended
	}
	return NotRecommended
}

func (s *Scorer) renderPrompt(plan Plan, semanticCore string, original attributes.Set, userInstruction string) (string, error) {
	originalJSON, err := json.MarshalIndent(original.Normalize(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode original attributes: %w", err)
	}
	planJSON, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode plan: %w", err)
	}

	var buf bytes.Buffer
	err = evaluatePlanPrompt.Execute(&buf, map[string]string{
		"SemanticCore":       semanticCore,
		"OriginalAttributes": string(originalJSON),
		"Plan":               string(planJSON),
		"UserInstruction":    userInstruction,
	})
	if err != nil {
		return "", fmt.Errorf("render evaluation prompt: %w", err)
	}
	return buf.String(), nil
}

// neutralScore substitutes for a criterion the model did not return.
const neutralScore = 0.7

// clampScore forces a raw criterion score into [0, 1], logging a warning
// when the model strayed out of range. Absent scores become neutral.
func clampScore(name string, v *float64) float64 {
	if v == nil {
		slog.Warn("Evaluation response missing criterion, using neutral score",
			"criterion", name, "neutral", neutralScore)
		return neutralScore
	}
	switch {
	case *v < 0:
		slog.Warn("Criterion score out of range, clamping", "criterion", name, "raw", *v, "clamped", 0.0)
		return 0
	case *v > 1:
		slog.Warn("Criterion score out of range, clamping", "criterion", name, "raw", *v, "clamped", 1.0)
		return 1
	default:
		return *v
	}
}
