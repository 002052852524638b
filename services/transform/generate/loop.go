// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generate implements the generation loop: produce a draft,
// evaluate it against a four-criterion quality rubric, and refine until
// the quality threshold is met or the iteration budget runs out.
//
// The loop is strictly sequential: each refinement consumes the previous
// attempt's text and scores. The final text is always the best-scoring
// attempt, which need not be the last one.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/genreshift/services/transform/attributes"
	"github.com/AleutianAI/genreshift/services/transform/config"
	"github.com/AleutianAI/genreshift/services/transform/llm"
	"github.com/AleutianAI/genreshift/services/transform/observability"
	"github.com/AleutianAI/genreshift/services/transform/planner"
)

var tracer = otel.Tracer("genreshift/generate")

// State labels a generation run's position in the loop.
type State string

const (
	StateNotStarted State = "not_started"
	StateGenerating State = "generating"
	StateEvaluating State = "evaluating"
	StateRefining   State = "refining"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// QualityScores is the four-criterion rubric plus the combined overall
// score. All values live in [0, 1].
type QualityScores struct {
	SemanticFidelity     float64 `json:"semantic_fidelity"`
	AttributeConformity  float64 `json:"attribute_conformity"`
	InstructionAdherence float64 `json:"instruction_adherence"`
	Fluency              float64 `json:"fluency"`
	OverallScore         float64 `json:"overall_score"`

	// Comments is the evaluator's free-text feedback, fed into the next
	// refinement prompt.
	Comments string `json:"comments,omitempty"`
}

// Attempt is one generate-or-refine round with its evaluation.
type Attempt struct {
	// Iteration numbers attempts from 1.
	Iteration int `json:"iteration"`

	Text   string        `json:"text"`
	Scores QualityScores `json:"scores"`
}

// Result is the outcome of a generation run.
type Result struct {
	// FinalText is the text of the best-scoring attempt.
	FinalText string `json:"final_text"`

	// Attempts holds every attempt in order, including failed-threshold
	// ones. Never empty on a Done result; may hold partial progress on a
	// Failed one.
	Attempts []Attempt `json:"attempts"`

	// State is Done or Failed.
	State State `json:"state"`

	// ThresholdMet reports whether any attempt reached the quality
	// threshold. Exhausting the budget without reaching it is not an
	// error.
	ThresholdMet bool `json:"threshold_met"`
}

// Best returns the highest-scoring attempt. Earlier attempts win ties.
func (r *Result) Best() (Attempt, bool) {
	if len(r.Attempts) == 0 {
		return Attempt{}, false
	}
	best := r.Attempts[0]
	for _, a := range r.Attempts[1:] {
		if a.Scores.OverallScore > best.Scores.OverallScore {
			best = a
		}
	}
	return best, true
}

// Loop drives generation for one plan at a time.
//
// A Loop is immutable after construction and safe for concurrent use;
// per-run state lives in the Result.
type Loop struct {
	client  llm.Client
	cfg     config.GenerationConfig
	llmCfg  config.LLMConfig
	retry   llm.RetryPolicy
	weights config.QualityWeights
}

// NewLoop builds a generation loop from validated configuration.
func NewLoop(client llm.Client, cfg config.Config) *Loop {
	weights := config.QualityWeights{SemanticFidelity: 1, AttributeConformity: 1, InstructionAdherence: 1, Fluency: 1}
	if cfg.Generation.QualityWeights != nil {
		weights = *cfg.Generation.QualityWeights
	}
	return &Loop{
		client:  client,
		cfg:     cfg.Generation,
		llmCfg:  cfg.LLM,
		weights: weights,
		retry: llm.RetryPolicy{
			MaxRetries: cfg.LLM.MaxRetries,
			Backoff:    cfg.LLM.RetryBackoff.Std(),
			OnRetry:    observability.IncRetry,
			Observe:    observability.ObserveLLMRequest,
		},
	}
}

// Run executes the generation loop for one plan.
//
// # Description
//
// Generates a draft, evaluates it, and refines it while the overall score
// stays below the quality threshold and iterations remain. With
// post-processing disabled the loop performs exactly one generation and
// one evaluation. A service failure mid-loop returns a Failed result
// carrying the attempts completed so far alongside the error.
//
// # Inputs
//
//   - ctx: Cancels the service calls.
//   - plan: The selected transformation plan.
//   - semanticCore: Content the output must preserve.
//   - finalAttrs: Combined attribute set the output should exhibit.
//
// # Outputs
//
//   - *Result: Always non-nil; State tells Done from Failed.
//   - error: Non-nil exactly when State is Failed.
func (l *Loop) Run(ctx context.Context, plan planner.Plan, semanticCore string, finalAttrs attributes.Set) (*Result, error) {
	ctx, span := tracer.Start(ctx, "generate.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("target_genre", plan.TargetGenre),
		attribute.Int("max_iterations", l.cfg.MaxIterations),
	)

	result := &Result{State: StateNotStarted}
	fail := func(err error) (*Result, error) {
		result.State = StateFailed
		if best, ok := result.Best(); ok {
			result.FinalText = best.Text
		}
		return result, err
	}

	maxIterations := l.cfg.MaxIterations
	if !l.cfg.PostProcessing {
		maxIterations = 1
	}

	var prev Attempt
	for iteration := 1; iteration <= maxIterations; iteration++ {
		result.State = StateGenerating
		var (
			text string
			err  error
		)
		if iteration == 1 {
			text, err = l.generateDraft(ctx, plan, semanticCore, finalAttrs)
		} else {
			result.State = StateRefining
			text, err = l.refineDraft(ctx, plan, semanticCore, finalAttrs, prev)
		}
		if err != nil {
			return fail(err)
		}

		if iteration > 1 && len(text) < len(prev.Text)/2 {
			// Refinement collapsed the text; keep what we have.
			slog.Warn("Refined text suspiciously short, stopping refinement",
				"iteration", iteration, "prev_len", len(prev.Text), "len", len(text))
			break
		}

		result.State = StateEvaluating
		scores, err := l.evaluate(ctx, plan, semanticCore, finalAttrs, text)
		if err != nil {
			return fail(err)
		}

		attempt := Attempt{Iteration: iteration, Text: text, Scores: scores}
		result.Attempts = append(result.Attempts, attempt)
		prev = attempt

		slog.Info("Evaluated generation attempt",
			"iteration", iteration,
			"overall_score", scores.OverallScore,
			"threshold", l.cfg.QualityThreshold)

		if scores.OverallScore >= l.cfg.QualityThreshold {
			result.ThresholdMet = true
			break
		}
	}

	best, ok := result.Best()
	if !ok {
		return fail(fmt.Errorf("generation produced no attempts"))
	}
	result.FinalText = best.Text
	result.State = StateDone

	observability.ObserveGenerationIterations(len(result.Attempts))
	slog.Info("Generation loop finished",
		"attempts", len(result.Attempts),
		"best_iteration", best.Iteration,
		"best_score", best.Scores.OverallScore,
		"threshold_met", result.ThresholdMet)
	return result, nil
}

func (l *Loop) generateDraft(ctx context.Context, plan planner.Plan, semanticCore string, finalAttrs attributes.Set) (string, error) {
	attrs := finalAttrs.Normalize()
	prompt, err := render(generatePrompt, map[string]string{
		"TargetGenre":           plan.TargetGenre,
		"SemanticCore":          semanticCore,
		"FunctionPurpose":       attrs.FunctionPurpose,
		"AudienceContext":       attrs.AudienceContext,
		"StructureOrganization": attrs.StructureOrganization,
		"Strategy":              attrs.Strategy,
		"Conventions":           attrs.Conventions,
		"InformationDensity":    attrs.Linguistic.InformationDensity,
		"Interactivity":         attrs.Linguistic.Interactivity,
		"Emotion":               attrs.Linguistic.Emotion,
		"Tone":                  attrs.Linguistic.Tone,
		"Instruction":           plan.Instruction,
	})
	if err != nil {
		return "", err
	}
	return l.completeText(ctx, "generate.draft", prompt)
}

func (l *Loop) refineDraft(ctx context.Context, plan planner.Plan, semanticCore string, finalAttrs attributes.Set, prev Attempt) (string, error) {
	attrsJSON, err := json.MarshalIndent(finalAttrs.Normalize(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode target attributes: %w", err)
	}

	prompt, err := render(refinePrompt, map[string]string{
		"TargetGenre":      plan.TargetGenre,
		"SemanticCore":     semanticCore,
		"TargetAttributes": string(attrsJSON),
		"Instruction":      plan.Instruction,
		"Text":             prev.Text,
		"QualityIssues":    prev.Scores.Comments,
		"Improvements":     improvementBullets(prev.Scores, plan.Instruction),
	})
	if err != nil {
		return "", err
	}
	return l.completeText(ctx, "generate.refine", prompt)
}

func (l *Loop) completeText(ctx context.Context, op, prompt string) (string, error) {
	resp, err := l.retry.Do(ctx, l.client, op, &llm.Request{
		SystemPrompt: generateSystemPrompt,
		Prompt:       prompt,
		MaxTokens:    l.llmCfg.MaxTokens,
		Temperature:  l.llmCfg.Temperature,
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", &llm.ServiceError{Op: op, Err: llm.ErrEmptyResponse}
	}
	return text, nil
}

// rawScores is the wire shape of the evaluator's judgment. Pointer
// fields distinguish absent criteria from literal zeros.
type rawScores struct {
	SemanticFidelity     *float64 `json:"semantic_fidelity"`
	AttributeConformity  *float64 `json:"attribute_conformity"`
	InstructionAdherence *float64 `json:"instruction_adherence"`
	Fluency              *float64 `json:"fluency"`
	Comments             string   `json:"comments"`
}

// Neutral substitutes for criteria the evaluator did not return.
const (
	neutralCriterion = 0.75
	neutralFluency   = 0.8
)

func (l *Loop) evaluate(ctx context.Context, plan planner.Plan, semanticCore string, finalAttrs attributes.Set, text string) (QualityScores, error) {
	attrsJSON, err := json.MarshalIndent(finalAttrs.Normalize(), "", "  ")
	if err != nil {
		return QualityScores{}, fmt.Errorf("encode target attributes: %w", err)
	}

	prompt, err := render(evaluatePrompt, map[string]string{
		"SemanticCore":     semanticCore,
		"TargetAttributes": string(attrsJSON),
		"Instruction":      plan.Instruction,
		"Text":             text,
	})
	if err != nil {
		return QualityScores{}, err
	}

	// Malformed evaluator responses are retried under the same bounded
	// policy as transport failures.
	var raw rawScores
	_, err = l.retry.DoDecode(ctx, l.client, "generate.evaluate", &llm.Request{
		SystemPrompt: evaluateSystemPrompt,
		Prompt:       prompt,
		MaxTokens:    l.llmCfg.MaxTokens,
		Temperature:  l.llmCfg.Temperature,
		JSONOnly:     true,
	}, func(resp *llm.Response) error {
		var r rawScores
		if err := json.Unmarshal([]byte(llm.ExtractJSON(resp.Content)), &r); err != nil {
			return fmt.Errorf("decode quality evaluation: %w", err)
		}
		raw = r
		return nil
	})
	if err != nil {
		return QualityScores{}, err
	}

	scores := QualityScores{
		SemanticFidelity:     clampScore("semantic_fidelity", raw.SemanticFidelity, neutralCriterion),
		AttributeConformity:  clampScore("attribute_conformity", raw.AttributeConformity, neutralCriterion),
		InstructionAdherence: clampScore("instruction_adherence", raw.InstructionAdherence, neutralCriterion),
		Fluency:              clampScore("fluency", raw.Fluency, neutralFluency),
		Comments:             raw.Comments,
	}
	scores.OverallScore = l.Overall(scores)
	return scores, nil
}

// Overall combines the four criteria. With default weights this is the
// arithmetic mean.
func (l *Loop) Overall(s QualityScores) float64 {
	w := l.weights
	total := w.SemanticFidelity + w.AttributeConformity + w.InstructionAdherence + w.Fluency
	if total <= 0 {
		return 0
	}
	sum := s.SemanticFidelity*w.SemanticFidelity +
		s.AttributeConformity*w.AttributeConformity +
		s.InstructionAdherence*w.InstructionAdherence +
		s.Fluency*w.Fluency
	return sum / total
}

// refinementThreshold is the per-criterion score below which a concrete
// improvement bullet is added to the refinement prompt.
const refinementThreshold = 0.7

func improvementBullets(s QualityScores, instruction string) string {
	var bullets []string
	if s.SemanticFidelity < refinementThreshold {
		bullets = append(bullets, "Improve semantic fidelity by ensuring all key information from the semantic core is included")
	}
	if s.AttributeConformity < refinementThreshold {
		bullets = append(bullets, "Better align with target attributes, especially regarding tone, style, and structure")
	}
	if s.InstructionAdherence < refinementThreshold {
		bullets = append(bullets, fmt.Sprintf("Follow the instruction more closely: %q", instruction))
	}
	if s.Fluency < refinementThreshold {
		bullets = append(bullets, "Improve overall fluency, coherence, and readability")
	}
	if len(bullets) == 0 {
		bullets = append(bullets, "Polish the text further while keeping all content intact")
	}

	var b strings.Builder
	for _, bullet := range bullets {
		b.WriteString("- ")
		b.WriteString(bullet)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// clampScore forces a raw criterion score into [0, 1], logging a warning
// when the model strayed out of range. Absent scores become the neutral
// default.
func clampScore(name string, v *float64, neutral float64) float64 {
	if v == nil {
		slog.Warn("Quality evaluation missing criterion, using neutral score",
			"criterion", name, "neutral", neutral)
		return neutral
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

func render(tmpl *template.Template, data map[string]string) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
