// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/genreshift/services/transform/attributes"
	"github.com/AleutianAI/genreshift/services/transform/config"
	"github.com/AleutianAI/genreshift/services/transform/llm"
	"github.com/AleutianAI/genreshift/services/transform/planner"
)

// loopClient answers writer prompts with numbered drafts and evaluator
// prompts from a script.
type loopClient struct {
	drafts      []string
	draftErrs   []error
	draftCalls  int
	evaluations []string
	evalErrs    []error
	evalCalls   int
}

func (c *loopClient) Complete(_ context.Context, req *llm.Request) (*llm.Response, error) {
	if strings.Contains(req.SystemPrompt, "evaluator") {
		i := c.evalCalls
		c.evalCalls++
		if i < len(c.evalErrs) && c.evalErrs[i] != nil {
			return nil, c.evalErrs[i]
		}
		if i >= len(c.evaluations) {
			i = len(c.evaluations) - 1
		}
		return &llm.Response{Content: c.evaluations[i]}, nil
	}

	i := c.draftCalls
	c.draftCalls++
	if i < len(c.draftErrs) && c.draftErrs[i] != nil {
		return nil, c.draftErrs[i]
	}
	if i < len(c.drafts) {
		return &llm.Response{Content: c.drafts[i]}, nil
	}
	return &llm.Response{Content: fmt.Sprintf("draft number %d with plenty of body text", i+1)}, nil
}

func (c *loopClient) Name() string  { return "loop" }
func (c *loopClient) Model() string { return "test" }

func uniformScores(v float64) string {
	return fmt.Sprintf(
		`{"semantic_fidelity": %.2f, "attribute_conformity": %.2f, "instruction_adherence": %.2f, "fluency": %.2f}`,
		v, v, v, v)
}

func loopConfig() config.Config {
	cfg := config.Default()
	cfg.Generation.MaxIterations = 2
	cfg.LLM.MaxRetries = 1
	cfg.LLM.RetryBackoff = config.Duration(time.Millisecond)
	return cfg
}

func loopPlan() planner.Plan {
	attrs, _ := attributes.GenreDefaults("blog_post")
	return planner.Plan{
		TargetGenre:      "blog_post",
		TargetAttributes: attrs,
		Instruction:      "Rewrite as an approachable blog post.",
	}
}

func TestRun_BudgetExhaustedKeepsBestAttempt(t *testing.T) {
	client := &loopClient{
		evaluations: []string{uniformScores(0.60), uniformScores(0.65)},
	}
	loop := NewLoop(client, loopConfig())

	result, err := loop.Run(context.Background(), loopPlan(), "core", loopPlan().TargetAttributes)
	require.NoError(t, err)

	assert.Equal(t, StateDone, result.State)
	assert.False(t, result.ThresholdMet)
	require.Len(t, result.Attempts, 2)
	assert.InDelta(t, 0.60, result.Attempts[0].Scores.OverallScore, 1e-9)
	assert.InDelta(t, 0.65, result.Attempts[1].Scores.OverallScore, 1e-9)

	// Attempt 2 scored higher, so its text is the final text.
	assert.Equal(t, result.Attempts[1].Text, result.FinalText)
	assert.Equal(t, 2, client.draftCalls)
}

func TestRun_BestScoringAttemptWinsOverLast(t *testing.T) {
	client := &loopClient{
		evaluations: []string{uniformScores(0.65), uniformScores(0.55)},
	}
	loop := NewLoop(client, loopConfig())

	result, err := loop.Run(context.Background(), loopPlan(), "core", loopPlan().TargetAttributes)
	require.NoError(t, err)

	// The refinement scored worse than the first draft.
	assert.Equal(t, result.Attempts[0].Text, result.FinalText)
	assert.False(t, result.ThresholdMet)
}

func TestRun_StopsAtThreshold(t *testing.T) {
	client := &loopClient{
		evaluations: []string{uniformScores(0.85)},
	}
	cfg := loopConfig()
	cfg.Generation.MaxIterations = 5
	loop := NewLoop(client, cfg)

	result, err := loop.Run(context.Background(), loopPlan(), "core", loopPlan().TargetAttributes)
	require.NoError(t, err)

	assert.True(t, result.ThresholdMet)
	assert.Len(t, result.Attempts, 1)
	assert.Equal(t, 1, client.draftCalls, "no refinement after the threshold is met")
}

func TestRun_PostProcessingDisabled(t *testing.T) {
	client := &loopClient{
		evaluations: []string{uniformScores(0.10)},
	}
	cfg := loopConfig()
	cfg.Generation.PostProcessing = false
	cfg.Generation.MaxIterations = 5
	loop := NewLoop(client, cfg)

	result, err := loop.Run(context.Background(), loopPlan(), "core", loopPlan().TargetAttributes)
	require.NoError(t, err)

	// Exactly one generation and one evaluation, regardless of score.
	assert.Len(t, result.Attempts, 1)
	assert.Equal(t, 1, client.draftCalls)
	assert.Equal(t, 1, client.evalCalls)
	assert.Equal(t, StateDone, result.State)
	assert.False(t, result.ThresholdMet)
}

func TestRun_FailureMidLoopPreservesAttempts(t *testing.T) {
	boom := errors.New("connection reset")
	client := &loopClient{
		evaluations: []string{uniformScores(0.60)},
		// First draft succeeds; the refinement call fails through all
		// retries.
		draftErrs: []error{nil, boom, boom},
	}
	loop := NewLoop(client, loopConfig())

	result, err := loop.Run(context.Background(), loopPlan(), "core", loopPlan().TargetAttributes)
	require.Error(t, err)

	var svcErr *llm.ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, "generate.refine", svcErr.Op)

	require.NotNil(t, result)
	assert.Equal(t, StateFailed, result.State)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, result.Attempts[0].Text, result.FinalText, "partial progress is preserved")
}

func TestRun_MalformedEvaluationRetried(t *testing.T) {
	client := &loopClient{
		evaluations: []string{
			"The text reads well overall, maybe an 8 out of 10.",
			uniformScores(0.85),
		},
	}
	loop := NewLoop(client, loopConfig())

	result, err := loop.Run(context.Background(), loopPlan(), "core", loopPlan().TargetAttributes)
	require.NoError(t, err)

	assert.Equal(t, 2, client.evalCalls, "the undecodable evaluation consumed a retry")
	assert.True(t, result.ThresholdMet)
	require.Len(t, result.Attempts, 1)
	assert.InDelta(t, 0.85, result.Attempts[0].Scores.OverallScore, 1e-9)
}

func TestRun_MalformedEvaluationsExhaustRetries(t *testing.T) {
	client := &loopClient{
		evaluations: []string{"The text reads well overall, maybe an 8 out of 10."},
	}
	loop := NewLoop(client, loopConfig())

	result, err := loop.Run(context.Background(), loopPlan(), "core", loopPlan().TargetAttributes)
	require.Error(t, err)

	var svcErr *llm.ServiceError
	require.True(t, errors.As(err, &svcErr), "undecodable evaluations surface as a service failure")
	assert.Equal(t, "generate.evaluate", svcErr.Op)
	assert.Equal(t, 2, client.evalCalls, "one attempt plus one retry")
	assert.Equal(t, StateFailed, result.State)
}

func TestRun_ClampsAndDefaultsCriteria(t *testing.T) {
	client := &loopClient{
		evaluations: []string{
			`{"semantic_fidelity": 1.3, "attribute_conformity": -0.4, "instruction_adherence": 0.9}`,
		},
	}
	cfg := loopConfig()
	cfg.Generation.MaxIterations = 1
	loop := NewLoop(client, cfg)

	result, err := loop.Run(context.Background(), loopPlan(), "core", loopPlan().TargetAttributes)
	require.NoError(t, err)

	s := result.Attempts[0].Scores
	assert.InDelta(t, 1.0, s.SemanticFidelity, 1e-9)
	assert.InDelta(t, 0.0, s.AttributeConformity, 1e-9)
	assert.InDelta(t, 0.9, s.InstructionAdherence, 1e-9)
	assert.InDelta(t, neutralFluency, s.Fluency, 1e-9, "missing fluency takes the neutral default")
}

func TestRun_ShortRefinementStopsLoop(t *testing.T) {
	long := strings.Repeat("a solid paragraph of content. ", 20)
	client := &loopClient{
		drafts:      []string{long, "tiny"},
		evaluations: []string{uniformScores(0.60)},
	}
	loop := NewLoop(client, loopConfig())

	result, err := loop.Run(context.Background(), loopPlan(), "core", loopPlan().TargetAttributes)
	require.NoError(t, err)

	// The collapsed refinement is discarded, keeping the first draft.
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, long, result.FinalText)
	assert.Equal(t, StateDone, result.State)
}

func TestOverall_CustomWeights(t *testing.T) {
	cfg := loopConfig()
	cfg.Generation.QualityWeights = &config.QualityWeights{
		SemanticFidelity:     2,
		AttributeConformity:  1,
		InstructionAdherence: 1,
		Fluency:              0,
	}
	loop := NewLoop(&loopClient{}, cfg)

	overall := loop.Overall(QualityScores{
		SemanticFidelity:     1.0,
		AttributeConformity:  0.5,
		InstructionAdherence: 0.5,
		Fluency:              0.0,
	})
	// (1.0*2 + 0.5 + 0.5) / 4 = 0.75
	assert.InDelta(t, 0.75, overall, 1e-9)
}

func TestOverall_DefaultIsMean(t *testing.T) {
	loop := NewLoop(&loopClient{}, loopConfig())
	overall := loop.Overall(QualityScores{
		SemanticFidelity:     0.8,
		AttributeConformity:  0.6,
		InstructionAdherence: 0.7,
		Fluency:              0.9,
	})
	assert.InDelta(t, 0.75, overall, 1e-9)
}

func TestImprovementBullets(t *testing.T) {
	bullets := improvementBullets(QualityScores{
		SemanticFidelity:     0.5,
		AttributeConformity:  0.9,
		InstructionAdherence: 0.6,
		Fluency:              0.9,
	}, "keep it short")

	assert.Contains(t, bullets, "semantic fidelity")
	assert.Contains(t, bullets, "keep it short")
	assert.NotContains(t, bullets, "fluency, coherence")

	// Nothing below threshold still yields a generic bullet.
	assert.NotEmpty(t, improvementBullets(QualityScores{
		SemanticFidelity: 1, AttributeConformity: 1, InstructionAdherence: 1, Fluency: 1,
	}, ""))
}
