// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package planner defines transformation plans and their quality scoring.
//
// A Plan names a target genre, the attribute set the output should
// exhibit, and a high-level transformation instruction. The Scorer asks
// the generation service to judge a plan on three criteria and combines
// the raw scores into a weighted overall score with a recommendation
// label. Selection is left to callers; a low score never blocks a plan.
package planner

import (
	"github.com/AleutianAI/genreshift/services/transform/attributes"
)

// Recommendation labels attached to evaluated plans. Labels are advisory:
// a "Not Recommended" plan remains fully selectable.
const (
	Recommended    = "Recommended"
	NotRecommended = "Not Recommended"
)

// Plan is a candidate transformation: the genre to produce, the attribute
// set the output should exhibit, and the instruction guiding generation.
type Plan struct {
	// TargetGenre is a free-form genre name. Any string is legal; the
	// known-genre tables only seed defaults.
	TargetGenre string `json:"target_genre"`

	// TargetAttributes describes the style the output should have.
	TargetAttributes attributes.Set `json:"target_attributes"`

	// Instruction is the high-level transformation directive handed to
	// the generation loop.
	Instruction string `json:"instruction"`
}

// Evaluation is the scored judgment of a single plan.
//
// All scores live in [0, 1]. Raw model output outside that range is
// clamped before it lands here.
type Evaluation struct {
	// ConsistencyScore judges fit between the plan and the source
	// content's semantic core.
	ConsistencyScore float64 `json:"consistency_score"`

	// FeasibilityScore judges whether the transformation is achievable
	// without losing essential meaning.
	FeasibilityScore float64 `json:"feasibility_score"`

	// ValueScore judges how much the transformation would add for the
	// target audience.
	ValueScore float64 `json:"value_score"`

	// OverallScore is the weighted combination of the three criteria.
	OverallScore float64 `json:"overall_score"`

	// Recommendation is Recommended when OverallScore meets the
	// configured threshold, NotRecommended otherwise.
	Recommendation string `json:"recommendation"`

	// Rationale is the model's free-text justification, when provided.
	Rationale string `json:"rationale,omitempty"`
}

// EvaluatedPlan pairs a plan with its evaluation.
type EvaluatedPlan struct {
	Plan       Plan       `json:"plan"`
	Evaluation Evaluation `json:"evaluation"`
}
