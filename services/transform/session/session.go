// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session implements the pipeline session: one transformation
// request from input document to output document.
//
// A Session is ephemeral. It owns the semantic core, the original
// attributes, the ranked plan list, the selected plan, the attempt
// history, and the final output, and is discarded once the output is
// emitted. No state crosses sessions.
//
// # State Machine
//
//	Idle → GeneratingPlans → EvaluatingPlans → AwaitingReview
//	     → PlanSelected → Generating → Done | Failed
//
// The exploration labels name the work in flight; a stage's completion
// is visible as the next state, with AwaitingReview marking the end of
// exploration.
//
// AwaitingReview is an explicit paused state: the session sits there
// until a plan is selected (by an operator or by SelectTop), so the
// pipeline never blocks in-process waiting for a human. Cancel is legal
// at any non-terminal point and keeps computed evaluations; Resume
// returns a cancelled session to the stage boundary it left.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. The blocking stages
// (Explore, Generate) hold no lock while the generation service is in
// flight.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/genreshift/services/transform/attributes"
	"github.com/AleutianAI/genreshift/services/transform/config"
	"github.com/AleutianAI/genreshift/services/transform/explore"
	"github.com/AleutianAI/genreshift/services/transform/generate"
	"github.com/AleutianAI/genreshift/services/transform/llm"
	"github.com/AleutianAI/genreshift/services/transform/observability"
	"github.com/AleutianAI/genreshift/services/transform/planner"
)

var tracer = otel.Tracer("genreshift/session")

// State labels a session's position in its lifecycle.
type State string

const (
	StateIdle            State = "idle"
	StateGeneratingPlans State = "generating_plans"
	StateEvaluatingPlans State = "evaluating_plans"
	StateAwaitingReview  State = "awaiting_review"
	StatePlanSelected    State = "plan_selected"
	StateGenerating      State = "generating"
	StateDone            State = "done"
	StateFailed          State = "failed"
	StateCancelled       State = "cancelled"
)

// terminal reports whether no further transitions are legal.
func (s State) terminal() bool {
	return s == StateDone || s == StateFailed
}

// InputDocument is the request shape handed to a session. All fields are
// optional individually, but a semantic core must be derivable: either
// SemanticCore or OriginalText must be non-empty.
type InputDocument struct {
	OriginalText       string          `json:"original_text,omitempty" yaml:"original_text,omitempty"`
	SemanticCore       string          `json:"semantic_core,omitempty" yaml:"semantic_core,omitempty"`
	OriginalAttributes *attributes.Set `json:"original_attributes,omitempty" yaml:"original_attributes,omitempty"`
	UserInstruction    string          `json:"user_instruction,omitempty" yaml:"user_instruction,omitempty"`
}

// OutputDocument is the result shape emitted by a session. On a failed
// session it carries whatever the pipeline computed before the failure.
type OutputDocument struct {
	SessionID           string                  `json:"session_id"`
	State               State                   `json:"state"`
	SemanticCore        string                  `json:"semantic_core"`
	OriginalAttributes  attributes.Set          `json:"original_attributes"`
	TransformationPlans []planner.EvaluatedPlan `json:"transformation_plans"`
	SelectedPlan        *planner.Plan           `json:"selected_plan,omitempty"`
	FinalText           string                  `json:"final_text,omitempty"`
	Attempts            []generate.Attempt      `json:"generation_attempts,omitempty"`
}

// Session drives one transformation request through exploration, review,
// and generation.
type Session struct {
	id        string
	engine    *explore.Engine
	loop      *generate.Loop
	dims      attributes.Dimensions
	threshold float64 // plan recommendation threshold

	mu       sync.Mutex
	state    State
	resumeTo State // stage boundary a cancelled session returns to

	semanticCore    string
	originalAttrs   attributes.Set
	userInstruction string

	ranked   []planner.EvaluatedPlan
	selected *planner.Plan
	result   *generate.Result
	lastErr  error
}

// New creates a session for one input document.
//
// # Description
//
// The semantic core is taken from the input document directly, falling
// back to the original text when no pre-extracted core is supplied
// (extraction itself is an upstream concern). Original attributes
// default to the empty set, which Combine later seeds from the selected
// plan's genre.
//
// # Outputs
//
//   - *Session: A session in StateIdle.
//   - error: Non-nil when no semantic core can be derived.
func New(engine *explore.Engine, loop *generate.Loop, cfg config.Config, input InputDocument) (*Session, error) {
	core := input.SemanticCore
	if core == "" {
		core = input.OriginalText
	}
	if core == "" {
		return nil, fmt.Errorf("input document carries neither semantic_core nor original_text")
	}

	var original attributes.Set
	if input.OriginalAttributes != nil {
		original = *input.OriginalAttributes
	}

	return &Session{
		id:              uuid.NewString(),
		engine:          engine,
		loop:            loop,
		dims:            cfg.Dimensions,
		threshold:       cfg.Exploration.Evaluation.Threshold,
		state:           StateIdle,
		resumeTo:        StateIdle,
		semanticCore:    core,
		originalAttrs:   original.Normalize(),
		userInstruction: input.UserInstruction,
	}, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Plans returns the ranked evaluated plans, best first. Empty before
// exploration completes.
func (s *Session) Plans() []planner.EvaluatedPlan {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]planner.EvaluatedPlan, len(s.ranked))
	copy(out, s.ranked)
	return out
}

// Explore runs the exploration stage and pauses at AwaitingReview.
//
// # Description
//
// Generates candidate plans, evaluates them concurrently, ranks them,
// and parks the session for plan selection. Legal from StateIdle only;
// a cancelled session that never finished exploration resumes back to
// Idle and may call Explore again.
//
// # Outputs
//
//   - error: Plan generation or evaluation failure; the session moves to
//     StateFailed except on cancellation, which moves it to
//     StateCancelled with partial results kept.
func (s *Session) Explore(ctx context.Context) error {
	if err := s.transition(StateIdle, StateGeneratingPlans); err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "session.explore",
		trace.WithAttributes(attribute.String("session_id", s.id)))
	defer span.End()

	plans, err := s.engine.GeneratePlans(ctx, s.semanticCore, s.originalAttrs, s.userInstruction)
	if err != nil {
		span.SetStatus(codes.Error, "plan generation failed")
		return s.fail(ctx, err, StateIdle)
	}
	s.setState(StateEvaluatingPlans)

	evaluated, err := s.engine.EvaluatePlans(ctx, plans, s.semanticCore, s.originalAttrs, s.userInstruction)
	if err != nil {
		span.SetStatus(codes.Error, "plan evaluation failed")
		return s.fail(ctx, err, StateIdle)
	}

	ranked := explore.Rank(evaluated)

	s.mu.Lock()
	s.ranked = ranked
	s.state = StateAwaitingReview
	s.resumeTo = StateAwaitingReview
	s.mu.Unlock()

	slog.Info("Session awaiting plan review",
		"session_id", s.id,
		"plans", len(ranked),
		"recommended", len(explore.Shortlist(ranked, s.threshold)))
	return nil
}

// SelectPlan picks the ranked plan at index as the selected plan. Index 0
// is the top-ranked plan. Any plan may be selected regardless of its
// recommendation label.
func (s *Session) SelectPlan(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingReview {
		return fmt.Errorf("cannot select a plan in state %q", s.state)
	}
	if index < 0 || index >= len(s.ranked) {
		return fmt.Errorf("plan index %d out of range (have %d plans)", index, len(s.ranked))
	}

	plan := s.ranked[index].Plan
	s.selected = &plan
	s.state = StatePlanSelected
	s.resumeTo = StatePlanSelected
	slog.Info("Plan selected",
		"session_id", s.id,
		"index", index,
		"target_genre", plan.TargetGenre,
		"attribute_shifts", len(attributes.Diff(s.originalAttrs, plan.TargetAttributes)))
	return nil
}

// SelectEditedPlan installs an operator-edited plan in place of the
// ranked candidates. The review gate may confirm or rewrite; both land
// here.
func (s *Session) SelectEditedPlan(plan planner.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingReview {
		return fmt.Errorf("cannot select a plan in state %q", s.state)
	}
	if plan.TargetGenre == "" {
		return fmt.Errorf("edited plan must name a target genre")
	}

	plan.TargetAttributes = plan.TargetAttributes.Normalize()
	s.selected = &plan
	s.state = StatePlanSelected
	s.resumeTo = StatePlanSelected
	slog.Info("Edited plan selected",
		"session_id", s.id,
		"target_genre", plan.TargetGenre,
		"attribute_shifts", len(attributes.Diff(s.originalAttrs, plan.TargetAttributes)))
	return nil
}

// SelectTop picks the top-ranked plan, for runs without a review gate.
func (s *Session) SelectTop() error {
	return s.SelectPlan(0)
}

// Generate runs the generation stage for the selected plan.
//
// # Description
//
// Combines the original attributes with the selected plan's target
// attributes into the final attribute set, then drives the generation
// loop. The session ends in StateDone, or StateFailed with the partial
// attempt history kept, or StateCancelled if the context was cancelled.
func (s *Session) Generate(ctx context.Context) error {
	if err := s.transition(StatePlanSelected, StateGenerating); err != nil {
		return err
	}

	s.mu.Lock()
	plan := *s.selected
	s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "session.generate",
		trace.WithAttributes(
			attribute.String("session_id", s.id),
			attribute.String("target_genre", plan.TargetGenre),
		))
	defer span.End()

	finalAttrs, err := attributes.Combine(s.originalAttrs, plan.TargetAttributes, plan.TargetGenre, s.dims)
	if err != nil {
		span.SetStatus(codes.Error, "attribute combination failed")
		return s.fail(ctx, err, StatePlanSelected)
	}

	result, err := s.loop.Run(ctx, plan, s.semanticCore, finalAttrs)

	s.mu.Lock()
	s.result = result
	s.mu.Unlock()

	if err != nil {
		span.SetStatus(codes.Error, "generation failed")
		return s.fail(ctx, err, StatePlanSelected)
	}

	s.setState(StateDone)
	observability.IncSession(string(StateDone))
	slog.Info("Session done",
		"session_id", s.id,
		"attempts", len(result.Attempts),
		"threshold_met", result.ThresholdMet)
	return nil
}

// Run drives the whole pipeline without a review gate: explore, select
// the top-ranked plan, generate, and emit the output document.
func (s *Session) Run(ctx context.Context) (*OutputDocument, error) {
	if err := s.Explore(ctx); err != nil {
		return s.Output(), err
	}
	if err := s.SelectTop(); err != nil {
		return s.Output(), err
	}
	if err := s.Generate(ctx); err != nil {
		return s.Output(), err
	}
	return s.Output(), nil
}

// Cancel stops a non-terminal session between stages. Computed plan
// evaluations are kept and reused on resume.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.terminal() {
		return fmt.Errorf("cannot cancel a session in state %q", s.state)
	}
	s.state = StateCancelled
	observability.IncSession(string(StateCancelled))
	slog.Info("Session cancelled", "session_id", s.id, "resume_to", s.resumeTo)
	return nil
}

// Resume returns a cancelled session to the stage boundary it last
// passed: AwaitingReview when plans were already evaluated, PlanSelected
// when a plan was already chosen, Idle otherwise.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCancelled {
		return fmt.Errorf("cannot resume a session in state %q", s.state)
	}
	s.state = s.resumeTo
	slog.Info("Session resumed", "session_id", s.id, "state", s.state)
	return nil
}

// Err returns the error that moved the session to StateFailed, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Output assembles the output document from whatever the session has
// computed so far. Safe to call in any state; a failed or cancelled
// session yields its partial results.
func (s *Session) Output() *OutputDocument {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &OutputDocument{
		SessionID:           s.id,
		State:               s.state,
		SemanticCore:        s.semanticCore,
		OriginalAttributes:  s.originalAttrs,
		TransformationPlans: append([]planner.EvaluatedPlan(nil), s.ranked...),
		SelectedPlan:        s.selected,
	}
	if s.result != nil {
		out.FinalText = s.result.FinalText
		out.Attempts = append([]generate.Attempt(nil), s.result.Attempts...)
	}
	return out
}

// transition atomically moves from exactly one expected state to the
// next, also accounting for resumption bookkeeping.
func (s *Session) transition(from, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != from {
		return fmt.Errorf("cannot move to %q from state %q (want %q)", to, s.state, from)
	}
	s.state = to
	return nil
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// fail records a stage failure. Context cancellation parks the session
// in StateCancelled with resumeTo set so computed work is reusable;
// anything else is a terminal failure with partial results retained.
func (s *Session) fail(ctx context.Context, err error, resumeTo State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil {
		s.state = StateCancelled
		s.resumeTo = resumeTo
		observability.IncSession(string(StateCancelled))
		slog.Warn("Session cancelled mid-stage", "session_id", s.id, "resume_to", resumeTo)
		return ctx.Err()
	}

	s.lastErr = err
	s.state = StateFailed
	observability.IncSession(string(StateFailed))
	slog.Error("Session failed", "session_id", s.id, "error", err)
	return err
}

// Pipeline bundles the constructed engines for reuse across sessions.
// The engines are stateless; only sessions carry per-request state.
type Pipeline struct {
	engine *explore.Engine
	loop   *generate.Loop
	cfg    config.Config
}

// NewPipeline wires the exploration engine and generation loop from one
// validated configuration and a generation client.
func NewPipeline(client llm.Client, cfg config.Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	scorer := planner.NewScorer(client, cfg)
	engine, err := explore.New(client, scorer, cfg)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		engine: engine,
		loop:   generate.NewLoop(client, cfg),
		cfg:    cfg,
	}, nil
}

// NewSession starts a session for one input document.
func (p *Pipeline) NewSession(input InputDocument) (*Session, error) {
	return New(p.engine, p.loop, p.cfg, input)
}
