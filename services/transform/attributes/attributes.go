// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package attributes implements the seven-dimension stylistic attribute
// model used by the transformation pipeline.
//
// A text's style is described along seven dimensions: function/purpose,
// audience/context, structure/organization, rhetorical strategy,
// conventions, linguistic features (itself a four-feature bundle), and
// an optional adjustment dimension. Every Set carries all dimension keys;
// values that are not known are the explicit Unspecified marker rather
// than being omitted.
//
// Dimension activity and weights come from configuration. Inactive
// dimensions are excluded from combination and scoring but retained in
// storage. Weights are consumed only by plan scoring, never by Combine.
//
// # Thread Safety
//
// Set and Dimensions values are plain data; copies are independent.
// Treat a Dimensions map as immutable after configuration load.
package attributes

import (
	"errors"
	"fmt"
)

// Unspecified is the explicit marker for a dimension without a known value.
// It is stored and serialized, never silently dropped.
const Unspecified = "unspecified"

// Dimension name constants. These are the only names the configured
// dimension set may reference.
const (
	DimFunctionPurpose       = "function_purpose"
	DimAudienceContext       = "audience_context"
	DimStructureOrganization = "structure_organization"
	DimStrategy              = "strategy"
	DimConventions           = "conventions"
	DimLinguisticFeatures    = "linguistic_features"
	DimAdjustment            = "adjustment"
)

// KnownDimensions returns the closed list of dimension names, in
// canonical order.
func KnownDimensions() []string {
	return []string{
		DimFunctionPurpose,
		DimAudienceContext,
		DimStructureOrganization,
		DimStrategy,
		DimConventions,
		DimLinguisticFeatures,
		DimAdjustment,
	}
}

// ErrUnknownDimension is returned when a configured dimension set names a
// dimension outside the closed seven-dimension model. This is a
// configuration error: fatal, surfaced immediately, never retried.
var ErrUnknownDimension = errors.New("unknown attribute dimension")

// =============================================================================
// Attribute Sets
// =============================================================================

// LinguisticFeatures is the nested feature bundle of the
// linguistic_features dimension.
type LinguisticFeatures struct {
	InformationDensity string `json:"information_density" yaml:"information_density"`
	Interactivity      string `json:"interactivity" yaml:"interactivity"`
	Emotion            string `json:"emotion" yaml:"emotion"`
	Tone               string `json:"tone" yaml:"tone"`
}

// Set is one point in the attribute space: a value per dimension.
//
// The zero value is a Set with every dimension unknown; call Normalize
// to make the unknowns explicit before storing or serializing.
type Set struct {
	FunctionPurpose       string             `json:"function_purpose" yaml:"function_purpose"`
	AudienceContext       string             `json:"audience_context" yaml:"audience_context"`
	StructureOrganization string             `json:"structure_organization" yaml:"structure_organization"`
	Strategy              string             `json:"strategy" yaml:"strategy"`
	Conventions           string             `json:"conventions" yaml:"conventions"`
	Linguistic            LinguisticFeatures `json:"linguistic_features" yaml:"linguistic_features"`
	Adjustment            string             `json:"adjustment" yaml:"adjustment"`
}

// Normalize returns a copy of s with every empty value replaced by the
// explicit Unspecified marker.
func (s Set) Normalize() Set {
	fill := func(v string) string {
		if v == "" {
			return Unspecified
		}
		return v
	}
	return Set{
		FunctionPurpose:       fill(s.FunctionPurpose),
		AudienceContext:       fill(s.AudienceContext),
		StructureOrganization: fill(s.StructureOrganization),
		Strategy:              fill(s.Strategy),
		Conventions:           fill(s.Conventions),
		Linguistic: LinguisticFeatures{
			InformationDensity: fill(s.Linguistic.InformationDensity),
			Interactivity:      fill(s.Linguistic.Interactivity),
			Emotion:            fill(s.Linguistic.Emotion),
			Tone:               fill(s.Linguistic.Tone),
		},
		Adjustment: fill(s.Adjustment),
	}
}

// IsZero reports whether no dimension of s carries a known value.
func (s Set) IsZero() bool {
	for _, dim := range KnownDimensions() {
		if dim == DimLinguisticFeatures {
			for _, f := range s.linguisticValues() {
				if known(f) {
					return false
				}
			}
			continue
		}
		if known(s.scalarValue(dim)) {
			return false
		}
	}
	return true
}

// known reports whether v is an actual attribute value rather than an
// empty or explicit-unspecified placeholder.
func known(v string) bool {
	return v != "" && v != Unspecified
}

// scalarValue returns the value of a non-nested dimension.
func (s Set) scalarValue(dim string) string {
	switch dim {
	case DimFunctionPurpose:
		return s.FunctionPurpose
	case DimAudienceContext:
		return s.AudienceContext
	case DimStructureOrganization:
		return s.StructureOrganization
	case DimStrategy:
		return s.Strategy
	case DimConventions:
		return s.Conventions
	case DimAdjustment:
		return s.Adjustment
	default:
		return ""
	}
}

// setScalarValue assigns the value of a non-nested dimension.
func (s *Set) setScalarValue(dim, v string) {
	switch dim {
	case DimFunctionPurpose:
		s.FunctionPurpose = v
	case DimAudienceContext:
		s.AudienceContext = v
	case DimStructureOrganization:
		s.StructureOrganization = v
	case DimStrategy:
		s.Strategy = v
	case DimConventions:
		s.Conventions = v
	case DimAdjustment:
		s.Adjustment = v
	}
}

// linguisticValues returns the nested feature values in a fixed order:
// information_density, interactivity, emotion, tone.
func (s Set) linguisticValues() [4]string {
	return [4]string{
		s.Linguistic.InformationDensity,
		s.Linguistic.Interactivity,
		s.Linguistic.Emotion,
		s.Linguistic.Tone,
	}
}

// =============================================================================
// Dimension Configuration
// =============================================================================

// DimensionConfig holds the per-dimension configuration knobs.
type DimensionConfig struct {
	// Active controls whether the dimension participates in combination
	// and scoring. Inactive dimensions are copied through unchanged.
	Active bool `json:"active" yaml:"active"`

	// Weight modulates how strongly a mismatch on this dimension
	// penalizes a plan during scoring. Combine never reads it.
	Weight float64 `json:"weight" yaml:"weight"`
}

// Dimensions maps dimension names to their configuration.
type Dimensions map[string]DimensionConfig

// DefaultDimensions returns the stock dimension configuration: the six
// primary dimensions active at weight 1.0, adjustment inactive at 0.5.
func DefaultDimensions() Dimensions {
	return Dimensions{
		DimFunctionPurpose:       {Active: true, Weight: 1.0},
		DimAudienceContext:       {Active: true, Weight: 1.0},
		DimStructureOrganization: {Active: true, Weight: 1.0},
		DimStrategy:              {Active: true, Weight: 1.0},
		DimConventions:           {Active: true, Weight: 1.0},
		DimLinguisticFeatures:    {Active: true, Weight: 1.0},
		DimAdjustment:            {Active: false, Weight: 0.5},
	}
}

// Validate checks that every configured dimension name is known.
//
// Outputs:
//   - error: Wraps ErrUnknownDimension naming the offending key, or nil.
func (d Dimensions) Validate() error {
	knownSet := make(map[string]struct{}, len(KnownDimensions()))
	for _, name := range KnownDimensions() {
		knownSet[name] = struct{}{}
	}
	for name := range d {
		if _, ok := knownSet[name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownDimension, name)
		}
	}
	return nil
}

// Active reports whether a dimension participates in combination and
// scoring. Dimensions absent from the configuration default to active.
func (d Dimensions) Active(name string) bool {
	cfg, ok := d[name]
	if !ok {
		return true
	}
	return cfg.Active
}

// Weight returns the scoring weight for a dimension, defaulting to 1.0
// for unconfigured dimensions.
func (d Dimensions) Weight(name string) float64 {
	cfg, ok := d[name]
	if !ok {
		return 1.0
	}
	return cfg.Weight
}

// =============================================================================
// Combination
// =============================================================================

// Combine computes the final attribute set for a transformation plan.
//
// # Description
//
// Applies the per-dimension combination rule: an inactive dimension keeps
// the base value unchanged; an active dimension takes the delta value when
// the delta supplies one, otherwise the base value is retained. When the
// base is entirely unknown, the genre defaults for targetGenre seed it
// first. Weights play no role here.
//
// # Inputs
//
//   - base: Starting attribute set, typically the original text's attributes.
//   - delta: Plan-supplied target attributes; unknown values mean "keep base".
//   - targetGenre: Genre whose example attributes seed an empty base.
//   - dims: Configured dimension set. Validated before use.
//
// # Outputs
//
//   - Set: Normalized combined attribute set.
//   - error: Wraps ErrUnknownDimension if dims names an unknown dimension.
func Combine(base, delta Set, targetGenre string, dims Dimensions) (Set, error) {
	if err := dims.Validate(); err != nil {
		return Set{}, err
	}

	if base.IsZero() {
		if seed, ok := GenreDefaults(targetGenre); ok {
			base = seed
		}
	}

	out := base
	for _, dim := range KnownDimensions() {
		if dim == DimLinguisticFeatures {
			continue
		}
		if !dims.Active(dim) {
			continue // inactive: base value stays
		}
		if v := delta.scalarValue(dim); known(v) {
			out.setScalarValue(dim, v)
		}
	}

	if dims.Active(DimLinguisticFeatures) {
		if v := delta.Linguistic.InformationDensity; known(v) {
			out.Linguistic.InformationDensity = v
		}
		if v := delta.Linguistic.Interactivity; known(v) {
			out.Linguistic.Interactivity = v
		}
		if v := delta.Linguistic.Emotion; known(v) {
			out.Linguistic.Emotion = v
		}
		if v := delta.Linguistic.Tone; known(v) {
			out.Linguistic.Tone = v
		}
	}

	return out.Normalize(), nil
}
