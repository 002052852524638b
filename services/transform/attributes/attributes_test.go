// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package attributes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombine_EmptyDeltaIsNoOp(t *testing.T) {
	base, ok := GenreDefaults("news_article")
	require.True(t, ok)

	got, err := Combine(base, Set{}, "news_article", DefaultDimensions())
	require.NoError(t, err)
	assert.Equal(t, base.Normalize(), got)
}

func TestCombine_DeltaWinsOnActiveDimension(t *testing.T) {
	base, _ := GenreDefaults("news_article")
	delta := Set{
		Strategy:   "storytelling",
		Linguistic: LinguisticFeatures{Tone: "playful"},
	}

	got, err := Combine(base, delta, "news_article", DefaultDimensions())
	require.NoError(t, err)

	assert.Equal(t, "storytelling", got.Strategy)
	assert.Equal(t, "playful", got.Linguistic.Tone)
	// Untouched dimensions keep the base value.
	assert.Equal(t, base.FunctionPurpose, got.FunctionPurpose)
	assert.Equal(t, base.Linguistic.Emotion, got.Linguistic.Emotion)
}

func TestCombine_InactiveDimensionKeepsBase(t *testing.T) {
	dims := DefaultDimensions()
	dims[DimStrategy] = DimensionConfig{Active: false, Weight: 1.0}

	base, _ := GenreDefaults("blog_post")
	delta := Set{Strategy: "storytelling"}

	got, err := Combine(base, delta, "blog_post", dims)
	require.NoError(t, err)
	assert.Equal(t, base.Strategy, got.Strategy)
}

func TestCombine_AdjustmentInactiveByDefault(t *testing.T) {
	base, _ := GenreDefaults("story")
	delta := Set{Adjustment: "shorten drastically"}

	got, err := Combine(base, delta, "story", DefaultDimensions())
	require.NoError(t, err)
	assert.Equal(t, Unspecified, got.Adjustment)
}

func TestCombine_ZeroBaseSeedsFromGenre(t *testing.T) {
	got, err := Combine(Set{}, Set{Linguistic: LinguisticFeatures{Tone: "witty"}}, "blog_post", DefaultDimensions())
	require.NoError(t, err)

	want, _ := GenreDefaults("blog_post")
	assert.Equal(t, want.FunctionPurpose, got.FunctionPurpose)
	assert.Equal(t, "witty", got.Linguistic.Tone)
}

func TestCombine_UnknownDimensionFails(t *testing.T) {
	dims := DefaultDimensions()
	dims["reading_level"] = DimensionConfig{Active: true, Weight: 1.0}

	_, err := Combine(Set{FunctionPurpose: "expository"}, Set{}, "story", dims)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownDimension))
	assert.Contains(t, err.Error(), "reading_level")
}

func TestNormalize_FillsUnspecified(t *testing.T) {
	got := Set{FunctionPurpose: "narrative"}.Normalize()

	assert.Equal(t, "narrative", got.FunctionPurpose)
	assert.Equal(t, Unspecified, got.AudienceContext)
	assert.Equal(t, Unspecified, got.Linguistic.Tone)
	assert.Equal(t, Unspecified, got.Adjustment)
	assert.True(t, got.IsZero(), "normalizing must not invent known values")
}

func TestDimensions_Defaults(t *testing.T) {
	dims := DefaultDimensions()
	require.NoError(t, dims.Validate())

	assert.False(t, dims.Active(DimAdjustment))
	assert.InDelta(t, 0.5, dims.Weight(DimAdjustment), 1e-9)
	for _, name := range KnownDimensions()[:6] {
		assert.True(t, dims.Active(name), name)
		assert.InDelta(t, 1.0, dims.Weight(name), 1e-9, name)
	}

	// Unconfigured dimensions fall back to active at weight 1.0.
	empty := Dimensions{}
	assert.True(t, empty.Active(DimStrategy))
	assert.InDelta(t, 1.0, empty.Weight(DimStrategy), 1e-9)
}

func TestDiff_ReportsChangedDimensions(t *testing.T) {
	a, _ := GenreDefaults("news_article")
	b, _ := GenreDefaults("story")

	changes := Diff(a, b)
	byDim := make(map[string]Change, len(changes))
	for _, c := range changes {
		byDim[c.Dimension] = c
	}

	require.Contains(t, byDim, DimFunctionPurpose)
	assert.Equal(t, "expository", byDim[DimFunctionPurpose].Old)
	assert.Equal(t, "narrative", byDim[DimFunctionPurpose].New)

	require.Contains(t, byDim, "linguistic_features.tone")
	assert.Equal(t, "objective", byDim["linguistic_features.tone"].Old)

	assert.Empty(t, Diff(a, a))
}

func TestGenreDefaults(t *testing.T) {
	_, ok := GenreDefaults("interpretive_dance")
	assert.False(t, ok)

	for _, g := range FallbackGenres() {
		s, ok := GenreDefaults(g)
		require.True(t, ok, g)
		assert.False(t, s.IsZero(), g)
	}
}
