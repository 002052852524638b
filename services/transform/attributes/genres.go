// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package attributes

// genreExamples holds example attribute sets for common genres. These are
// guidance for seeding and prompting, not an allowed-genre list: any
// genre string is legal throughout the pipeline.
var genreExamples = map[string]Set{
	"news_article": {
		FunctionPurpose:       "expository",
		AudienceContext:       "general_public",
		StructureOrganization: "importance_order",
		Strategy:              "logical_appeal",
		Conventions:           "genre_structure",
		Linguistic: LinguisticFeatures{
			InformationDensity: "high",
			Interactivity:      "low",
			Emotion:            "low",
			Tone:               "objective",
		},
	},
	"academic_paper": {
		FunctionPurpose:       "expository",
		AudienceContext:       "expert_academic",
		StructureOrganization: "thematic",
		Strategy:              "logical_appeal",
		Conventions:           "citation_reference",
		Linguistic: LinguisticFeatures{
			InformationDensity: "high",
			Interactivity:      "low",
			Emotion:            "low",
			Tone:               "formal",
		},
	},
	"blog_post": {
		FunctionPurpose:       "expository",
		AudienceContext:       "general_public",
		StructureOrganization: "thematic",
		Strategy:              "direct_address",
		Conventions:           "formatting",
		Linguistic: LinguisticFeatures{
			InformationDensity: "medium",
			Interactivity:      "high",
			Emotion:            "medium",
			Tone:               "semi_formal",
		},
	},
	"story": {
		FunctionPurpose:       "narrative",
		AudienceContext:       "general_public",
		StructureOrganization: "chronological",
		Strategy:              "storytelling",
		Conventions:           "genre_structure",
		Linguistic: LinguisticFeatures{
			InformationDensity: "medium",
			Interactivity:      "medium",
			Emotion:            "high",
			Tone:               "informal",
		},
	},
	"technical_manual": {
		FunctionPurpose:       "instructional",
		AudienceContext:       "professional",
		StructureOrganization: "enumeration",
		Strategy:              "direct_address",
		Conventions:           "formatting",
		Linguistic: LinguisticFeatures{
			InformationDensity: "high",
			Interactivity:      "medium",
			Emotion:            "low",
			Tone:               "formal",
		},
	},
	"persuasive_essay": {
		FunctionPurpose:       "argumentative",
		AudienceContext:       "general_public",
		StructureOrganization: "thematic",
		Strategy:              "logical_appeal",
		Conventions:           "genre_structure",
		Linguistic: LinguisticFeatures{
			InformationDensity: "medium",
			Interactivity:      "medium",
			Emotion:            "medium",
			Tone:               "persuasive",
		},
	},
}

// GenreDefaults returns the example attribute set for a known genre.
// The second return is false for genres without an example table.
func GenreDefaults(genre string) (Set, bool) {
	s, ok := genreExamples[genre]
	return s, ok
}

// KnownGenres returns the genres that carry example attribute tables.
func KnownGenres() []string {
	out := make([]string, 0, len(genreExamples))
	for g := range genreExamples {
		out = append(out, g)
	}
	return out
}

// FallbackGenres are the default exploration targets when the caller does
// not name any candidate genres.
func FallbackGenres() []string {
	return []string{"blog_post", "news_article", "story"}
}

// FallbackSet is the generic attribute set used when a genre has no
// example table and nothing better is known.
func FallbackSet() Set {
	return Set{
		FunctionPurpose:       "expository",
		AudienceContext:       "general_public",
		StructureOrganization: "thematic",
		Strategy:              "logical_appeal",
		Conventions:           "genre_structure",
		Linguistic: LinguisticFeatures{
			InformationDensity: "medium",
			Interactivity:      "medium",
			Emotion:            "neutral",
			Tone:               "semi_formal",
		},
	}
}

// Change records a single dimension whose value differs between two
// attribute sets.
type Change struct {
	Dimension string `json:"dimension"`
	Old       string `json:"old_value"`
	New       string `json:"new_value"`
}

// Diff reports the per-dimension differences between two attribute sets.
// Nested linguistic features are reported under dotted names such as
// "linguistic_features.tone". Empty and explicit-unspecified values
// compare equal because both sets are normalized first.
func Diff(a, b Set) []Change {
	a, b = a.Normalize(), b.Normalize()

	var changes []Change
	for _, dim := range KnownDimensions() {
		if dim == DimLinguisticFeatures {
			continue
		}
		if av, bv := a.scalarValue(dim), b.scalarValue(dim); av != bv {
			changes = append(changes, Change{Dimension: dim, Old: av, New: bv})
		}
	}

	features := []string{"information_density", "interactivity", "emotion", "tone"}
	av, bv := a.linguisticValues(), b.linguisticValues()
	for i, name := range features {
		if av[i] != bv[i] {
			changes = append(changes, Change{
				Dimension: DimLinguisticFeatures + "." + name,
				Old:       av[i],
				New:       bv[i],
			})
		}
	}
	return changes
}
