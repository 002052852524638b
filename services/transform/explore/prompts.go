// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package explore

import "text/template"

const exploreSystemPrompt = "You are a genre transformation planner. " +
	"You propose how a piece of content could be re-expressed in other genres."

// Genre compatibility hints handed to the model as guidance, not as a
// restriction on what it may propose.
const genreCompatibilityReference = `news_article: blog_post, persuasive_essay
blog_post: news_article, persuasive_essay, story
academic_paper: technical_manual, persuasive_essay
story: blog_post
technical_manual: academic_paper
persuasive_essay: blog_post, news_article, academic_paper`

const genrePriorityPromptText = `# Task: Propose genre transformation plans.

## Semantic Core:
{{.SemanticCore}}

## Original Attributes:
{{.OriginalAttributes}}
{{if .UserInstruction}}
## User Instruction:
{{.UserInstruction}}
{{end}}
## Genre Compatibility Reference (guidance only):
{{.GenreReference}}

## Instructions:
Suggest {{.NumPlans}} distinct target genres that would suit this content,
each with a concrete high-level transformation instruction.
{{- if .UserInstruction}} Every plan must honor the user instruction.{{end}}

Return JSON with exactly this shape:
{"plans": [{"target_genre": "<genre>", "instruction": "<how to transform the content>"}]}`

const dimensionShiftPromptText = `# Task: Propose genre transformation plans via attribute shifts.

## Semantic Core:
{{.SemanticCore}}

## Original Attributes:
{{.OriginalAttributes}}
{{if .UserInstruction}}
## User Instruction:
{{.UserInstruction}}
{{end}}
## Genre Compatibility Reference (guidance only):
{{.GenreReference}}

## Instructions:
Propose {{.NumPlans}} distinct transformations. For each, first shift the
original attributes into a target attribute set (dimensions:
function_purpose, audience_context, structure_organization, strategy,
conventions, linguistic_features with information_density/interactivity/
emotion/tone), then name the genre that matches the shifted attributes and
write a high-level instruction realizing the shift.
{{- if .UserInstruction}} Every plan must honor the user instruction.{{end}}

Return JSON with exactly this shape:
{"plans": [{"target_genre": "<genre>", "target_attributes": {<shifted attribute set>}, "instruction": "<how to transform the content>"}]}`

// strictRetrySuffix is appended when the first response could not be
// decoded and the request is retried once.
const strictRetrySuffix = "\n\nIMPORTANT: The previous response was not valid JSON. " +
	"Respond with ONLY the JSON object described above. No prose, no markdown fences."

var (
	genrePriorityPrompt  = template.Must(template.New("strategy_1").Parse(genrePriorityPromptText))
	dimensionShiftPrompt = template.Must(template.New("strategy_2").Parse(dimensionShiftPromptText))
)
