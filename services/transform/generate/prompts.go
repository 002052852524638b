// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generate

import "text/template"

const generateSystemPrompt = "You are a skilled writer who transforms content " +
	"between genres while preserving its meaning."

const evaluateSystemPrompt = "You are a text quality evaluator. " +
	"You judge how faithfully a transformation preserved content and matched its targets."

const generatePromptText = `# Task: Write the content below as a {{.TargetGenre}}.

## Semantic Core:
{{.SemanticCore}}

## Target Attributes:
- Function/Purpose: {{.FunctionPurpose}}
- Audience/Context: {{.AudienceContext}}
- Structure/Organization: {{.StructureOrganization}}
- Strategy: {{.Strategy}}
- Conventions: {{.Conventions}}
- Information Density: {{.InformationDensity}}
- Interactivity: {{.Interactivity}}
- Emotion: {{.Emotion}}
- Tone: {{.Tone}}

## Instruction:
{{.Instruction}}

Write the transformed text only. Preserve every key point of the semantic
core. Do not add commentary about the task.`

const evaluatePromptText = `# Task: Evaluate a genre transformation.

## Semantic Core (what the text must preserve):
{{.SemanticCore}}

## Target Attributes:
{{.TargetAttributes}}

## Instruction:
{{.Instruction}}

## Generated Text:
{{.Text}}

## Instructions:
Score the generated text on four criteria, each between 0.0 and 1.0:
- semantic_fidelity: all key information from the semantic core is preserved
- attribute_conformity: the text matches the target attributes
- instruction_adherence: the text follows the instruction
- fluency: the text is coherent and well written

Return JSON with exactly these fields:
{"semantic_fidelity": <float>, "attribute_conformity": <float>, "instruction_adherence": <float>, "fluency": <float>, "comments": "<one or two sentences>"}`

const refinePromptText = `# Task: Refine the text below as a better {{.TargetGenre}}.

## Semantic Core (must be fully preserved):
{{.SemanticCore}}

## Target Attributes:
{{.TargetAttributes}}

## Instruction:
{{.Instruction}}

## Current Text:
{{.Text}}
{{if .QualityIssues}}
## Evaluator Comments:
{{.QualityIssues}}
{{end}}
## Required Improvements:
{{.Improvements}}

Rewrite the full text with these improvements applied. Output the refined
text only.`

var (
	generatePrompt = template.Must(template.New("generate").Parse(generatePromptText))
	evaluatePrompt = template.Must(template.New("evaluate").Parse(evaluatePromptText))
	refinePrompt   = template.Must(template.New("refine").Parse(refinePromptText))
)
