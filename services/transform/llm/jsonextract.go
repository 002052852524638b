// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"regexp"
	"strings"
)

// fenceRe matches markdown code fences with an optional json language tag.
var fenceRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// ExtractJSON trims a model response down to its JSON payload.
//
// # Description
//
// Models asked for "JSON only" still wrap the payload in markdown fences
// or surround it with prose on occasion. ExtractJSON strips code fences,
// then slices from the first '{' or '[' to the matching last '}' or ']'.
// The result is not guaranteed to be valid JSON; callers must still
// unmarshal and handle failure.
//
// # Inputs
//
//   - text: Raw model response.
//
// # Outputs
//
//   - string: Best-effort JSON substring. Empty input yields empty output.
func ExtractJSON(text string) string {
	text = fenceRe.ReplaceAllString(text, "$1")

	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return strings.TrimSpace(text)
	}

	end := strings.LastIndex(text, "}")
	if bracket := strings.LastIndex(text, "]"); bracket > end {
		end = bracket
	}
	if end == -1 || end < start {
		return strings.TrimSpace(text)
	}

	return strings.TrimSpace(text[start : end+1])
}
