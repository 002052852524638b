// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_MarkdownFence(t *testing.T) {
	raw := "Here is the plan you asked for:\n```json\n{\"target_genre\": \"blog_post\"}\n```\nLet me know if you need changes."
	got := ExtractJSON(raw)
	assert.Equal(t, `{"target_genre": "blog_post"}`, got)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(got), &decoded))
	assert.Equal(t, "blog_post", decoded["target_genre"])
}

func TestExtractJSON_SurroundingProse(t *testing.T) {
	raw := "Sure! [{\"a\":1},{\"a\":2}] Hope this helps."
	assert.Equal(t, `[{"a":1},{"a":2}]`, ExtractJSON(raw))
}

func TestExtractJSON_PlainObject(t *testing.T) {
	raw := `{"consistency_score": 0.9}`
	assert.Equal(t, raw, ExtractJSON(raw))
}

func TestExtractJSON_ArrayAfterObjectClose(t *testing.T) {
	// The payload is an array whose last element is an object; the final
	// ']' must win over the final '}'.
	raw := "prefix [{\"x\": 1}] suffix"
	assert.Equal(t, `[{"x": 1}]`, ExtractJSON(raw))
}

func TestExtractJSON_NoJSON(t *testing.T) {
	assert.Equal(t, "no structure here", ExtractJSON("  no structure here "))
	assert.Equal(t, "", ExtractJSON(""))
}

func TestExtractJSON_UnfencedWithTag(t *testing.T) {
	raw := "```\n{\"k\":\"v\"}\n```"
	assert.Equal(t, `{"k":"v"}`, ExtractJSON(raw))
}
