// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/genreshift/services/transform/config"
	"github.com/AleutianAI/genreshift/services/transform/llm"
	"github.com/AleutianAI/genreshift/services/transform/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubClient serves every pipeline prompt type with fixed content.
type stubClient struct {
	failAll bool
}

func (c *stubClient) Complete(_ context.Context, req *llm.Request) (*llm.Response, error) {
	if c.failAll {
		return nil, context.DeadlineExceeded
	}
	switch {
	case strings.Contains(req.SystemPrompt, "planner"):
		return &llm.Response{Content: `{"plans": [
			{"target_genre": "blog_post", "instruction": "Rewrite as a blog post."},
			{"target_genre": "news_article", "instruction": "Rewrite as a news article."}
		]}`}, nil
	case strings.Contains(req.SystemPrompt, "plan evaluator"):
		return &llm.Response{Content: `{"consistency_score": 0.8, "feasibility_score": 0.8, "value_score": 0.8}`}, nil
	case strings.Contains(req.SystemPrompt, "quality evaluator"):
		return &llm.Response{Content: `{"semantic_fidelity": 0.9, "attribute_conformity": 0.9, "instruction_adherence": 0.9, "fluency": 0.9}`}, nil
	default:
		return &llm.Response{Content: "The transformed text."}, nil
	}
}

func (c *stubClient) Name() string  { return "stub" }
func (c *stubClient) Model() string { return "test" }

func newTestServer(t *testing.T, client llm.Client) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Exploration.NumPlans = 2
	cfg.LLM.MaxRetries = 0
	cfg.LLM.RetryBackoff = config.Duration(time.Millisecond)

	pipeline, err := session.NewPipeline(client, cfg)
	require.NoError(t, err)
	return New(pipeline)
}

func postTransform(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/transform", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &stubClient{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubClient{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTransform_OK(t *testing.T) {
	srv := newTestServer(t, &stubClient{})

	w := postTransform(t, srv, `{"semantic_core": "the key facts", "user_instruction": "keep it short"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out session.OutputDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))

	assert.Equal(t, session.StateDone, out.State)
	assert.Equal(t, "the key facts", out.SemanticCore)
	assert.Len(t, out.TransformationPlans, 2)
	require.NotNil(t, out.SelectedPlan)
	assert.Equal(t, "The transformed text.", out.FinalText)
}

func TestTransform_ExplicitPlanIndex(t *testing.T) {
	srv := newTestServer(t, &stubClient{})

	w := postTransform(t, srv, `{"semantic_core": "the key facts", "plan_index": 1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var out session.OutputDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, out.TransformationPlans[1].Plan.TargetGenre, out.SelectedPlan.TargetGenre)
}

func TestTransform_BadRequests(t *testing.T) {
	srv := newTestServer(t, &stubClient{})

	// Malformed JSON.
	w := postTransform(t, srv, `{"semantic_core": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Negative plan index rejected by binding validation.
	w = postTransform(t, srv, `{"semantic_core": "x", "plan_index": -2}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// No core derivable.
	w = postTransform(t, srv, `{"user_instruction": "just vibes"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Oversized document rejected by the maxbytes validator.
	huge := strings.Repeat("a", MaxDocumentBytes+1)
	w = postTransform(t, srv, `{"semantic_core": "`+huge+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransform_ServiceFailureCarriesPartialState(t *testing.T) {
	srv := newTestServer(t, &stubClient{failAll: true})

	w := postTransform(t, srv, `{"semantic_core": "the key facts"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var body struct {
		Error  string                 `json:"error"`
		Output session.OutputDocument `json:"output"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Error)
	assert.Equal(t, session.StateFailed, body.Output.State)
}

func TestTransform_PlanIndexOutOfRange(t *testing.T) {
	srv := newTestServer(t, &stubClient{})

	w := postTransform(t, srv, `{"semantic_core": "the key facts", "plan_index": 9}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}
