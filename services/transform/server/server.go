// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes the transformation pipeline over HTTP.
//
// Endpoints:
//   - POST /v1/transform — run one transformation session
//   - GET  /healthz      — liveness probe
//   - GET  /metrics      — Prometheus metrics
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/genreshift/services/transform/attributes"
	"github.com/AleutianAI/genreshift/services/transform/explore"
	"github.com/AleutianAI/genreshift/services/transform/llm"
	"github.com/AleutianAI/genreshift/services/transform/session"
)

// MaxDocumentBytes is the maximum size of the original text or semantic
// core in a transform request. Byte length, not rune count, so oversized
// payloads are rejected before they reach the pipeline.
const MaxDocumentBytes = 256 * 1024

func init() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		panic("gin binding validator engine is not *validator.Validate")
	}
	// A failed registration would silently drop the size limit.
	if err := v.RegisterValidation("maxbytes", validateMaxBytes); err != nil {
		panic(fmt.Sprintf("register maxbytes validation: %v", err))
	}
}

func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxDocumentBytes
}

// Server serves the transformation API.
type Server struct {
	pipeline *session.Pipeline
	router   *gin.Engine
}

// New builds the server and its routes.
func New(pipeline *session.Pipeline) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{pipeline: pipeline, router: router}

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.POST("/transform", s.handleTransform)

	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run blocks serving on addr.
func (s *Server) Run(addr string) error {
	slog.Info("Serving transformation API", "addr", addr)
	return s.router.Run(addr)
}

// transformRequest is the POST /v1/transform body. The gin binding layer
// enforces the validator tags before the pipeline sees the request.
type transformRequest struct {
	OriginalText       string          `json:"original_text" binding:"omitempty,maxbytes"`
	SemanticCore       string          `json:"semantic_core" binding:"omitempty,maxbytes"`
	OriginalAttributes *attributes.Set `json:"original_attributes"`
	UserInstruction    string          `json:"user_instruction" binding:"omitempty,max=4000"`

	// PlanIndex optionally selects a ranked plan instead of the top one.
	PlanIndex *int `json:"plan_index" binding:"omitempty,gte=0"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleTransform(c *gin.Context) {
	var req transformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := s.pipeline.NewSession(session.InputDocument{
		OriginalText:       req.OriginalText,
		SemanticCore:       req.SemanticCore,
		OriginalAttributes: req.OriginalAttributes,
		UserInstruction:    req.UserInstruction,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	runErr := sess.Explore(ctx)
	if runErr == nil {
		if req.PlanIndex != nil {
			runErr = sess.SelectPlan(*req.PlanIndex)
		} else {
			runErr = sess.SelectTop()
		}
	}
	if runErr == nil {
		runErr = sess.Generate(ctx)
	}

	out := sess.Output()
	if runErr != nil {
		status := http.StatusBadGateway
		var genErr *explore.PlanGenerationError
		var svcErr *llm.ServiceError
		switch {
		case errors.As(runErr, &genErr) || errors.As(runErr, &svcErr):
			status = http.StatusBadGateway
		default:
			status = http.StatusUnprocessableEntity
		}

		slog.Error("Transformation request failed",
			"session_id", sess.ID(), "state", out.State, "error", runErr)
		c.JSON(status, gin.H{
			"error":  runErr.Error(),
			"output": out, // partial pipeline state, never an opaque abort
		})
		return
	}

	c.JSON(http.StatusOK, out)
}
