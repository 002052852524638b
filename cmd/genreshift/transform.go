// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/genreshift/services/transform/session"
)

func newTransformCmd(root *rootOptions) *cobra.Command {
	var (
		inputPath   string
		outputPath  string
		planIndex   int
		instruction string
	)

	cmd := &cobra.Command{
		Use:   "transform",
		Short: "Run one transformation session for an input document",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			input, err := readInputDocument(inputPath)
			if err != nil {
				return err
			}
			if instruction != "" {
				input.UserInstruction = instruction
			}

			pipeline, err := buildPipeline(cfg)
			if err != nil {
				return err
			}
			sess, err := pipeline.NewSession(input)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := sess.Explore(ctx); err != nil {
				return err
			}
			if planIndex >= 0 {
				err = sess.SelectPlan(planIndex)
			} else {
				err = sess.SelectTop()
			}
			if err != nil {
				return err
			}
			if err := sess.Generate(ctx); err != nil {
				return err
			}

			return writeOutputDocument(outputPath, sess.Output())
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "input document (JSON or YAML); - for stdin")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file; empty writes JSON to stdout")
	cmd.Flags().IntVar(&planIndex, "plan", -1, "ranked plan index to use instead of the top plan")
	cmd.Flags().StringVar(&instruction, "instruction", "", "user instruction overriding the input document's")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func readInputDocument(path string) (session.InputDocument, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = os.ReadFile("/dev/stdin")
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return session.InputDocument{}, fmt.Errorf("read input document: %w", err)
	}

	var input session.InputDocument
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &input)
	default:
		err = json.Unmarshal(data, &input)
	}
	if err != nil {
		return session.InputDocument{}, fmt.Errorf("decode input document: %w", err)
	}
	return input, nil
}

func writeOutputDocument(path string, out *session.OutputDocument) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output document: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output document: %w", err)
	}
	return nil
}
