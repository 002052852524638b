// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"

	"github.com/AleutianAI/genreshift/services/transform/server"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the transformation pipeline over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}

			pipeline, err := buildPipeline(cfg)
			if err != nil {
				return err
			}
			return server.New(pipeline).Run(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to the configured server.addr)")
	return cmd
}
