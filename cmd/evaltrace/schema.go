/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"chainguard.dev/evaltrace/tracing/schema"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func (a *app) schemaCommand() *cobra.Command {
	var check string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print or check the AI system config schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if check != "" {
				return checkSystemConfig(cmd, check)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(schema.SystemConfigSchema())
		},
	}
	cmd.Flags().StringVar(&check, "check", "", "Validate this AI system config file instead of printing the schema")
	return cmd
}

func checkSystemConfig(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var params map[string]any
	if err := yaml.Unmarshal(data, &params); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg, err := schema.DecodeSystemConfig(params)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	model := "none"
	if cfg.LLM != nil {
		model = cfg.LLM.ChatModel
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (chat model: %s, %d top-level keys)\n", path, model, len(params))
	return nil
}
