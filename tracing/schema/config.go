/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package schema describes the AI system config with JSON schema.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SystemConfig is the well-known part of an AI system config file. Any other
// keys are kept as model params but not interpreted.
type SystemConfig struct {
	LLM       *LLMConfig        `json:"llm,omitempty" jsonschema:"description=Chat model settings"`
	Retrieval *RetrievalConfig  `json:"retrieval,omitempty" jsonschema:"description=Retrieval settings for RAG systems"`
	Prompts   map[string]string `json:"prompts,omitempty" jsonschema:"description=Named prompt templates"`
}

// LLMConfig configures the chat model.
type LLMConfig struct {
	ChatModel   string   `json:"chat_model" jsonschema:"required,description=Chat model name used by the system and its judge evaluators"`
	Provider    string   `json:"provider,omitempty" jsonschema:"enum=openai,enum=anthropic,description=Model provider"`
	Temperature *float64 `json:"temperature,omitempty" jsonschema:"minimum=0,maximum=2"`
	MaxTokens   int      `json:"max_tokens,omitempty" jsonschema:"minimum=1"`
}

// RetrievalConfig configures document retrieval.
type RetrievalConfig struct {
	EmbeddingModel string `json:"embedding_model,omitempty"`
	TopK           int    `json:"top_k,omitempty" jsonschema:"minimum=1"`
	ChunkSize      int    `json:"chunk_size,omitempty" jsonschema:"minimum=1"`
}

// reflector inlines every definition so the schema reads top to bottom, and
// leaves objects open because system configs carry arbitrary extra params.
var reflector = jsonschema.Reflector{
	Anonymous:                  true,
	AllowAdditionalProperties:  true,
	DoNotReference:             true,
	ExpandedStruct:             true,
	RequiredFromJSONSchemaTags: true,
}

// Reflect returns the JSON schema of v under the config conventions: fields
// are required only when tagged so, and unknown keys are accepted.
func Reflect(v any) *jsonschema.Schema {
	return reflector.Reflect(v)
}

// SystemConfigSchema returns the JSON schema of the AI system config.
func SystemConfigSchema() *jsonschema.Schema {
	s := Reflect(&SystemConfig{})
	s.Title = "AI system config"
	s.Description = "Parameters recorded on the AI system model in development mode."
	return s
}

// DecodeSystemConfig reads the well-known sections out of parsed config
// params. Unknown keys are ignored; known keys with the wrong shape are errors.
func DecodeSystemConfig(params map[string]any) (SystemConfig, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return SystemConfig{}, fmt.Errorf("encoding config params: %w", err)
	}
	var cfg SystemConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return SystemConfig{}, fmt.Errorf("invalid AI system config: %w", err)
	}
	if cfg.LLM != nil && cfg.LLM.ChatModel == "" {
		return SystemConfig{}, fmt.Errorf("invalid AI system config: llm.chat_model is required")
	}
	return cfg, nil
}
