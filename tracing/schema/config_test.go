/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package schema_test

import (
	"encoding/json"
	"testing"

	"chainguard.dev/evaltrace/tracing/schema"
	"github.com/google/go-cmp/cmp"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

func TestReflect(t *testing.T) {
	type nested struct {
		Value string `json:"value" jsonschema:"description=Nested value"`
	}
	type sample struct {
		Name   string  `json:"name" jsonschema:"description=Name,required"`
		Count  int     `json:"count,omitempty"`
		Nested *nested `json:"nested,omitempty"`
	}

	s := schema.Reflect(&sample{})
	if s == nil {
		t.Fatal("expected schema")
	}
	if len(s.Required) != 1 || s.Required[0] != "name" {
		t.Fatalf("unexpected required: %#v", s.Required)
	}
	nestedSchema, ok := s.Properties.Get("nested")
	if !ok {
		t.Fatal("missing nested property")
	}
	valueSchema, ok := nestedSchema.Properties.Get("value")
	if !ok {
		t.Fatal("missing nested value property")
	}
	if valueSchema.Description != "Nested value" {
		t.Fatalf("unexpected nested description: %q", valueSchema.Description)
	}
}

func TestSystemConfigSchema(t *testing.T) {
	s := schema.SystemConfigSchema()
	if s.Title != "AI system config" {
		t.Errorf("title: got = %q, wanted = AI system config", s.Title)
	}

	llm, ok := s.Properties.Get("llm")
	if !ok {
		t.Fatal("missing llm property")
	}
	if diff := cmp.Diff([]string{"chat_model"}, llm.Required); diff != "" {
		t.Errorf("llm required (-want +got):\n%s", diff)
	}
	provider, ok := llm.Properties.Get("provider")
	if !ok {
		t.Fatal("missing llm.provider property")
	}
	if diff := cmp.Diff([]any{"openai", "anthropic"}, provider.Enum); diff != "" {
		t.Errorf("provider enum (-want +got):\n%s", diff)
	}

	if _, err := json.Marshal(s); err != nil {
		t.Errorf("Marshal: %v", err)
	}

	// Extra params are allowed anywhere and the schema is not tied to a Go
	// package path.
	if s.ID != "" {
		t.Errorf("$id: got = %q, wanted none", s.ID)
	}
	for name, p := range map[string]*jsonschema.Schema{"root": s, "llm": llm} {
		if p.AdditionalProperties != nil {
			t.Errorf("%s additionalProperties: got = %v, wanted unset", name, p.AdditionalProperties)
		}
	}
}

func TestDecodeSystemConfig(t *testing.T) {
	const doc = `
llm:
  chat_model: gpt-4o-mini
  temperature: 0.2
retrieval:
  top_k: 4
owner: search-team
`
	var params map[string]any
	if err := yaml.Unmarshal([]byte(doc), &params); err != nil {
		t.Fatalf("yaml: %v", err)
	}

	got, err := schema.DecodeSystemConfig(params)
	if err != nil {
		t.Fatalf("DecodeSystemConfig: %v", err)
	}
	temp := 0.2
	want := schema.SystemConfig{
		LLM:       &schema.LLMConfig{ChatModel: "gpt-4o-mini", Temperature: &temp},
		Retrieval: &schema.RetrievalConfig{TopK: 4},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DecodeSystemConfig (-want +got):\n%s", diff)
	}
}

func TestDecodeSystemConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
	}{
		{name: "llm not a mapping", params: map[string]any{"llm": "gpt-4o"}},
		{name: "top_k not a number", params: map[string]any{"retrieval": map[string]any{"top_k": "four"}}},
		{name: "missing chat model", params: map[string]any{"llm": map[string]any{"temperature": 0.1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := schema.DecodeSystemConfig(tt.params); err == nil {
				t.Error("DecodeSystemConfig: got = nil, wanted error")
			}
		})
	}
}

func TestDecodeEmptyConfig(t *testing.T) {
	got, err := schema.DecodeSystemConfig(map[string]any{})
	if err != nil {
		t.Fatalf("DecodeSystemConfig: %v", err)
	}
	if diff := cmp.Diff(schema.SystemConfig{}, got); diff != "" {
		t.Errorf("DecodeSystemConfig (-want +got):\n%s", diff)
	}
}
