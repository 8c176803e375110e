/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"context"
	"fmt"

	"chainguard.dev/evaltrace/tracing/fieldpath"
	"github.com/sethvargo/go-envconfig"
)

// Default models when neither the environment nor the AI system config names one.
const (
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultClaudeModel = "claude-sonnet-4-5"
)

// ChatModelPath locates the chat model in an AI system config.
const ChatModelPath = "llm.chat_model"

// Config selects the judge's provider and model.
type Config struct {
	Provider string `env:"EVALTRACE_JUDGE_PROVIDER,default=openai"`
	Model    string `env:"EVALTRACE_JUDGE_MODEL"`
}

// LoadConfig reads Config through l, or the process environment when l is nil.
func LoadConfig(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	if l == nil {
		l = envconfig.OsLookuper()
	}
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return Config{}, fmt.Errorf("reading judge config: %w", err)
	}
	return cfg, nil
}

// ChatModel returns the model named at llm.chat_model in an AI system
// config, or "" when there is none.
func ChatModel(systemConfig map[string]any) string {
	v, err := fieldpath.Extract(systemConfig, ChatModelPath)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// FromConfig creates a Judge for cfg. The model is taken from cfg, then from
// the AI system config, then the provider default.
func FromConfig(cfg Config, systemConfig map[string]any, opts ...Option) (*Judge, error) {
	model := cfg.Model
	if model == "" {
		model = ChatModel(systemConfig)
	}

	var c Completer
	switch cfg.Provider {
	case OpenAIProvider, "":
		if model == "" {
			model = DefaultOpenAIModel
		}
		c = NewOpenAI(model)
	case AnthropicProvider:
		if model == "" {
			model = DefaultClaudeModel
		}
		c = NewClaude(model)
	default:
		return nil, fmt.Errorf("unsupported judge provider %q (expected %s or %s)", cfg.Provider, OpenAIProvider, AnthropicProvider)
	}
	return New(c, opts...), nil
}
