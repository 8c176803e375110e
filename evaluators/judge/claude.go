/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"context"
	"strings"

	"chainguard.dev/evaltrace/tracing/autolog"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider is the autolog integration name for Claude calls.
const AnthropicProvider = "anthropic"

func init() {
	autolog.Register(AnthropicProvider, func(context.Context) error { return nil })
}

// claudeCompleter implements Completer using the Anthropic Messages API
type claudeCompleter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

var _ Completer = (*claudeCompleter)(nil)

// NewClaude creates a Completer on the Anthropic Messages API. The client
// reads ANTHROPIC_API_KEY unless opts override it.
func NewClaude(model string, opts ...option.RequestOption) Completer {
	return &claudeCompleter{
		client: anthropic.NewClient(opts...),
		model:  model,
		// Verdicts are a single number.
		maxTokens: 16,
	}
}

func (c *claudeCompleter) Provider() string { return AnthropicProvider }

func (c *claudeCompleter) Model() string { return c.model }

func (c *claudeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(0.0),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{{
			Role:    anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(user)},
		}},
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
