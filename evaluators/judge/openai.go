/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"context"
	"errors"

	"chainguard.dev/evaltrace/tracing/autolog"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider is the autolog integration name for OpenAI calls.
const OpenAIProvider = "openai"

func init() {
	// Calls are traced by the Judge itself; enabling needs no setup.
	autolog.Register(OpenAIProvider, func(context.Context) error { return nil })
}

type openAICompleter struct {
	client openai.Client
	model  string
}

var _ Completer = (*openAICompleter)(nil)

// NewOpenAI creates a Completer on the OpenAI chat completions API. The
// client reads OPENAI_API_KEY and OPENAI_BASE_URL unless opts override them.
func NewOpenAI(model string, opts ...option.RequestOption) Completer {
	return &openAICompleter{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (c *openAICompleter) Provider() string { return OpenAIProvider }

func (c *openAICompleter) Model() string { return c.model }

func (c *openAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
