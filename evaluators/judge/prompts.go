/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	// HelpfulnessLabel is the evaluation label of Helpfulness results.
	HelpfulnessLabel = "helpfulness"
	// FulfillmentLabel is the evaluation label of Fulfillment results. The
	// spelling matches the label existing dashboards aggregate on.
	FulfillmentLabel = "fullfilled"
)

const helpfulnessPrompt = `You are an llm judge for llm assistants who knows how to evaluate helpfulness of the assistant. ` +
	`You will be given an assistant's response and you will return a 1 if it was helpful and 0 if it was not. ` +
	`You will only reply with 1 or 0`

const fulfillmentPrompt = `You are an llm judge for llm assistants who knows how to evaluate whether a question ` +
	`was fulfilled or not. You will be given an assistant's response and you will return a number from 0 - 1, ` +
	`where 0.0 means the answer is completely wrong or doesn't contain relevant information, ` +
	`1.0 means the answer is completely correct and 0.5 means it was ok, but could have been more helpful. ` +
	`ONLY respond with a float from 0.0 to 1.0`

// userMessage renders the judged exchange.
func userMessage(question, answer any) string {
	return fmt.Sprintf("the question was: %s, and the answer was %s", render(question), render(answer))
}

// render prints strings as-is and everything else as JSON.
func render(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// parseBinary reads a 0 or 1 verdict. An empty reply counts as 0.
func parseBinary(reply string) (int64, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(reply, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("judge replied %q, wanted 0 or 1", reply)
	}
	if n != 0 && n != 1 {
		return 0, fmt.Errorf("judge replied %d, wanted 0 or 1", n)
	}
	return n, nil
}

// parseScore reads a score in [0, 1]. An empty reply counts as 0.
func parseScore(reply string) (float64, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(reply, 64)
	if err != nil {
		return 0, fmt.Errorf("judge replied %q, wanted a score from 0.0 to 1.0", reply)
	}
	if f < 0 || f > 1 {
		return 0, fmt.Errorf("judge score %v is outside [0, 1]", f)
	}
	return f, nil
}
