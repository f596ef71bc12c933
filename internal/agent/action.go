package agent

import (
	"encoding/json"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Action is the tagged variant produced by parsing one model response: the
// model either requested a review lookup or gave a final answer. Dispatch is
// a type switch, never reflection.
type Action interface {
	isAction()
}

// AnswerAction carries the model's final natural-language answer.
type AnswerAction struct {
	Text string
}

// ToolAction carries a review lookup request. An empty Query marks a
// malformed request that could not be mapped to a place query.
type ToolAction struct {
	Query string
	Calls []openai.ToolCall
}

func (AnswerAction) isAction() {}
func (ToolAction) isAction()   {}

const reviewToolName = "fetch_place_reviews"

// reviewTool is the single tool declared to the model.
var reviewTool = openai.Tool{
	Type: openai.ToolTypeFunction,
	Function: &openai.FunctionDefinition{
		Name:        reviewToolName,
		Description: "Fetch the overall rating and the latest review excerpts for a place from Google Places and TripAdvisor.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {
					"type": "string",
					"description": "The place to look up, optionally with a location, e.g. \"Cafe Bloom, Lisbon\""
				}
			},
			"required": ["query"]
		}`),
	},
}

// decodeToolAction maps the accumulated tool calls of a response to a
// ToolAction. Unparseable arguments yield an empty Query; the caller decides
// the fallback.
func decodeToolAction(calls []openai.ToolCall) ToolAction {
	action := ToolAction{Calls: calls}
	if calls[0].Function.Name != reviewToolName {
		return action
	}
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(calls[0].Function.Arguments), &args); err != nil {
		return action
	}
	action.Query = strings.TrimSpace(args.Query)
	return action
}

// accumulateToolCalls folds streaming tool-call deltas into complete calls.
// The first delta of a call carries id/type/name, later deltas append
// argument text.
func accumulateToolCalls(calls []openai.ToolCall, deltas []openai.ToolCall) []openai.ToolCall {
	for _, d := range deltas {
		idx := 0
		if d.Index != nil {
			idx = *d.Index
		}
		for len(calls) <= idx {
			calls = append(calls, openai.ToolCall{})
		}
		call := &calls[idx]
		if d.ID != "" {
			call.ID = d.ID
		}
		if d.Type != "" {
			call.Type = d.Type
		}
		if d.Function.Name != "" {
			call.Function.Name += d.Function.Name
		}
		call.Function.Arguments += d.Function.Arguments
	}
	return calls
}
