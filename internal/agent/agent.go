// Package agent implements the reasoning loop: a finite state machine that
// decides per step whether to consult the review aggregator or to answer
// directly, with an enforced step bound and bounded model retries.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/qmuntal/stateless"
	"github.com/sashabaranov/go-openai"

	"github.com/reviewagent/reviewagent/internal/llm"
	"github.com/reviewagent/reviewagent/internal/logger"
	"github.com/reviewagent/reviewagent/pkg/reviews"
)

// FSM states
type FSMState stateless.State

var (
	StateThink   FSMState = "Think"
	StateAct     FSMState = "Act"
	StateObserve FSMState = "Observe"
	StateAnswer  FSMState = "Answer" // Terminal: answer produced
	StateFailed  FSMState = "Failed" // Terminal: model failure
)

// FSM triggers
type FSMTrigger stateless.Trigger

var (
	triggerBeginTurn      FSMTrigger = "BeginTurn"
	triggerToolRequested  FSMTrigger = "ToolRequested"
	triggerObserved       FSMTrigger = "Observed"
	triggerThinkAgain     FSMTrigger = "ThinkAgain"
	triggerAnswerStreamed FSMTrigger = "AnswerStreamed"
	triggerForceAnswer    FSMTrigger = "ForceAnswer"
	triggerModelFailed    FSMTrigger = "ModelFailed"
)

// Fallback instructions for the forced-answer paths.
const (
	fallbackMalformed = "Your last tool request could not be understood. Answer the user's question directly from the conversation and any observations gathered so far. Do not request the tool again and do not invent review data."
	fallbackStepLimit = "You have used the maximum number of tool lookups for this turn. Give your best final answer now using the observations gathered so far, attributing every claim to its provider. If data could not be retrieved, say so plainly."
	fallbackEmpty     = "Provide your final answer to the user's last message now, using only the conversation and any observations above. Never fabricate review data."
)

const retryBaseDelay = 200 * time.Millisecond

// ReviewSource is the tool family available to the loop. It never fails as a
// whole: per-provider errors are carried inside the Results.
type ReviewSource interface {
	Fetch(ctx context.Context, query string) map[reviews.Provider]reviews.Result
}

// Config bounds one turn of the loop.
type Config struct {
	MaxSteps     int
	ModelRetries int
}

// EmitFunc receives each answer fragment as soon as it is produced. A
// non-nil return stops the producer.
type EmitFunc = func(fragment string) error

// Agent drives the reasoning loop for a turn.
type Agent struct {
	llmClient llm.Client
	source    ReviewSource
	cfg       Config
}

// New creates a new agent.
func New(llmClient llm.Client, source ReviewSource, cfg Config) *Agent {
	return &Agent{llmClient: llmClient, source: source, cfg: cfg}
}

// turnContext is the per-turn mutable state threaded through the FSM.
type turnContext struct {
	model    string
	messages []openai.ChatCompletionMessage // conversation context + this turn's scratchpad
	emit     EmitFunc

	steps       int
	pending     ToolAction
	observation string
	forced      string // fallback instruction; non-empty means ANSWER must call the model itself
	answer      strings.Builder
	lastErr     error
}

// RunTurn runs the loop for one turn over the assembled conversation and
// returns the final answer, which is exactly the concatenation of the
// fragments passed to emit. The context carries the turn deadline.
func (a *Agent) RunTurn(ctx context.Context, model string, conversation []openai.ChatCompletionMessage, emit EmitFunc) (string, error) {
	turn := &turnContext{model: model, messages: conversation, emit: emit}

	fsm := stateless.NewStateMachine(StateThink)

	// THINK: call the model with the review tool declared and parse the
	// response into an Action. Content deltas of an answering response are
	// forwarded to the consumer as they arrive.
	fsm.Configure(StateThink).
		PermitReentry(triggerBeginTurn).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if turn.steps >= a.cfg.MaxSteps {
				logger.L.Warn("step bound reached, forcing answer", "max_steps", a.cfg.MaxSteps)
				turn.forced = fallbackStepLimit
				return fsm.FireCtx(ctx, triggerForceAnswer)
			}
			turn.steps++

			action, err := a.streamCompletion(ctx, turn, openai.ChatCompletionRequest{
				Model:    turn.model,
				Messages: turn.messages,
				Tools:    []openai.Tool{reviewTool},
			})
			if err != nil {
				turn.lastErr = err
				return fsm.FireCtx(ctx, triggerModelFailed)
			}

			switch act := action.(type) {
			case ToolAction:
				turn.pending = act
				return fsm.FireCtx(ctx, triggerToolRequested)
			case AnswerAction:
				if act.Text == "" {
					turn.forced = fallbackEmpty
					return fsm.FireCtx(ctx, triggerForceAnswer)
				}
				return fsm.FireCtx(ctx, triggerAnswerStreamed)
			default:
				turn.lastErr = fmt.Errorf("unhandled action type %T", action)
				return fsm.FireCtx(ctx, triggerModelFailed)
			}
		}).
		Permit(triggerToolRequested, StateAct).
		Permit(triggerAnswerStreamed, StateAnswer).
		Permit(triggerForceAnswer, StateAnswer).
		Permit(triggerModelFailed, StateFailed)

	// ACT: run the review lookup. A malformed request is not retried; the
	// loop falls through to a direct answer instead.
	fsm.Configure(StateAct).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if turn.pending.Query == "" {
				logger.L.Warn("malformed tool request, forcing direct answer")
				turn.forced = fallbackMalformed
				return fsm.FireCtx(ctx, triggerForceAnswer)
			}
			logger.L.Debug("fetching reviews", "query", turn.pending.Query)
			results := a.source.Fetch(ctx, turn.pending.Query)
			turn.observation = reviews.FormatObservation(turn.pending.Query, results)
			return fsm.FireCtx(ctx, triggerObserved)
		}).
		Permit(triggerObserved, StateObserve).
		Permit(triggerForceAnswer, StateAnswer)

	// OBSERVE: serialize the tool round-trip into the scratchpad and think
	// again.
	fsm.Configure(StateObserve).
		OnEntry(func(ctx context.Context, _ ...any) error {
			turn.messages = append(turn.messages,
				openai.ChatCompletionMessage{
					Role:      openai.ChatMessageRoleAssistant,
					ToolCalls: turn.pending.Calls,
				},
				openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    turn.observation,
					ToolCallID: turn.pending.Calls[0].ID,
					Name:       reviewToolName,
				})
			turn.pending = ToolAction{}
			turn.observation = ""
			return fsm.FireCtx(ctx, triggerThinkAgain)
		}).
		Permit(triggerThinkAgain, StateThink)

	// ANSWER: terminal. When the answer was already streamed during THINK
	// there is nothing left to do; a forced entry makes one dedicated
	// streaming call without tools.
	fsm.Configure(StateAnswer).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if turn.forced == "" {
				return nil
			}
			messages := append(turn.messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: turn.forced,
			})
			_, err := a.streamCompletion(ctx, turn, openai.ChatCompletionRequest{
				Model:    turn.model,
				Messages: messages,
			})
			if err != nil {
				turn.lastErr = err
				return fsm.FireCtx(ctx, triggerModelFailed)
			}
			if turn.answer.Len() == 0 {
				turn.lastErr = errors.New("model produced no final answer")
				return fsm.FireCtx(ctx, triggerModelFailed)
			}
			return nil
		}).
		Permit(triggerModelFailed, StateFailed)

	// FAILED: terminal. The model call itself errored after exhausting
	// retries.
	fsm.Configure(StateFailed).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if turn.lastErr == nil {
				turn.lastErr = errors.New("reasoning loop failed without a specific error")
			}
			return nil
		})

	if err := fsm.FireCtx(ctx, triggerBeginTurn); err != nil {
		if turn.lastErr != nil {
			return "", turn.lastErr
		}
		return "", fmt.Errorf("reasoning loop: %w", err)
	}

	state, err := fsm.State(ctx)
	if err != nil {
		return "", fmt.Errorf("reasoning loop state: %w", err)
	}
	switch state {
	case StateAnswer:
		return turn.answer.String(), nil
	case StateFailed:
		return "", turn.lastErr
	default:
		return "", fmt.Errorf("reasoning loop ended in unexpected state: %v", state)
	}
}

// streamCompletion performs one model call with bounded retries. A stream
// that failed after fragments were already forwarded is not retried: the
// consumer has seen output that a fresh stream would not reproduce.
func (a *Agent) streamCompletion(ctx context.Context, turn *turnContext, req openai.ChatCompletionRequest) (Action, error) {
	var lastErr error
	for attempt := 0; attempt <= a.cfg.ModelRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * retryBaseDelay
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		emittedBefore := turn.answer.Len()
		action, err := a.readStream(ctx, turn, req)
		if err == nil {
			return action, nil
		}
		lastErr = err
		logger.L.Warn("model call failed", "attempt", attempt+1, "error", err)
		if turn.answer.Len() > emittedBefore || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// readStream consumes one streaming completion. Tool-call deltas accumulate
// into a ToolAction; content arriving before any tool call marks the call as
// answer-producing and every content delta is forwarded immediately. A
// response that mixes content with later tool calls counts as an answer: the
// ambiguity tie-break always favors answering over another parse attempt.
func (a *Agent) readStream(ctx context.Context, turn *turnContext, req openai.ChatCompletionRequest) (Action, error) {
	stream, err := a.llmClient.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var calls []openai.ToolCall
	answering := false
	answered := ""
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta

		if len(delta.ToolCalls) > 0 && !answering {
			calls = accumulateToolCalls(calls, delta.ToolCalls)
			continue
		}
		if delta.Content == "" {
			continue
		}
		if len(calls) > 0 {
			// Thought text alongside an already-started tool request:
			// internal, never forwarded.
			continue
		}
		answering = true
		answered += delta.Content
		turn.answer.WriteString(delta.Content)
		if err := turn.emit(delta.Content); err != nil {
			return nil, err
		}
	}

	if answering {
		return AnswerAction{Text: answered}, nil
	}
	if len(calls) > 0 {
		return decodeToolAction(calls), nil
	}
	return AnswerAction{}, nil
}
