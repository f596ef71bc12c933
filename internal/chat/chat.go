// Package chat runs one conversational turn end to end: guard the session,
// persist the user message, assemble the prompt context, drive the reasoning
// loop, stream fragments out, and persist the final answer.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/reviewagent/reviewagent/internal/logger"
	"github.com/reviewagent/reviewagent/internal/memory"
	"github.com/reviewagent/reviewagent/internal/session"
	"github.com/reviewagent/reviewagent/internal/store"
)

// ErrEmptyMessage is returned for a blank user message.
var ErrEmptyMessage = errors.New("message must not be empty")

// errorNotice is persisted as the assistant message of a failed turn so the
// transcript stays consistent. Raw errors never reach the transcript.
const errorNotice = "I ran into an internal error while answering. Please try again."

// Fragment is one unit of the answer stream. A Fragment with Err set is the
// last one sent and marks a failed turn.
type Fragment struct {
	Text string
	Err  error
}

// TurnRunner is the reasoning loop seen by the pipeline.
type TurnRunner interface {
	RunTurn(ctx context.Context, model string, conversation []openai.ChatCompletionMessage, emit func(string) error) (string, error)
}

// Service wires sessions, the store, context assembly and the reasoning loop
// into the streaming turn pipeline.
type Service struct {
	sessions  *session.Manager
	store     *store.Store
	assembler memory.Assembler
	runner    TurnRunner
	timeout   time.Duration
}

// NewService creates the turn pipeline.
func NewService(sessions *session.Manager, st *store.Store, assembler memory.Assembler, runner TurnRunner, turnTimeout time.Duration) *Service {
	return &Service{
		sessions:  sessions,
		store:     st,
		assembler: assembler,
		runner:    runner,
		timeout:   turnTimeout,
	}
}

// StreamTurn runs one turn for the session and streams the answer fragments
// on the returned channel. Errors detectable up front (unknown session, empty
// message, a turn already in flight) are returned directly; everything after
// that arrives on the channel, a failure as a final Fragment with Err set.
// The channel is closed when the turn is over.
//
// The user message is persisted before the loop runs. On success the
// assistant message persisted is exactly the concatenation of the streamed
// fragments. On failure a generic error notice is persisted instead, except
// when the consumer's context was canceled: a vanished consumer gets nothing
// persisted beyond its own message.
func (s *Service) StreamTurn(ctx context.Context, sessionID, message string) (<-chan Fragment, error) {
	if message == "" {
		return nil, ErrEmptyMessage
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	release, err := s.sessions.BeginTurn(sessionID)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			release()
		}
	}()

	// History is read before the new message is appended: the assembler
	// places the utterance itself at the end.
	history, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Append(ctx, sessionID, store.RoleUser, message); err != nil {
		return nil, err
	}
	conversation := s.assembler.Assemble(history, message)

	out := make(chan Fragment)
	ok = true
	go func() {
		defer release()
		defer close(out)
		s.runTurn(ctx, sess, conversation, out)
	}()
	return out, nil
}

func (s *Service) runTurn(ctx context.Context, sess store.Session, conversation []openai.ChatCompletionMessage, out chan<- Fragment) {
	turnCtx := ctx
	cancel := context.CancelFunc(func() {})
	if s.timeout > 0 {
		turnCtx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	defer cancel()

	started := time.Now()
	emit := func(fragment string) error {
		select {
		case out <- Fragment{Text: fragment}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	answer, err := s.runner.RunTurn(turnCtx, sess.Model, conversation, emit)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			logger.L.Info("turn abandoned by consumer", "session_id", sess.ID)
			return
		}
		logger.L.Error("turn failed", "session_id", sess.ID, "error", err)
		// Persistence must not depend on the (possibly expired) turn
		// deadline.
		if _, perr := s.store.Append(context.WithoutCancel(ctx), sess.ID, store.RoleAssistant, errorNotice); perr != nil {
			logger.L.Error("persisting error notice failed", "session_id", sess.ID, "error", perr)
		}
		select {
		case out <- Fragment{Err: err}:
		case <-ctx.Done():
		}
		return
	}

	if _, err := s.store.Append(context.WithoutCancel(ctx), sess.ID, store.RoleAssistant, answer); err != nil {
		logger.L.Error("persisting answer failed", "session_id", sess.ID, "error", err)
		select {
		case out <- Fragment{Err: err}:
		case <-ctx.Done():
		}
		return
	}
	logger.L.Info("turn completed", "session_id", sess.ID, "duration", time.Since(started).String())
}
