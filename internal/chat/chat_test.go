package chat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/reviewagent/reviewagent/internal/config"
	"github.com/reviewagent/reviewagent/internal/memory"
	"github.com/reviewagent/reviewagent/internal/session"
	"github.com/reviewagent/reviewagent/internal/store"
)

// fakeRunner emits canned fragments, then returns their concatenation (or a
// canned error). It can optionally block until released, to exercise the turn
// guard.
type fakeRunner struct {
	fragments []string
	err       error
	block     chan struct{}

	conversations [][]openai.ChatCompletionMessage
}

func (f *fakeRunner) RunTurn(ctx context.Context, model string, conversation []openai.ChatCompletionMessage, emit func(string) error) (string, error) {
	f.conversations = append(f.conversations, conversation)
	if f.block != nil {
		<-f.block
	}
	for _, frag := range f.fragments {
		if err := emit(frag); err != nil {
			return "", err
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return strings.Join(f.fragments, ""), nil
}

type testHarness struct {
	store   *store.Store
	service *Service
	session store.Session
}

func newTestHarness(t *testing.T, runner TurnRunner) *testHarness {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sessions := session.NewManager(st, config.LLMConfig{
		DefaultModel:  "gpt-4o-mini",
		AllowedModels: []string{"gpt-4o-mini"},
	})
	sess, err := sessions.Create(context.Background(), "")
	require.NoError(t, err)

	svc := NewService(sessions, st, memory.Assembler{Window: 20}, runner, time.Minute)
	return &testHarness{store: st, service: svc, session: sess}
}

func drain(t *testing.T, ch <-chan Fragment) ([]string, error) {
	t.Helper()
	var texts []string
	for f := range ch {
		if f.Err != nil {
			return texts, f.Err
		}
		texts = append(texts, f.Text)
	}
	return texts, nil
}

// The persisted assistant message is exactly the concatenation of the
// fragments the consumer saw.
func TestStreamTurn_PersistsConcatenation(t *testing.T) {
	runner := &fakeRunner{fragments: []string{"Cafe Bloom ", "is rated ", "4.5."}}
	h := newTestHarness(t, runner)

	ch, err := h.service.StreamTurn(context.Background(), h.session.ID, "reviews for cafe bloom?")
	require.NoError(t, err)

	texts, streamErr := drain(t, ch)
	require.NoError(t, streamErr)
	require.Equal(t, []string{"Cafe Bloom ", "is rated ", "4.5."}, texts)

	messages, err := h.store.ListMessages(context.Background(), h.session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, store.RoleUser, messages[0].Role)
	require.Equal(t, "reviews for cafe bloom?", messages[0].Content)
	require.Equal(t, store.RoleAssistant, messages[1].Role)
	require.Equal(t, strings.Join(texts, ""), messages[1].Content)
}

// The runner sees the prior transcript but not the just-appended user
// message as history; the utterance arrives as the final message.
func TestStreamTurn_HistoryExcludesCurrentUtterance(t *testing.T) {
	runner := &fakeRunner{fragments: []string{"ok"}}
	h := newTestHarness(t, runner)
	ctx := context.Background()

	ch, err := h.service.StreamTurn(ctx, h.session.ID, "first question")
	require.NoError(t, err)
	_, _ = drain(t, ch)

	ch, err = h.service.StreamTurn(ctx, h.session.ID, "second question")
	require.NoError(t, err)
	_, _ = drain(t, ch)

	require.Len(t, runner.conversations, 2)
	first := runner.conversations[0]
	require.Len(t, first, 2) // system + utterance
	require.Equal(t, "first question", first[len(first)-1].Content)

	second := runner.conversations[1]
	require.Len(t, second, 4) // system + 2 history + utterance
	require.Equal(t, "first question", second[1].Content)
	require.Equal(t, "ok", second[2].Content)
	require.Equal(t, "second question", second[len(second)-1].Content)
}

// A failed turn surfaces the error as the final fragment and persists a
// generic notice, never the raw error.
func TestStreamTurn_FailureTurn(t *testing.T) {
	turnErr := errors.New("model exploded: secret details")
	runner := &fakeRunner{err: turnErr}
	h := newTestHarness(t, runner)

	ch, err := h.service.StreamTurn(context.Background(), h.session.ID, "hi")
	require.NoError(t, err)

	_, streamErr := drain(t, ch)
	require.ErrorIs(t, streamErr, turnErr)

	messages, err := h.store.ListMessages(context.Background(), h.session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, store.RoleAssistant, messages[1].Role)
	require.Equal(t, errorNotice, messages[1].Content)
	require.NotContains(t, messages[1].Content, "secret details")
}

func TestStreamTurn_EmptyMessage(t *testing.T) {
	h := newTestHarness(t, &fakeRunner{})
	_, err := h.service.StreamTurn(context.Background(), h.session.ID, "")
	require.ErrorIs(t, err, ErrEmptyMessage)
}

func TestStreamTurn_UnknownSession(t *testing.T) {
	h := newTestHarness(t, &fakeRunner{})
	_, err := h.service.StreamTurn(context.Background(), "nope", "hi")
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

// A second turn on the same session is rejected while the first is running
// and allowed again once it finishes.
func TestStreamTurn_TurnGuard(t *testing.T) {
	runner := &fakeRunner{fragments: []string{"done"}, block: make(chan struct{})}
	h := newTestHarness(t, runner)
	ctx := context.Background()

	ch, err := h.service.StreamTurn(ctx, h.session.ID, "first")
	require.NoError(t, err)

	_, err = h.service.StreamTurn(ctx, h.session.ID, "second")
	require.ErrorIs(t, err, session.ErrTurnInProgress)

	close(runner.block)
	_, streamErr := drain(t, ch)
	require.NoError(t, streamErr)

	ch, err = h.service.StreamTurn(ctx, h.session.ID, "third")
	require.NoError(t, err)
	_, streamErr = drain(t, ch)
	require.NoError(t, streamErr)
}

// The guard is released even when the turn fails.
func TestStreamTurn_GuardReleasedAfterFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("boom")}
	h := newTestHarness(t, runner)
	ctx := context.Background()

	ch, err := h.service.StreamTurn(ctx, h.session.ID, "first")
	require.NoError(t, err)
	_, streamErr := drain(t, ch)
	require.Error(t, streamErr)

	runner.err = nil
	runner.fragments = []string{"recovered"}
	ch, err = h.service.StreamTurn(ctx, h.session.ID, "second")
	require.NoError(t, err)
	_, streamErr = drain(t, ch)
	require.NoError(t, streamErr)
}

// A consumer that vanishes mid-turn leaves only its own message behind.
func TestStreamTurn_CanceledConsumerPersistsNoAnswer(t *testing.T) {
	runner := &fakeRunner{fragments: []string{"a", "b", "c"}}
	h := newTestHarness(t, runner)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := h.service.StreamTurn(ctx, h.session.ID, "hi")
	require.NoError(t, err)

	// Read one fragment, then walk away without draining.
	<-ch
	cancel()

	// The producer needs a beat to observe the cancellation and finish.
	require.Eventually(t, func() bool {
		messages, err := h.store.ListMessages(context.Background(), h.session.ID)
		if err != nil || len(messages) != 1 {
			return false
		}
		return messages[0].Role == store.RoleUser
	}, time.Second, 10*time.Millisecond)
}
