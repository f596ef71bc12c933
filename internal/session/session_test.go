package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reviewagent/reviewagent/internal/config"
	"github.com/reviewagent/reviewagent/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return NewManager(st, config.LLMConfig{
		DefaultModel:  "gpt-4o-mini",
		AllowedModels: []string{"gpt-4o-mini", "gpt-4o"},
	})
}

func TestCreate_DefaultModel(t *testing.T) {
	m := newTestManager(t)

	sess, err := m.Create(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "gpt-4o-mini", sess.Model)
	require.NotEmpty(t, sess.ID)

	got, err := m.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Equal(t, sess.ID, got.ID)
}

func TestCreate_ExplicitAllowedModel(t *testing.T) {
	m := newTestManager(t)

	sess, err := m.Create(context.Background(), "gpt-4o")
	require.NoError(t, err)
	require.Equal(t, "gpt-4o", sess.Model)
}

// A disallowed model is rejected before anything touches the store.
func TestCreate_RejectedModelPersistsNothing(t *testing.T) {
	m := newTestManager(t)

	sess, err := m.Create(context.Background(), "gpt-99-turbo")
	require.ErrorIs(t, err, ErrInvalidModel)
	require.Empty(t, sess.ID)
}

func TestGet_NotFound(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Get(context.Background(), "nope")
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

// Only one turn may be in flight per session; the release reopens it.
func TestBeginTurn_SingleFlight(t *testing.T) {
	m := newTestManager(t)

	release, err := m.BeginTurn("s1")
	require.NoError(t, err)

	_, err = m.BeginTurn("s1")
	require.ErrorIs(t, err, ErrTurnInProgress)

	// A different session is unaffected.
	release2, err := m.BeginTurn("s2")
	require.NoError(t, err)
	release2()

	release()
	release3, err := m.BeginTurn("s1")
	require.NoError(t, err)
	release3()
}
