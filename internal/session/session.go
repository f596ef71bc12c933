// Package session manages chat session lifecycle: creation against the model
// allow-list, lookup, and the one-turn-at-a-time guard.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reviewagent/reviewagent/internal/config"
	"github.com/reviewagent/reviewagent/internal/logger"
	"github.com/reviewagent/reviewagent/internal/store"
)

var (
	// ErrInvalidModel is returned when the requested model is not allowed.
	ErrInvalidModel = errors.New("model is not in the allowed model list")
	// ErrTurnInProgress is returned when a session already has an in-flight turn.
	ErrTurnInProgress = errors.New("a turn is already in progress for this session")
)

// Manager creates and looks up sessions. Sessions are immutable: no update or
// delete is exposed.
type Manager struct {
	store *store.Store
	cfg   config.LLMConfig

	inflight sync.Map // session id -> struct{}
}

// NewManager creates a session manager.
func NewManager(st *store.Store, cfg config.LLMConfig) *Manager {
	return &Manager{store: st, cfg: cfg}
}

// Create validates the model against the allow-list and persists a new
// session. An empty model falls back to the configured default. Nothing is
// persisted when validation fails.
func (m *Manager) Create(ctx context.Context, model string) (store.Session, error) {
	if model == "" {
		model = m.cfg.DefaultModel
	}
	if !m.cfg.AllowsModel(model) {
		return store.Session{}, ErrInvalidModel
	}

	session := store.Session{
		ID:        uuid.NewString(),
		Model:     model,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.CreateSession(ctx, session); err != nil {
		return store.Session{}, err
	}
	logger.L.Info("session created", "session_id", session.ID, "model", session.Model)
	return session, nil
}

// Get returns the session with the given id, or store.ErrSessionNotFound.
func (m *Manager) Get(ctx context.Context, id string) (store.Session, error) {
	return m.store.GetSession(ctx, id)
}

// AllowedModels returns the configured model allow-list.
func (m *Manager) AllowedModels() []string {
	return m.cfg.AllowedModels
}

// BeginTurn marks the session as having an in-flight turn and returns the
// release function. The release is safe to call exactly once and must always
// run, or the session would refuse new turns forever.
func (m *Manager) BeginTurn(sessionID string) (func(), error) {
	if _, loaded := m.inflight.LoadOrStore(sessionID, struct{}{}); loaded {
		return nil, ErrTurnInProgress
	}
	return func() { m.inflight.Delete(sessionID) }, nil
}
