// Package server exposes the HTTP API: session management, transcript
// retrieval and the SSE chat endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/reviewagent/reviewagent/internal/chat"
	"github.com/reviewagent/reviewagent/internal/logger"
	"github.com/reviewagent/reviewagent/internal/session"
	"github.com/reviewagent/reviewagent/internal/store"
)

// Server is the HTTP front of the service.
type Server struct {
	echo     *echo.Echo
	sessions *session.Manager
	chat     *chat.Service
	store    *store.Store
}

// New creates the server and registers all routes.
func New(sessions *session.Manager, chatSvc *chat.Service, st *store.Store) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, sessions: sessions, chat: chatSvc, store: st}
	e.POST("/sessions", s.createSession)
	e.GET("/sessions/:id", s.getSession)
	e.GET("/sessions/:id/messages", s.listMessages)
	e.POST("/chat", s.chatStream)
	e.GET("/healthz", s.health)
	return s
}

// Echo exposes the underlying router, for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start listens on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	logger.L.Info("http server listening", "addr", addr)
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
}

type createSessionRequest struct {
	Model string `json:"model"`
}

func (s *Server) createSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	sess, err := s.sessions.Create(c.Request().Context(), req.Model)
	if errors.Is(err, session.ErrInvalidModel) {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("model %q is not allowed; allowed models: %s",
				req.Model, strings.Join(s.sessions.AllowedModels(), ", ")),
		})
	}
	if err != nil {
		logger.L.Error("create session failed", "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "could not create session"})
	}
	return c.JSON(http.StatusCreated, sess)
}

func (s *Server) getSession(c echo.Context) error {
	sess, err := s.sessions.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrSessionNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "session not found"})
	}
	if err != nil {
		logger.L.Error("get session failed", "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "could not load session"})
	}
	return c.JSON(http.StatusOK, sess)
}

type messageView struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) listMessages(c echo.Context) error {
	messages, err := s.store.ListMessages(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrSessionNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "session not found"})
	}
	if err != nil {
		logger.L.Error("list messages failed", "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "could not load messages"})
	}

	out := make([]messageView, 0, len(messages))
	for _, m := range messages {
		out = append(out, messageView{
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: m.CreatedAt.Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, out)
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Model     string `json:"model"`
}

// chatStream runs one turn and streams the answer as server-sent events:
// one "data: <fragment>" event per fragment, then "data: [DONE]" on success
// or "data: [ERROR] <reason>" on failure. The session's pinned model always
// wins; a request model is only checked against the allow-list.
func (s *Server) chatStream(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "session_id is required"})
	}
	if req.Model != "" && !s.modelAllowed(req.Model) {
		return c.JSON(http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("model %q is not allowed; allowed models: %s",
				req.Model, strings.Join(s.sessions.AllowedModels(), ", ")),
		})
	}

	fragments, err := s.chat.StreamTurn(c.Request().Context(), req.SessionID, req.Message)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "message is required"})
	case errors.Is(err, store.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: "session not found"})
	case errors.Is(err, session.ErrTurnInProgress):
		return c.JSON(http.StatusConflict, errorResponse{Error: "a turn is already in progress for this session"})
	case err != nil:
		logger.L.Error("starting turn failed", "session_id", req.SessionID, "error", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "could not start turn"})
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return errors.New("response writer does not support streaming")
	}

	for f := range fragments {
		if f.Err != nil {
			fmt.Fprintf(c.Response().Writer, "data: [ERROR] %v\n\n", f.Err)
			flusher.Flush()
			return nil
		}
		if _, err := fmt.Fprintf(c.Response().Writer, "data: %s\n\n", f.Text); err != nil {
			// Consumer gone. The pipeline notices via the request context;
			// drain so the producer is not blocked on the channel.
			for range fragments {
			}
			return nil
		}
		flusher.Flush()
	}

	fmt.Fprint(c.Response().Writer, "data: [DONE]\n\n")
	flusher.Flush()
	return nil
}

func (s *Server) modelAllowed(model string) bool {
	for _, m := range s.sessions.AllowedModels() {
		if m == model {
			return true
		}
	}
	return false
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func (s *Server) health(c echo.Context) error {
	if err := s.store.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "degraded", Database: "error"})
	}
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", Database: "ok"})
}
