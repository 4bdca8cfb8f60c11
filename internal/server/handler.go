package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/comigor/twin/internal/chat"
	"github.com/comigor/twin/internal/history"
)

// ChatService is the part of *chat.Service the handlers need.
type ChatService interface {
	Chat(ctx context.Context, req chat.Request) (*chat.Response, error)
	History(ctx context.Context, sessionID string) ([]history.Message, error)
	Info() chat.Info
}

// Handler handles HTTP requests.
type Handler struct {
	service ChatService
	timeout time.Duration
}

// NewHandler creates a new handler. A positive timeout bounds each chat turn.
func NewHandler(service ChatService, timeout time.Duration) *Handler {
	return &Handler{service: service, timeout: timeout}
}

// RegisterRoutes registers the public routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Root)
	e.GET("/health", h.Health)
	e.POST("/chat", h.Chat, timeout(h.timeout))
	e.GET("/conversation/:session_id", h.Conversation)
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ConversationResponse is the body of GET /conversation/:session_id.
type ConversationResponse struct {
	SessionID string            `json:"session_id"`
	Messages  []history.Message `json:"messages"`
}

// Root describes the running service.
// GET /
func (h *Handler) Root(c echo.Context) error {
	info := h.service.Info()
	return c.JSON(http.StatusOK, map[string]any{
		"message":        "AI Digital Twin API (Powered by " + poweredBy(info.Provider) + ")",
		"memory_enabled": true,
		"storage":        info.Storage,
		"ai_model":       info.Model,
	})
}

// Health returns health status.
// GET /health
func (h *Handler) Health(c echo.Context) error {
	info := h.service.Info()
	return c.JSON(http.StatusOK, map[string]any{
		"status":        "healthy",
		"use_s3":        info.Storage == "S3",
		"storage":       info.Storage,
		"bedrock_model": info.Model,
	})
}

// Chat runs one conversation turn.
// POST /chat
func (h *Handler) Chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body").SetInternal(err)
	}

	resp, err := h.service.Chat(c.Request().Context(), chat.Request{
		Message:   req.Message,
		SessionID: req.SessionID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// Conversation returns the full stored log of a session. Unknown sessions
// yield an empty list rather than 404.
// GET /conversation/:session_id
func (h *Handler) Conversation(c echo.Context) error {
	sessionID := c.Param("session_id")
	msgs, err := h.service.History(c.Request().Context(), sessionID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ConversationResponse{SessionID: sessionID, Messages: msgs})
}

func poweredBy(provider string) string {
	switch provider {
	case "openai":
		return "OpenAI-compatible API"
	case "mock":
		return "a mock model"
	}
	return "AWS Bedrock"
}
