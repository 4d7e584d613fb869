package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"documind/chat"
)

// ChatHandler serves the query engine endpoints.
type ChatHandler struct {
	svc    *chat.Service
	logger *zap.Logger
}

func NewChatHandler(svc *chat.Service, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger}
}

// Chat answers one question synchronously.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chat.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithClientError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		respondWithClientError(c, http.StatusBadRequest, "query is required")
		return
	}

	result, err := h.svc.Chat(c.Request.Context(), req)
	if err != nil {
		respondWithError(c, statusFor(err), err, "could not answer query", h.logger,
			zap.String("session_id", req.SessionID))
		return
	}
	c.JSON(http.StatusOK, result)
}

// ChatStream answers one question as server-sent events, one token per
// event, terminated by [DONE].
func (h *ChatHandler) ChatStream(c *gin.Context) {
	var req chat.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithClientError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		respondWithClientError(c, http.StatusBadRequest, "query is required")
		return
	}

	tokens, err := h.svc.ChatStream(c.Request.Context(), req)
	if err != nil {
		respondWithError(c, statusFor(err), err, "could not answer query", h.logger,
			zap.String("session_id", req.SessionID))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		respondWithError(c, http.StatusInternalServerError, nil, "streaming unsupported", h.logger)
		return
	}

	for token := range tokens {
		fmt.Fprintf(c.Writer, "data: %s\n\n", token)
		flusher.Flush()
		if c.Request.Context().Err() != nil {
			return
		}
	}
	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	flusher.Flush()
}

// History returns a session's stored conversation.
func (h *ChatHandler) History(c *gin.Context) {
	sessionID := c.Param("session_id")
	messages, err := h.svc.History(c.Request.Context(), sessionID)
	if err != nil {
		respondWithError(c, statusFor(err), err, "could not load history", h.logger,
			zap.String("session_id", sessionID))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"messages":   messages,
		"count":      len(messages),
	})
}

// ClearHistory deletes a session's conversation.
func (h *ChatHandler) ClearHistory(c *gin.Context) {
	sessionID := c.Param("session_id")
	cleared, err := h.svc.ClearHistory(c.Request.Context(), sessionID)
	if err != nil {
		respondWithError(c, statusFor(err), err, "could not clear history", h.logger,
			zap.String("session_id", sessionID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "cleared": cleared})
}

// ListSessions returns all stored conversations.
func (h *ChatHandler) ListSessions(c *gin.Context) {
	sessions, err := h.svc.ListSessions(c.Request.Context())
	if err != nil {
		respondWithError(c, statusFor(err), err, "could not list sessions", h.logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}
