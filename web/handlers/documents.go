package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"documind/cache"
	"documind/database"
	"documind/errors"
	"documind/pipeline"
	"documind/vectorstore"
)

// DocumentsHandler serves the index and session management endpoints.
type DocumentsHandler struct {
	db     *database.PostgresStore
	vs     *vectorstore.Store
	cache  *cache.Cache
	logger *zap.Logger
}

func NewDocumentsHandler(db *database.PostgresStore, vs *vectorstore.Store, c *cache.Cache, logger *zap.Logger) *DocumentsHandler {
	return &DocumentsHandler{db: db, vs: vs, cache: c, logger: logger}
}

// Health is the liveness probe.
func (h *DocumentsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// List summarizes the indexed documents, optionally scoped to a session.
func (h *DocumentsHandler) List(c *gin.Context) {
	coll, err := h.vs.Collection(c.Request.Context(), pipeline.DefaultCollection)
	if err != nil {
		respondWithError(c, statusFor(err), err, "could not open index", h.logger)
		return
	}
	summary, err := coll.Summary(c.Request.Context(), c.Query("session_id"))
	if err != nil {
		respondWithError(c, statusFor(err), err, "could not summarize index", h.logger)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Delete removes one document: its chunks, its session record and its
// cached responses. Without a source_id the whole session goes, chunks
// and record both.
func (h *DocumentsHandler) Delete(c *gin.Context) {
	sourceID := c.Query("source_id")
	sessionID := c.Query("session_id")
	if sourceID == "" && sessionID == "" {
		respondWithClientError(c, http.StatusBadRequest, "source_id or session_id is required")
		return
	}
	if sourceID == "" {
		h.deleteWholeSession(c, sessionID)
		return
	}

	coll, err := h.vs.Collection(c.Request.Context(), pipeline.DefaultCollection)
	if err != nil {
		respondWithError(c, statusFor(err), err, "could not open index", h.logger)
		return
	}

	filter := vectorstore.Filter{"source_id": sourceID}
	if sessionID != "" {
		filter["session_id"] = sessionID
	}
	deleted, err := coll.Delete(c.Request.Context(), filter)
	if err != nil {
		respondWithError(c, statusFor(err), err, "could not delete document chunks", h.logger,
			zap.String("source_id", sourceID))
		return
	}

	if sessionID != "" {
		if err := h.db.PullFile(c.Request.Context(), sessionID, sourceID); err != nil && !errors.IsNotFound(err) {
			respondWithError(c, statusFor(err), err, "could not remove document record", h.logger,
				zap.String("source_id", sourceID))
			return
		}
	}

	invalidated := h.cache.Invalidate(c.Request.Context(), sourceID)
	c.JSON(http.StatusOK, gin.H{
		"source_id":           sourceID,
		"chunks_deleted":      deleted,
		"cache_entries_freed": invalidated,
	})
}

// GetSession returns a session's stored document records.
func (h *DocumentsHandler) GetSession(c *gin.Context) {
	sessionID := c.Param("session_id")
	info, files, err := h.db.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		if errors.IsNotFound(err) {
			respondWithClientError(c, http.StatusNotFound, "session not found")
			return
		}
		respondWithError(c, statusFor(err), err, "could not load session", h.logger,
			zap.String("session_id", sessionID))
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": info, "files": files})
}

// DeleteSession removes a session's record and all of its chunks.
func (h *DocumentsHandler) DeleteSession(c *gin.Context) {
	h.deleteWholeSession(c, c.Param("session_id"))
}

func (h *DocumentsHandler) deleteWholeSession(c *gin.Context, sessionID string) {
	coll, err := h.vs.Collection(c.Request.Context(), pipeline.DefaultCollection)
	if err != nil {
		respondWithError(c, statusFor(err), err, "could not open index", h.logger)
		return
	}
	deleted, err := coll.Delete(c.Request.Context(), vectorstore.Filter{"session_id": sessionID})
	if err != nil {
		respondWithError(c, statusFor(err), err, "could not delete session chunks", h.logger,
			zap.String("session_id", sessionID))
		return
	}

	removed, err := h.db.DeleteSession(c.Request.Context(), sessionID)
	if err != nil {
		respondWithError(c, statusFor(err), err, "could not delete session record", h.logger,
			zap.String("session_id", sessionID))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id":     sessionID,
		"removed":        removed,
		"chunks_deleted": deleted,
	})
}

// CacheStats reports the response cache occupancy.
func (h *DocumentsHandler) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.GetStats(c.Request.Context()))
}

// CacheClear empties the response cache.
func (h *DocumentsHandler) CacheClear(c *gin.Context) {
	deleted := h.cache.ClearAll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
