package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"documind/queue"
	"documind/utils"
)

// ExtractHandler accepts ingestion requests: multipart uploads plus
// links, queued for the worker.
type ExtractHandler struct {
	queue     *queue.Queue
	uploadDir string
	logger    *zap.Logger
}

func NewExtractHandler(q *queue.Queue, uploadDir string, logger *zap.Logger) *ExtractHandler {
	return &ExtractHandler{queue: q, uploadDir: uploadDir, logger: logger}
}

// Extract stages the uploaded files on disk and enqueues the task.
// Responds 202 with the task id; the heavy work happens in the worker.
func (h *ExtractHandler) Extract(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respondWithClientError(c, http.StatusBadRequest, "invalid multipart form")
		return
	}

	files := form.File["files"]
	links := collectLinks(form.Value["links"])
	if len(files) == 0 && len(links) == 0 {
		respondWithClientError(c, http.StatusBadRequest, "no files or links provided")
		return
	}

	sessionID := strings.TrimSpace(c.PostForm("session_id"))
	if sessionID == "" {
		sessionID = "default"
	}
	if !utils.ValidSessionID(sessionID) {
		respondWithClientError(c, http.StatusBadRequest, "invalid session_id")
		return
	}
	payload := queue.Payload{
		Links:           links,
		Author:          c.PostForm("author"),
		UseVision:       c.PostForm("use_ocr_vlm") == "true",
		SessionID:       sessionID,
		UserDescription: c.PostForm("user_description"),
		CallbackURL:     c.PostForm("callback_url"),
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		respondWithError(c, http.StatusInternalServerError, err, "could not stage uploads", h.logger)
		return
	}

	var saved []string
	for _, fh := range files {
		name := utils.SanitizeFilename(filepath.Base(fh.Filename))
		if name == "" {
			respondWithClientError(c, http.StatusBadRequest, "invalid filename")
			removeAll(saved)
			return
		}
		dst := filepath.Join(h.uploadDir, fmt.Sprintf("%s_%s_%s", sessionID, uuid.New().String(), name))
		if err := c.SaveUploadedFile(fh, dst); err != nil {
			removeAll(saved)
			respondWithError(c, http.StatusInternalServerError, err, "could not save uploaded file", h.logger,
				zap.String("filename", name))
			return
		}
		saved = append(saved, dst)
		payload.FileRefs = append(payload.FileRefs, queue.FileRef{
			Path: dst,
			Name: name,
			Type: fh.Header.Get("Content-Type"),
		})
	}

	taskID, err := h.queue.Enqueue(c.Request.Context(), payload)
	if err != nil {
		removeAll(saved)
		respondWithError(c, http.StatusInternalServerError, err, "could not queue extraction task", h.logger,
			zap.String("session_id", sessionID))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":     "queued",
		"task_id":    taskID,
		"session_id": sessionID,
		"message": fmt.Sprintf("Extraction queued for %d file(s), %d link(s).",
			len(payload.FileRefs), len(links)),
	})
}

// collectLinks flattens repeated form values and comma-separated lists.
func collectLinks(values []string) []string {
	var links []string
	for _, v := range values {
		for _, link := range strings.Split(v, ",") {
			if link = strings.TrimSpace(link); link != "" {
				links = append(links, link)
			}
		}
	}
	return links
}

func removeAll(paths []string) {
	for _, p := range paths {
		os.Remove(p)
	}
}
