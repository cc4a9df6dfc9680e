package api

import (
	"bytes"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"ocr-rag/internal/helper"
	"ocr-rag/internal/highlight"
	"ocr-rag/internal/models"
	"ocr-rag/internal/service"
	"ocr-rag/internal/storage"
)

type Handler struct {
	svc *service.Service
	md  goldmark.Markdown
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		svc: svc,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
	}
}

type base64UploadRequest struct {
	FilesBase64 []string `json:"files_base64" binding:"required"`
	Filenames   []string `json:"filenames" binding:"required"`
	SessionID   string   `json:"session_id"`
}

type chatResponse struct {
	*models.PromptResponse
	AnswerHTML string `json:"answer_html"`
}

func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "backend running"})
}

func (h *Handler) Health(c *gin.Context) {
	now := time.Now().Format(time.RFC3339)
	version, err := h.ocrVersion()
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "unhealthy", "error": err.Error(), "timestamp": now})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": now, "tesseract_version": version})
}

// ocrVersion guards the cgo call; a missing native library must not take the
// server down.
func (h *Handler) ocrVersion() (version string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("ocr engine unavailable")
		}
	}()
	return h.svc.OCRVersion(), nil
}

func (h *Handler) UploadPDFs(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	headers := form.File["files"]
	sources := make([]service.Source, 0, len(headers))
	for _, fh := range headers {
		sources = append(sources, service.NewUploadSource(fh))
	}

	result, err := h.svc.Upload(c.Request.Context(), c.PostForm("session_id"), sources)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) UploadPDFsBase64(c *gin.Context) {
	var req base64UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	if len(req.FilesBase64) != len(req.Filenames) {
		writeError(c, service.ErrUploadMismatch)
		return
	}
	if len(req.FilesBase64) == 0 {
		writeError(c, service.ErrNoFiles)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = c.Query("session_id")
	}
	// resolve now so the spool directory and the index share one id
	sessionID, err := helper.EnsureSessionID(sessionID)
	if err != nil {
		writeError(c, err)
		return
	}

	payloads := make([][]byte, len(req.FilesBase64))
	for i, encoded := range req.FilesBase64 {
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid base64 for " + req.Filenames[i]})
			return
		}
		payloads[i] = data
	}

	sources, err := h.svc.SpoolFiles(sessionID, req.Filenames, payloads)
	if err != nil {
		writeError(c, err)
		return
	}
	result, err := h.svc.Upload(c.Request.Context(), sessionID, sources)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) Chat(c *gin.Context) {
	resp, err := h.svc.Ask(c.Request.Context(), c.PostForm("session_id"), c.PostForm("query"))
	if err != nil {
		writeError(c, err)
		return
	}
	var buf bytes.Buffer
	if err := h.md.Convert([]byte(resp.Answer), &buf); err != nil {
		log.Warn().Err(err).Msg("Failed to render answer markdown")
	}
	c.JSON(http.StatusOK, chatResponse{PromptResponse: resp, AnswerHTML: buf.String()})
}

func (h *Handler) Reset(c *gin.Context) {
	sessionID := c.PostForm("session_id")
	purge, _ := strconv.ParseBool(c.DefaultPostForm("purge", "false"))
	if err := h.svc.Reset(c.Request.Context(), sessionID, purge); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset", "session_id": sessionID})
}

func (h *Handler) History(c *gin.Context) {
	sessionID := c.Query("session_id")
	turns, err := h.svc.History(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "history": turns})
}

func (h *Handler) PerformanceMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Metrics())
}

func (h *Handler) SavePerformanceMetrics(c *gin.Context) {
	path, err := h.svc.SaveMetrics()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Metrics saved successfully", "file": path})
}

func (h *Handler) Image(c *gin.Context) {
	name := c.Param("name")
	data, err := h.svc.Artifact(c.Request.Context(), c.Param("session_id"), name)
	if err != nil {
		writeError(c, err)
		return
	}

	raw := c.Query("bbox")
	if raw == "" {
		c.Data(http.StatusOK, storage.ContentType(name), data)
		return
	}
	box, err := highlight.ParseBBox(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := highlight.Draw(data, []models.BBox{box}, 2)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", out)
}

func (h *Handler) OCRSearch(c *gin.Context) {
	sessionID := c.Param("session_id")
	snippets, err := h.svc.SearchOCRText(c.Request.Context(), sessionID, c.Query("q"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "snippets": snippets})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSessionRequired),
		errors.Is(err, service.ErrInvalidSession),
		errors.Is(err, service.ErrQueryRequired),
		errors.Is(err, service.ErrNoFiles),
		errors.Is(err, service.ErrExtractionEmpty),
		errors.Is(err, service.ErrUploadMismatch),
		errors.Is(err, service.ErrInvalidPDF):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrIndexNotFound), errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An unexpected error occurred: " + err.Error()})
	}
}
