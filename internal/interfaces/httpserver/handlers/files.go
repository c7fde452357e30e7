package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/campersurfer/Autopicker/internal/config"
	"github.com/campersurfer/Autopicker/internal/domain/extraction"
	"github.com/campersurfer/Autopicker/internal/domain/files"
	"github.com/campersurfer/Autopicker/internal/infrastructure/metrics"
	"github.com/campersurfer/Autopicker/internal/interfaces/httpserver/middlewares"
	"github.com/campersurfer/Autopicker/internal/interfaces/httpserver/responses"
	"github.com/campersurfer/Autopicker/internal/utils/platformerrors"
)

// FileView is a file record with its extraction, when one is ready.
type FileView struct {
	*files.FileRecord
	Extraction *extraction.Extraction `json:"extraction,omitempty"`
}

// FilesHandler serves upload, listing, retrieval, deletion, and the
// extraction endpoints.
type FilesHandler struct {
	cfg       *config.Config
	svc       *files.Service
	extractor *extraction.Dispatcher
	log       zerolog.Logger
}

func NewFilesHandler(cfg *config.Config, svc *files.Service, extractor *extraction.Dispatcher, log zerolog.Logger) *FilesHandler {
	return &FilesHandler{cfg: cfg, svc: svc, extractor: extractor, log: log.With().Str("handler", "files").Logger()}
}

// Upload godoc
// @Summary Upload a file for later attachment to chat requests
// @Tags files
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "file to upload"
// @Success 201 {object} files.FileRecord
// @Failure 413 {object} responses.ErrorResponse
// @Router /api/v1/upload [post]
func (h *FilesHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		responses.HandleNewError(c, platformerrors.NewError(
			c.Request.Context(), platformerrors.LayerRoute, platformerrors.ErrorTypeValidation,
			"multipart field 'file' is required", err, "e7a05c18-34d9-42b6-8f01-b92c6e5d73aa"))
		return
	}

	src, err := header.Open()
	if err != nil {
		responses.HandleError(c, err)
		return
	}
	defer src.Close()

	declaredMIME := header.Header.Get("Content-Type")
	record, err := h.svc.Upload(c.Request.Context(), src, header.Filename, declaredMIME, middlewares.Identity(c))
	if err != nil {
		metrics.RecordUpload(declaredMIME, "rejected", header.Size)
		responses.HandleError(c, err)
		return
	}
	metrics.RecordUpload(record.DetectedMIME, "accepted", record.Size)

	// Warm the extraction off the request path; chat requests that
	// reference the file will coalesce onto the same run.
	warmCtx := context.WithoutCancel(c.Request.Context())
	go func() {
		if _, err := h.extractor.Extract(warmCtx, record.ID); err != nil {
			h.log.Debug().Err(err).Str("file_id", record.ID).Msg("background extraction failed")
		}
	}()

	c.JSON(http.StatusCreated, record)
}

// List godoc
// @Summary List uploaded files for the caller
// @Tags files
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/v1/files [get]
func (h *FilesHandler) List(c *gin.Context) {
	records, err := h.svc.List(c.Request.Context(), middlewares.Identity(c))
	if err != nil {
		responses.HandleError(c, err)
		return
	}
	if records == nil {
		records = []*files.FileRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"files": records, "count": len(records)})
}

// Get godoc
// @Summary File metadata with extraction status
// @Tags files
// @Produce json
// @Param id path string true "file id"
// @Success 200 {object} FileView
// @Failure 404 {object} responses.ErrorResponse
// @Router /api/v1/files/{id} [get]
func (h *FilesHandler) Get(c *gin.Context) {
	record, err := h.svc.Get(c.Request.Context(), c.Param("id"), middlewares.Identity(c))
	if err != nil {
		responses.HandleError(c, err)
		return
	}

	view := FileView{FileRecord: record}
	if record.ExtractionStatus == extraction.StatusReady {
		if result, _, err := h.extractor.GetExtraction(c.Request.Context(), record.ID); err == nil {
			view.Extraction = result
		}
	}
	c.JSON(http.StatusOK, view)
}

// Delete godoc
// @Summary Delete a file and its blob
// @Tags files
// @Produce json
// @Param id path string true "file id"
// @Success 200 {object} map[string]any
// @Failure 404 {object} responses.ErrorResponse
// @Router /api/v1/files/{id} [delete]
func (h *FilesHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Delete(c.Request.Context(), id, middlewares.Identity(c)); err != nil {
		responses.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "id": id})
}

// Extract godoc
// @Summary Run (or fetch the memoized) extraction for a file
// @Tags files
// @Produce json
// @Param id path string true "file id"
// @Success 200 {object} extraction.Extraction
// @Failure 404 {object} responses.ErrorResponse
// @Failure 503 {object} responses.ErrorResponse
// @Router /api/v1/files/{id}/extract [post]
func (h *FilesHandler) Extract(c *gin.Context) {
	// Ownership check before touching the dispatcher.
	record, err := h.svc.Get(c.Request.Context(), c.Param("id"), middlewares.Identity(c))
	if err != nil {
		responses.HandleError(c, err)
		return
	}

	result, err := h.extractor.Extract(c.Request.Context(), record.ID)
	if err != nil {
		responses.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SupportedTypes godoc
// @Summary MIME types accepted for upload
// @Tags files
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/v1/files/supported-types [get]
func (h *FilesHandler) SupportedTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"supported_types": h.svc.SupportedTypes(),
		"max_file_bytes":  h.cfg.MaxFileBytes,
	})
}

// Transcribe godoc
// @Summary Transcribe an uploaded audio file
// @Tags files
// @Produce json
// @Param id path string true "file id"
// @Success 200 {object} extraction.Extraction
// @Failure 400 {object} responses.ErrorResponse
// @Failure 404 {object} responses.ErrorResponse
// @Router /api/v1/transcribe/{id} [post]
func (h *FilesHandler) Transcribe(c *gin.Context) {
	record, err := h.svc.Get(c.Request.Context(), c.Param("id"), middlewares.Identity(c))
	if err != nil {
		responses.HandleError(c, err)
		return
	}
	if !strings.HasPrefix(record.DetectedMIME, "audio/") {
		responses.HandleNewError(c, platformerrors.NewErrorWithContext(
			c.Request.Context(), platformerrors.LayerRoute, platformerrors.ErrorTypeValidation,
			"file is not audio", nil, "51df83b6-2c09-4e47-a1b8-7f30c65d92e4",
			map[string]any{"detected_mime": record.DetectedMIME}))
		return
	}

	result, err := h.extractor.Extract(c.Request.Context(), record.ID)
	if err != nil {
		responses.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
