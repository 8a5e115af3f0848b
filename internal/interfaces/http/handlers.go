package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/telcoingest/invoice-pipeline/internal/application/port"
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
	"github.com/telcoingest/invoice-pipeline/internal/ingest"
	"github.com/telcoingest/invoice-pipeline/pkg/utils"
)

const (
	version  = "1.0.0"
	xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	deps           Dependencies
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(deps Dependencies, maxUploadBytes int64, logger *zap.Logger) *Handlers {
	return &Handlers{
		deps:           deps,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Version   string            `json:"version"`
	Database  map[string]string `json:"database,omitempty"`
}

// IngestResponse carries one result per uploaded file, in upload order
type IngestResponse struct {
	Results []*ingest.Result `json:"results"`
	Summary ingest.Summary   `json:"summary"`
}

// IngestQuery holds the optional query parameters of the ingest routes
type IngestQuery struct {
	Mode     string `form:"mode" binding:"omitempty,oneof=default overwrite"`
	Filename string `form:"filename"`
}

// ListPackagesRequest represents query parameters for listing packages
type ListPackagesRequest struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   version,
	}
	code := http.StatusOK
	if h.deps.Health != nil {
		response.Database = h.deps.Health(c.Request.Context())
		if response.Database["status"] != "up" {
			response.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	c.JSON(code, Response{
		Success: code == http.StatusOK,
		Data:    response,
	})
}

// Ingest handles POST /api/v1/ingest. Files come in the multipart field "files"
// (or "file"); each gets its own result even when others fail.
func (h *Handlers) Ingest(c *gin.Context) {
	var q IngestQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}

	docs, ok := h.readUploads(c, "files", "file")
	if !ok {
		return
	}

	opts := persistOptions(q)
	var results []*ingest.Result
	if len(docs) == 1 {
		results = []*ingest.Result{h.deps.Pipeline.IngestOne(c.Request.Context(), docs[0], opts...)}
	} else {
		results = h.deps.Pipeline.IngestMany(c.Request.Context(), docs, opts...)
	}

	summary := ingest.Summarize(results)
	c.JSON(http.StatusOK, Response{
		Success: summary.Failed == 0,
		Data:    IngestResponse{Results: results, Summary: summary},
	})
}

// Detect handles POST /api/v1/detect and only classifies the upload
func (h *Handlers) Detect(c *gin.Context) {
	docs, ok := h.readUploads(c, "file", "files")
	if !ok {
		return
	}
	if len(docs) != 1 {
		h.badRequest(c, "exactly one file is required", nil)
		return
	}

	result := h.deps.Pipeline.DetectOnly(c.Request.Context(), docs[0])
	c.JSON(http.StatusOK, Response{
		Success: result.Vendor.IsKnown(),
		Data:    result,
	})
}

// UpsertPackage handles POST /api/v1/packages with an already structured package
func (h *Handlers) UpsertPackage(c *gin.Context) {
	var q IngestQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.uploadError(c, err)
		return
	}

	filename := utils.SanitizeString(q.Filename)
	if filename == "" {
		filename = "external.json"
	}

	result := h.deps.Pipeline.UpsertExternalPackage(c.Request.Context(), filename, payload, persistOptions(q)...)
	code := http.StatusOK
	if result.Failed() {
		code = http.StatusUnprocessableEntity
	}
	c.JSON(code, Response{
		Success: !result.Failed(),
		Data:    result,
	})
}

// ListPackages handles GET /api/v1/packages
func (h *Handlers) ListPackages(c *gin.Context) {
	if !h.canRead(c) {
		return
	}

	var req ListPackagesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}
	if req.Limit == 0 {
		req.Limit = 20
	}

	pkgs, err := h.deps.Packages.List(c.Request.Context(), req.Limit, req.Offset)
	if err != nil {
		h.serverError(c, "failed to list packages", err)
		return
	}
	if pkgs == nil {
		pkgs = []*port.StoredPackage{}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    pkgs,
	})
}

// GetPackage handles GET /api/v1/packages/:id
func (h *Handlers) GetPackage(c *gin.Context) {
	if !h.canRead(c) {
		return
	}

	id := c.Param("id")
	sp, err := h.deps.Packages.Get(c.Request.Context(), id)
	if errors.Is(err, port.ErrNotFound) {
		h.notFound(c, id)
		return
	}
	if err != nil {
		h.serverError(c, "failed to get package", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    sp,
	})
}

// ExportPackage handles GET /api/v1/packages/:id/export
func (h *Handlers) ExportPackage(c *gin.Context) {
	if h.deps.Exporter == nil {
		c.JSON(http.StatusNotImplemented, Response{Error: "export is not available for this store"})
		return
	}

	id := c.Param("id")
	data, name, err := h.deps.Exporter.PackageXLSX(c.Request.Context(), id)
	if errors.Is(err, port.ErrNotFound) {
		h.notFound(c, id)
		return
	}
	if err != nil {
		h.serverError(c, "failed to export package", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, xlsxMIME, data)
}

// readUploads reads every file posted under the given multipart fields
func (h *Handlers) readUploads(c *gin.Context, fields ...string) ([]invoice.RawDocument, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	form, err := c.MultipartForm()
	if err != nil {
		h.uploadError(c, err)
		return nil, false
	}

	var headers []*multipart.FileHeader
	for _, field := range fields {
		headers = append(headers, form.File[field]...)
	}
	if len(headers) == 0 {
		h.badRequest(c, "no files uploaded", nil)
		return nil, false
	}

	docs := make([]invoice.RawDocument, 0, len(headers))
	for _, fh := range headers {
		content, err := readFile(fh)
		if err != nil {
			h.uploadError(c, err)
			return nil, false
		}
		docs = append(docs, invoice.RawDocument{
			Filename: utils.SanitizeString(fh.Filename),
			Content:  content,
		})
	}
	return docs, true
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func persistOptions(q IngestQuery) []ingest.Option {
	if q.Mode == "" {
		return nil
	}
	return []ingest.Option{ingest.WithPersistMode(port.PersistMode(q.Mode))}
}

func (h *Handlers) canRead(c *gin.Context) bool {
	if h.deps.Packages == nil {
		c.JSON(http.StatusNotImplemented, Response{Error: "package read-back is not available for this store"})
		return false
	}
	return true
}

func (h *Handlers) uploadError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
		c.JSON(http.StatusRequestEntityTooLarge, Response{
			Error: fmt.Sprintf("upload exceeds %d MB", h.maxUploadBytes>>20),
		})
		return
	}
	h.badRequest(c, "invalid upload", err)
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	if err != nil {
		h.logger.Warn(msg, zap.Error(err))
	}
	c.JSON(http.StatusBadRequest, Response{Error: msg})
}

func (h *Handlers) notFound(c *gin.Context, id string) {
	c.JSON(http.StatusNotFound, Response{Error: fmt.Sprintf("package %s not found", id)})
}

func (h *Handlers) serverError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, Response{Error: msg})
}
