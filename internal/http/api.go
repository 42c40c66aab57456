package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sheet-downloader/internal/domain"
	"sheet-downloader/internal/repository"
	"sheet-downloader/internal/service"
	"sheet-downloader/internal/sheets"
	"sheet-downloader/internal/storage"
)

// statusClientClosedRequest is the nginx convention for a request abandoned by its caller.
const statusClientClosedRequest = 499

const claimsKey = "claims"

// Handler wires HTTP routes to domain services.
type Handler struct {
	fetches service.FetchService
	auth    service.AuthService
	storage storage.Service
	bucket  string
}

func NewHandler(fetches service.FetchService, auth service.AuthService, store storage.Service, bucket string) *Handler {
	return &Handler{
		fetches: fetches,
		auth:    auth,
		storage: store,
		bucket:  bucket,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	{
		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})
		api.POST("/auth/token", h.issueToken)

		protected := api.Group("")
		protected.Use(h.authMiddleware())
		protected.GET("/export-url", h.exportURL)
		protected.POST("/runs", h.createRun)
		protected.GET("/runs", h.listRuns)
		protected.GET("/runs/:id", h.getRun)
		protected.GET("/storage/objects", h.listObjects)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// authMiddleware lets every request through when authentication is disabled.
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.auth == nil || !h.auth.Enabled() {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := h.auth.VerifyToken(strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

type tokenRequest struct {
	Password string `json:"password" binding:"required"`
}

func (h *Handler) issueToken(c *gin.Context) {
	if h.auth == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": service.ErrAuthNotConfigured.Error()})
		return
	}

	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, expires, err := h.auth.IssueToken(req.Password)
	switch {
	case errors.Is(err, service.ErrAuthNotConfigured):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expires.UTC().Format(time.RFC3339),
	})
}

func (h *Handler) exportURL(c *gin.Context) {
	exportURL, err := sheets.ExportURL(c.Query("sheet_url"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"export_url": exportURL})
}

type createRunRequest struct {
	SheetURL        string `json:"sheet_url" binding:"required"`
	OutputDirectory string `json:"output_directory"`
	OutputFileName  string `json:"output_file_name"`
	Overwrite       *bool  `json:"overwrite"`
	Browser         string `json:"browser"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
}

// createRun blocks until the download finishes, fails or times out.
func (h *Handler) createRun(c *gin.Context) {
	var req createRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TimeoutSeconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "timeout_seconds must not be negative"})
		return
	}

	run, err := h.fetches.Fetch(c.Request.Context(), service.FetchInput{
		SheetURL:        req.SheetURL,
		OutputDirectory: req.OutputDirectory,
		OutputFileName:  req.OutputFileName,
		Overwrite:       req.Overwrite,
		LaunchCommand:   req.Browser,
		Timeout:         time.Duration(req.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		body := gin.H{"error": err.Error(), "kind": domain.ErrorKind(err)}
		if run != nil {
			body["run"] = runToResponse(*run)
		}
		c.JSON(statusFor(err), body)
		return
	}

	c.JSON(http.StatusCreated, runToResponse(*run))
}

func (h *Handler) listRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	runs, err := h.fetches.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]RunResponse, len(runs))
	for i := range runs {
		resp[i] = runToResponse(runs[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getRun(c *gin.Context) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}

	run, err := h.fetches.GetRun(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, runToResponse(*run))
}

func (h *Handler) listObjects(c *gin.Context) {
	if h.storage == nil || h.bucket == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage service not configured"})
		return
	}

	prefix := c.Query("prefix")
	objects, err := h.storage.ListObjects(c.Request.Context(), h.bucket, prefix)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]StorageObjectResponse, len(objects))
	for i := range objects {
		resp[i] = objectToResponse(objects[i])
	}
	c.JSON(http.StatusOK, resp)
}

func statusFor(err error) int {
	if errors.Is(err, repository.ErrNotFound) {
		return http.StatusNotFound
	}
	switch domain.ErrorKind(err) {
	case "invalid_input", "invalid_configuration":
		return http.StatusBadRequest
	case "filesystem_conflict":
		return http.StatusConflict
	case "user_cancelled":
		return statusClientClosedRequest
	case "client_closed":
		return http.StatusServiceUnavailable
	case "timed_out":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

type RunResponse struct {
	ID           int64            `json:"id"`
	UUID         string           `json:"uuid"`
	SheetURL     string           `json:"sheet_url"`
	ExportURL    string           `json:"export_url"`
	Status       domain.RunStatus `json:"status"`
	Destination  string           `json:"destination"`
	S3Location   string           `json:"s3_location"`
	ErrorKind    string           `json:"error_kind,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    string           `json:"created_at"`
	UpdatedAt    string           `json:"updated_at"`
	FinishedAt   *string          `json:"finished_at,omitempty"`
}

type StorageObjectResponse struct {
	Key          string  `json:"key"`
	Size         int64   `json:"size"`
	LastModified *string `json:"last_modified,omitempty"`
}

func objectToResponse(obj storage.ObjectInfo) StorageObjectResponse {
	resp := StorageObjectResponse{
		Key:  obj.Key,
		Size: obj.Size,
	}
	if obj.LastModified != nil && !obj.LastModified.IsZero() {
		v := obj.LastModified.Format(time.RFC3339)
		resp.LastModified = &v
	}
	return resp
}

func runToResponse(run domain.Run) RunResponse {
	resp := RunResponse{
		ID:           run.ID,
		UUID:         run.UUID,
		SheetURL:     run.SheetURL,
		ExportURL:    run.ExportURL,
		Status:       run.Status,
		Destination:  run.Destination,
		S3Location:   run.S3Location,
		ErrorKind:    run.ErrorKind,
		ErrorMessage: run.ErrorMessage,
		CreatedAt:    run.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    run.UpdatedAt.Format(time.RFC3339),
	}
	if run.FinishedAt != nil {
		v := run.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &v
	}
	return resp
}
