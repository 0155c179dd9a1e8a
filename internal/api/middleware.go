package api

import (
	"errors"
	"net/http"
	"time"

	"alcyxob/storage-gateway/internal/service"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// ErrorResponse is the single JSON shape of every failed request.
type ErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// Helper to return JSON error response and abort request
func abortWithError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, ErrorResponse{StatusCode: code, Message: message})
}

// abortWithServiceError maps the gateway's error taxonomy onto HTTP status
// codes. Handlers never inspect backend-specific errors.
func abortWithServiceError(c *gin.Context, err error) {
	var uploadErr *service.UploadError
	var deleteErr *service.DeleteError

	switch {
	case errors.Is(err, service.ErrInvalidBucket),
		errors.Is(err, service.ErrPayloadTooLarge),
		errors.Is(err, service.ErrMalformedURL),
		errors.Is(err, service.ErrInvalidPath),
		errors.Is(err, service.ErrEmptyPayload),
		errors.Is(err, service.ErrTooManyFiles):
		abortWithError(c, http.StatusBadRequest, err.Error())
	case errors.As(err, &uploadErr):
		_ = c.Error(err)
		abortWithError(c, http.StatusInternalServerError, "Failed to upload file: "+uploadErr.Path)
	case errors.As(err, &deleteErr):
		_ = c.Error(err)
		abortWithError(c, http.StatusInternalServerError, "Failed to delete file")
	case errors.Is(err, service.ErrNotFound):
		abortWithError(c, http.StatusNotFound, "File not found")
	case errors.Is(err, service.ErrBackendUnavailable):
		_ = c.Error(err)
		abortWithError(c, http.StatusInternalServerError, "Storage backend unavailable")
	default:
		_ = c.Error(err)
		abortWithError(c, http.StatusInternalServerError, "Internal server error")
	}
}

// RequestLogger logs method, path, status and latency for every request,
// plus any errors handlers attached with c.Error.
func RequestLogger(logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "err", c.Errors.String())
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}
