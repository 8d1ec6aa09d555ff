package server

import (
	"context"
	"errors"
	"net/http"

	"filevault/pkg/auth"
	"filevault/pkg/bucket"
	"filevault/pkg/log"
	"filevault/pkg/share"
	"filevault/pkg/storage"

	"github.com/labstack/echo/v4"
)

// respondError writes the JSON error body for err. Not-found bodies are
// generic so a caller cannot tell a missing file from another owner's file.
func respondError(ctx echo.Context, err error) error {
	status, msg := classify(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", ctx.Request().URL.Path).Msg("Request failed")
	}
	return ctx.JSON(status, map[string]string{"error": msg})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, storage.ErrValidation),
		errors.Is(err, share.ErrValidation),
		errors.Is(err, bucket.ErrInvalidBucketName):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, storage.ErrBucketNotFound):
		return http.StatusNotFound, "bucket not found"
	case errors.Is(err, storage.ErrFileNotFound):
		return http.StatusNotFound, "file not found"
	case errors.Is(err, storage.ErrContentNotFound):
		return http.StatusNotFound, "file content not found"
	case errors.Is(err, storage.ErrVersionConflict):
		return http.StatusConflict, "version conflict"
	case errors.Is(err, bucket.ErrBucketExists):
		return http.StatusConflict, "bucket already exists"
	case errors.Is(err, share.ErrUnavailable):
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request timed out"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
