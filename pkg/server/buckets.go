package server

import (
	"fmt"
	"net/http"

	"filevault/pkg/models"
	"filevault/pkg/storage"

	"github.com/labstack/echo/v4"
)

// createBucket creates a bucket owned by the caller.
func (s *Server) createBucket(ctx echo.Context) error {
	var req models.CreateBucketRequest
	if err := ctx.Bind(&req); err != nil {
		return respondError(ctx, fmt.Errorf("%w: malformed request body", storage.ErrValidation))
	}
	if err := ctx.Validate(&req); err != nil {
		return respondError(ctx, err)
	}

	b, err := s.deps.Buckets.Create(ctx.Request().Context(), req.Name, req.Description, ownerFrom(ctx))
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(http.StatusCreated, b)
}

func (s *Server) listBuckets(ctx echo.Context) error {
	buckets, err := s.deps.Buckets.List(ctx.Request().Context())
	if err != nil {
		return respondError(ctx, err)
	}
	if buckets == nil {
		buckets = []models.StorageBucket{}
	}
	return ctx.JSON(http.StatusOK, models.BucketListResponse{Buckets: buckets})
}
