package server

import (
	"fmt"
	"net/http"

	"filevault/pkg/log"
	"filevault/pkg/models"
	"filevault/pkg/storage"

	"github.com/labstack/echo/v4"
)

func (s *Server) share(ctx echo.Context) error {
	var req models.ShareRequest
	if err := ctx.Bind(&req); err != nil {
		return respondError(ctx, fmt.Errorf("%w: malformed request body", storage.ErrValidation))
	}
	if err := ctx.Validate(&req); err != nil {
		return respondError(ctx, err)
	}

	log.Info().Str("folderpath", req.FolderPath).Int("emails", len(req.Emails)).Msg("Share request received")
	if err := s.deps.Shares.Share(ctx.Request().Context(), req.FolderPath, req.Emails); err != nil {
		return respondError(ctx, err)
	}
	return ctx.NoContent(http.StatusOK)
}

func (s *Server) sharedEmails(ctx echo.Context) error {
	folder := ctx.QueryParam("folderpath")
	if folder == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "folderpath parameter is required",
		})
	}

	emails, err := s.deps.Shares.SharedEmails(ctx.Request().Context(), folder)
	if err != nil {
		return respondError(ctx, err)
	}
	if emails == nil {
		emails = []string{}
	}
	return ctx.JSON(http.StatusOK, emails)
}
