package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"filevault/pkg/log"
	"filevault/pkg/models"
	"filevault/pkg/storage"

	"github.com/labstack/echo/v4"
)

// HeaderTotalCount carries the owner's total file count on list responses.
const HeaderTotalCount = "X-Total-Count"

const (
	headerIfMatch = "If-Match"
	headerETag    = "ETag"
)

func (s *Server) uploadFile(ctx echo.Context) error {
	owner := ownerFrom(ctx)
	log.Info().Str("owner", owner).Msg("File upload request received")

	file, err := ctx.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ctx.JSON(http.StatusRequestEntityTooLarge, map[string]string{
				"error": "upload too large",
			})
		}
		log.Warn().Err(err).Msg("File parameter is required")
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "file parameter is required",
		})
	}

	bucketName := ctx.FormValue("bucketName")
	if strings.TrimSpace(bucketName) == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "bucketName parameter is required",
		})
	}

	md, err := parseMetadataField(ctx.FormValue("metadata"))
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{
			"error": "metadata must be a JSON object of strings",
		})
	}

	src, err := file.Open()
	if err != nil {
		log.Error().Err(err).Msg("Failed to open uploaded file")
		return ctx.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to open uploaded file",
		})
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close source file")
		}
	}()

	resp, err := s.deps.Storage.Upload(ctx.Request().Context(), storage.UploadRequest{
		BucketName:  bucketName,
		Filename:    file.Filename,
		Size:        file.Size,
		ContentType: file.Header.Get(echo.HeaderContentType),
		Body:        src,
		Metadata:    md,
	}, owner)
	if err != nil {
		return respondError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, resp)
}

// parseMetadataField decodes the optional metadata form part.
func parseMetadataField(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var md map[string]string
	if err := json.Unmarshal([]byte(raw), &md); err != nil {
		return nil, err
	}
	return md, nil
}

func (s *Server) listFiles(ctx echo.Context) error {
	owner := ownerFrom(ctx)

	page, err := queryInt(ctx, "page", 0)
	if err != nil {
		return respondError(ctx, err)
	}
	size, err := queryInt(ctx, "size", storage.DefaultPageSize)
	if err != nil {
		return respondError(ctx, err)
	}

	result, err := s.deps.Storage.ListFiles(ctx.Request().Context(), owner, page, size)
	if err != nil {
		return respondError(ctx, err)
	}

	files := result.Files
	if files == nil {
		files = []models.FileResponse{}
	}
	ctx.Response().Header().Set(HeaderTotalCount, strconv.FormatInt(result.Total, 10))
	return ctx.JSON(http.StatusOK, files)
}

func (s *Server) getFile(ctx echo.Context) error {
	id, err := fileID(ctx)
	if err != nil {
		return respondError(ctx, err)
	}

	resp, err := s.deps.Storage.GetFile(ctx.Request().Context(), id, ownerFrom(ctx))
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, resp)
}

// deleteFile handles DELETE /api/v1/storage/files/:id.
func (s *Server) deleteFile(ctx echo.Context) error {
	id, err := fileID(ctx)
	if err != nil {
		return respondError(ctx, err)
	}

	if err := s.deps.Storage.DeleteFile(ctx.Request().Context(), id, ownerFrom(ctx)); err != nil {
		return respondError(ctx, err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// updateMetadata replaces the metadata of a file. An If-Match header holding
// the file version turns the replace into a compare-and-swap.
func (s *Server) updateMetadata(ctx echo.Context) error {
	id, err := fileID(ctx)
	if err != nil {
		return respondError(ctx, err)
	}

	expected, err := ifMatchVersion(ctx.Request().Header.Get(headerIfMatch))
	if err != nil {
		return respondError(ctx, err)
	}

	var req models.UpdateMetadataRequest
	if err := ctx.Bind(&req); err != nil {
		return respondError(ctx, fmt.Errorf("%w: malformed request body", storage.ErrValidation))
	}
	if err := ctx.Validate(&req); err != nil {
		return respondError(ctx, err)
	}

	resp, err := s.deps.Storage.UpdateMetadata(ctx.Request().Context(), id, ownerFrom(ctx), req.Metadata, expected)
	if err != nil {
		return respondError(ctx, err)
	}
	ctx.Response().Header().Set(headerETag, strconv.Quote(strconv.FormatInt(resp.Version, 10)))
	return ctx.JSON(http.StatusOK, resp)
}

func (s *Server) downloadFile(ctx echo.Context) error {
	id, err := fileID(ctx)
	if err != nil {
		return respondError(ctx, err)
	}

	resp, data, err := s.deps.Storage.Download(ctx.Request().Context(), id, ownerFrom(ctx))
	if err != nil {
		return respondError(ctx, err)
	}

	log.Info().Int64("file_id", id).Str("filename", resp.Filename).Msg("Serving file download")
	ctx.Response().Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": resp.Filename}))
	return ctx.Blob(http.StatusOK, resp.ContentType, data)
}

func fileID(ctx echo.Context) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid file id", storage.ErrValidation)
	}
	return id, nil
}

func queryInt(ctx echo.Context, name string, def int) (int, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", storage.ErrValidation, name)
	}
	return n, nil
}

// ifMatchVersion parses `If-Match: 3` or `If-Match: "3"`. No header means 0,
// which skips the version check.
func ifMatchVersion(header string) (int64, error) {
	header = strings.TrimSpace(header)
	if header == "" || header == "*" {
		return 0, nil
	}
	v, err := strconv.ParseInt(strings.Trim(header, `"`), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: If-Match must be a file version", storage.ErrValidation)
	}
	return v, nil
}
