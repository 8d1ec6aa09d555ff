package server

import (
	"embed"
	"html/template"
	"net/http"

	"filevault/pkg/log"

	"github.com/labstack/echo/v4"
)

//go:embed web/swagger-ui.html web/swagger.yml
var webFS embed.FS

var swaggerUI = template.Must(template.ParseFS(webFS, "web/swagger-ui.html"))

func (s *Server) serveSwaggerUI(ctx echo.Context) error {
	data := struct {
		Title       string
		SwaggerPath string
	}{
		Title:       "filevault API Documentation",
		SwaggerPath: "/swagger.yml",
	}

	ctx.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	ctx.Response().WriteHeader(http.StatusOK)
	if err := swaggerUI.Execute(ctx.Response().Writer, data); err != nil {
		log.Error().Err(err).Msg("Failed to render swagger UI")
		return err
	}
	return nil
}

func (s *Server) serveSwaggerSpec(ctx echo.Context) error {
	spec, err := webFS.ReadFile("web/swagger.yml")
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.Blob(http.StatusOK, "application/yaml", spec)
}
