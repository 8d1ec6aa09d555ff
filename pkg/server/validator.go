package server

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"filevault/pkg/storage"

	"github.com/go-playground/validator/v10"
)

var folderURLPattern = regexp.MustCompile(`^(https?|ftp)://[^\s/$.?#].[^\s]*$`)

type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New()
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("folderurl", func(fl validator.FieldLevel) bool {
		return folderURLPattern.MatchString(fl.Field().String())
	})
	return &requestValidator{validate: v}
}

// Validate implements echo.Validator. Failures wrap storage.ErrValidation.
func (rv *requestValidator) Validate(i interface{}) error {
	err := rv.validate.Struct(i)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Errorf("%w: %s failed on '%s'", storage.ErrValidation, fieldName(fe), fe.Tag())
	}
	return fmt.Errorf("%w: %w", storage.ErrValidation, err)
}

// fieldName renders "Emails[1]" style names in lower case for clients.
func fieldName(fe validator.FieldError) string {
	return strings.ToLower(fe.Field())
}
