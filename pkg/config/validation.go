package config

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
)

// Validate checks struct constraints and the settings each selected
// backend requires.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if _, err := cfg.Server.UploadLimit(); err != nil {
		return err
	}

	switch cfg.Content.Type {
	case "fs":
		if cfg.Content.FS.Root == "" {
			return errors.New("content.fs.root is required for the fs content store")
		}
	case "s3":
		if cfg.Content.S3.Bucket == "" {
			return errors.New("content.s3.bucket is required for the s3 content store")
		}
	case "badger":
		if cfg.Content.Badger.Dir == "" {
			return errors.New("content.badger.dir is required for the badger content store")
		}
	}

	if cfg.Auth.Mode == "jwt" && len(cfg.Auth.Secret) < 16 {
		return errors.New("auth.secret must be at least 16 characters in jwt mode")
	}
	return nil
}

// UploadLimit parses MaxUploadSize ("100MB", "1GiB") into bytes.
func (s ServerConfig) UploadLimit() (int64, error) {
	n, err := humanize.ParseBytes(s.MaxUploadSize)
	if err != nil {
		return 0, fmt.Errorf("server.max_upload_size: %w", err)
	}
	if n == 0 {
		return 0, errors.New("server.max_upload_size must be positive")
	}
	return int64(n), nil //nolint:gosec // bounded by humanize
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
