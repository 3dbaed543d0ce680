package handlers

import (
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// formFile reads an optional file part. Requests that are not multipart
// simply carry no file.
func formFile(c *fiber.Ctx, field string) (*domain.File, error) {
	if !isMultipart(c) {
		return nil, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, apperrors.NewValidationError("invalid multipart form", nil)
	}
	headers := form.File[field]
	if len(headers) == 0 {
		return nil, nil
	}
	header := headers[0]
	if header.Size > domain.MaxPhotoBytes {
		return nil, apperrors.NewValidationError("ukuran foto maksimal 5 MB", map[string]any{"size": header.Size})
	}
	file, err := header.Open()
	if err != nil {
		return nil, apperrors.NewValidationError("unreadable file part", map[string]any{"field": field})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, apperrors.NewValidationError("unreadable file part", map[string]any{"field": field})
	}
	return &domain.File{
		Name:        header.Filename,
		ContentType: header.Header.Get(fiber.HeaderContentType),
		Data:        data,
	}, nil
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm)
}

// parseBody accepts JSON or form-encoded bodies.
func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 && !isMultipart(c) {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}
