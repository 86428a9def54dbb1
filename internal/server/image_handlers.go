package server

import (
	"io"

	"tribune/internal/models"
	"tribune/internal/service"

	"github.com/gofiber/fiber/v2"
)

// UploadImage handles POST /api/admin/images (multipart field "image").
// The response URL can be used directly as a post's image_url.
func (s *Server) UploadImage(c *fiber.Ctx) error {
	file, err := c.FormFile("image")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("No file uploaded"))
	}
	if file.Size > s.imageService.MaxUploadSizeBytes() {
		return models.RespondWithError(c, fiber.StatusRequestEntityTooLarge,
			models.NewValidationError("Image exceeds the maximum upload size"))
	}

	src, err := file.Open()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Unable to read uploaded file"))
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(src)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Unable to read uploaded file"))
	}

	uploaded, err := s.imageService.Upload(c.UserContext(), service.UploadImageInput{
		UserID:      viewerID(c),
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Content:     content,
	})
	if err != nil {
		return models.RespondWithAppError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(uploaded)
}
