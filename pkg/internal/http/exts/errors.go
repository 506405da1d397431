package exts

import (
	"context"
	"errors"

	"git.solsynth.dev/hypernet/mideck/pkg/internal/services"
	"git.solsynth.dev/hypernet/mideck/pkg/internal/services/misskey"
	"github.com/gofiber/fiber/v2"
)

// ErrorStatus turns a service error into a fiber error, keeping the message as is.
func ErrorStatus(err error) error {
	var apiErr *misskey.APIError
	switch {
	case errors.Is(err, services.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrServerNotFound), errors.Is(err, services.ErrTimelineNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrSubmitting):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, services.ErrFeedDestroyed):
		return fiber.NewError(fiber.StatusGone, err.Error())
	case misskey.IsAuthError(err):
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.NewError(fiber.StatusGatewayTimeout, err.Error())
	case errors.Is(err, misskey.ErrNetwork), errors.Is(err, services.ErrPartialUpload), errors.As(err, &apiErr):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	default:
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
}
