package serverutils

import (
	"errors"

	"silo-be/internal/constant"
	"silo-be/pkg/orchestrator"
	"silo-be/pkg/remote"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware turns errors returned by handlers into the standard error body.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		code := StatusFor(err)
		return ctx.Status(code).JSON(ErrorResponse(code, err.Error()))
	}
}

func StatusFor(err error) int {
	var fiberErr *fiber.Error
	var validationErr *ValidationError
	var remoteErr *remote.Error

	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.As(err, &validationErr):
		return fiber.StatusBadRequest
	case errors.Is(err, orchestrator.ErrInvalidMode), errors.Is(err, constant.ErrInvalidImage):
		return fiber.StatusBadRequest
	case errors.Is(err, constant.ErrSessionNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, orchestrator.ErrBusy),
		errors.Is(err, orchestrator.ErrNoResult),
		errors.Is(err, orchestrator.ErrNoChat),
		errors.Is(err, orchestrator.ErrInvalidTransition),
		errors.Is(err, orchestrator.ErrStaleRequest),
		errors.Is(err, constant.ErrLiveInProgress):
		return fiber.StatusConflict
	case errors.Is(err, orchestrator.ErrClosed):
		return fiber.StatusGone
	case errors.As(err, &remoteErr):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}
