package controller

import (
	"silo-be/internal/pkg/serverutils"

	"github.com/gofiber/fiber/v2"
)

// parseBody decodes and validates a JSON body. A body that does not decode is a 400.
func parseBody(ctx *fiber.Ctx, req interface{}) error {
	if err := ctx.BodyParser(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return serverutils.ValidateRequest(req)
}
