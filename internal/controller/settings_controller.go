package controller

import (
	"silo-be/internal/dto"
	"silo-be/internal/pkg/serverutils"
	"silo-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ISettingsController interface {
	RegisterRoutes(r fiber.Router)
	Get(ctx *fiber.Ctx) error
	Update(ctx *fiber.Ctx) error
}

type settingsController struct {
	service service.ISettingsService
	auth    fiber.Handler
}

func NewSettingsController(service service.ISettingsService, auth fiber.Handler) ISettingsController {
	return &settingsController{service: service, auth: auth}
}

func (c *settingsController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/settings/v1")
	h.Use(c.auth)
	h.Get("", c.Get)
	h.Patch("", c.Update)
}

func (c *settingsController) Get(ctx *fiber.Ctx) error {
	res, err := c.service.Load(ctx.UserContext(), serverutils.ClientID(ctx))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get settings", res))
}

func (c *settingsController) Update(ctx *fiber.Ctx) error {
	var req dto.UpdateSettingsRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.Update(ctx.UserContext(), serverutils.ClientID(ctx), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success update settings", res))
}
