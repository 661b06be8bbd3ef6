package controller

import (
	"silo-be/internal/dto"
	"silo-be/internal/pkg/serverutils"
	"silo-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ISearchController interface {
	RegisterRoutes(r fiber.Router)
	Submit(ctx *fiber.Ctx) error
	Regenerate(ctx *fiber.Ctx) error
	Complete(ctx *fiber.Ctx) error
}

type searchController struct {
	service service.ISessionService
	auth    fiber.Handler
}

func NewSearchController(service service.ISessionService, auth fiber.Handler) ISearchController {
	return &searchController{service: service, auth: auth}
}

func (c *searchController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/search/v1")
	h.Use(c.auth)
	h.Post("/submit", c.Submit)
	h.Post("/regenerate", c.Regenerate)
	h.Post("/complete", c.Complete)
}

// Submit answers with the loading state unless the body asks to wait. Progress is
// pushed on the state socket either way.
func (c *searchController) Submit(ctx *fiber.Ctx) error {
	var req dto.SubmitRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.Submit(ctx.UserContext(), serverutils.SessionID(ctx), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success submit search", res))
}

func (c *searchController) Regenerate(ctx *fiber.Ctx) error {
	var req dto.RegenerateRequest
	if len(ctx.Body()) > 0 {
		if err := parseBody(ctx, &req); err != nil {
			return err
		}
	}

	res, err := c.service.Regenerate(ctx.UserContext(), serverutils.SessionID(ctx), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success regenerate search", res))
}

func (c *searchController) Complete(ctx *fiber.Ctx) error {
	var req dto.CompleteRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.CompleteAnimation(ctx.UserContext(), serverutils.SessionID(ctx), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success complete animation", res))
}
