package controller

import (
	"silo-be/internal/dto"
	"silo-be/internal/pkg/serverutils"
	"silo-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ISessionController interface {
	RegisterRoutes(r fiber.Router)
	Create(ctx *fiber.Ctx) error
	State(ctx *fiber.Ctx) error
	End(ctx *fiber.Ctx) error
	NewSearch(ctx *fiber.Ctx) error
	Stop(ctx *fiber.Ctx) error
	SelectAgent(ctx *fiber.Ctx) error
	Docs(ctx *fiber.Ctx) error
}

type sessionController struct {
	service service.ISessionService
	auth    fiber.Handler
}

func NewSessionController(service service.ISessionService, auth fiber.Handler) ISessionController {
	return &sessionController{service: service, auth: auth}
}

func (c *sessionController) RegisterRoutes(r fiber.Router) {
	// Creating a session is the only unauthenticated call; it must be registered
	// before the group middleware.
	r.Post("/session/v1", c.Create)
	r.Delete("/session/v1", c.auth, c.End)

	h := r.Group("/session/v1")
	h.Use(c.auth)
	h.Get("/state", c.State)
	h.Post("/new-search", c.NewSearch)
	h.Post("/stop", c.Stop)
	h.Post("/agent", c.SelectAgent)
	h.Post("/docs", c.Docs)
}

func (c *sessionController) Create(ctx *fiber.Ctx) error {
	var req dto.CreateSessionRequest
	if len(ctx.Body()) > 0 {
		if err := parseBody(ctx, &req); err != nil {
			return err
		}
	}

	res, err := c.service.Create(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Session created", res))
}

func (c *sessionController) State(ctx *fiber.Ctx) error {
	res, err := c.service.State(ctx.UserContext(), serverutils.SessionID(ctx))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get state", res))
}

func (c *sessionController) End(ctx *fiber.Ctx) error {
	if err := c.service.End(ctx.UserContext(), serverutils.SessionID(ctx)); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Session ended", nil))
}

func (c *sessionController) NewSearch(ctx *fiber.Ctx) error {
	res, err := c.service.NewSearch(ctx.UserContext(), serverutils.SessionID(ctx))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success reset session", res))
}

func (c *sessionController) Stop(ctx *fiber.Ctx) error {
	res, err := c.service.Stop(ctx.UserContext(), serverutils.SessionID(ctx))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success stop request", res))
}

func (c *sessionController) SelectAgent(ctx *fiber.Ctx) error {
	var req dto.AgentRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.SelectAgent(ctx.UserContext(), serverutils.SessionID(ctx), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success select agent", res))
}

func (c *sessionController) Docs(ctx *fiber.Ctx) error {
	var req dto.DocsRequest
	if err := parseBody(ctx, &req); err != nil {
		return err
	}

	res, err := c.service.Docs(ctx.UserContext(), serverutils.SessionID(ctx), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success change view", res))
}
