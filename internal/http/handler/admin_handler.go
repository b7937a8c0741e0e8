package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kvasserman/fadelink/internal/app/model"
	"github.com/kvasserman/fadelink/internal/app/repository"
	"github.com/kvasserman/fadelink/internal/app/service"
	"github.com/kvasserman/fadelink/internal/auth"
	"github.com/kvasserman/fadelink/internal/http/middleware"
	"go.uber.org/zap"
)

// AdminDeps groups dependencies required by admin handlers. Admin routes go
// straight to the link store: ownership checks do not apply to platform
// operators.
type AdminDeps struct {
	Logger *zap.Logger
	Users  service.UserService
	Links  repository.LinkStore
	JWT    *auth.JWTManager
}

// AdminHandler implements the platform-operator endpoints.
type AdminHandler struct {
	logger *zap.Logger
	users  service.UserService
	links  repository.LinkStore
	jwt    *auth.JWTManager
}

// NewAdminHandler creates an admin handler with the provided dependencies.
func NewAdminHandler(deps AdminDeps) *AdminHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{
		logger: logger,
		users:  deps.Users,
		links:  deps.Links,
		jwt:    deps.JWT,
	}
}

// Register wires admin routes onto the provided router.
func (h *AdminHandler) Register(router fiber.Router) {
	admin := router.Group("/api/admin", middleware.Auth(h.jwt), middleware.RequireAdmin())
	{
		admin.Get("/stats", h.Stats)
		admin.Get("/users", h.ListUsers)
		admin.Patch("/users/:id/subscription", h.UpdateSubscription)
		admin.Get("/links", h.ListLinks)
		admin.Post("/links/:id/revoke", h.RevokeLink)
	}
}

// Stats handles GET /api/admin/stats
func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	counts, err := h.links.CountByStatus(userContext(c))
	if err != nil {
		h.logger.Error("failed to count links", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load stats",
		})
	}
	return c.JSON(fiber.Map{
		"links_by_status": counts,
	})
}

// ListUsers handles GET /api/admin/users
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	users, err := h.users.ListUsers(userContext(c), limit, offset)
	if err != nil {
		h.logger.Error("failed to list users", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list users",
		})
	}
	return c.JSON(fiber.Map{
		"users":  users,
		"limit":  limit,
		"offset": offset,
		"count":  len(users),
	})
}

// UpdateSubscriptionRequest represents the request body for subscription changes.
type UpdateSubscriptionRequest struct {
	Status string `json:"status"`
	Plan   string `json:"plan"`
}

// UpdateSubscription handles PATCH /api/admin/users/:id/subscription
func (h *AdminHandler) UpdateSubscription(c *fiber.Ctx) error {
	var req UpdateSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	status := model.SubscriptionStatus(req.Status)
	if status != model.SubscriptionActive && status != model.SubscriptionInactive {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "status must be one of: active, inactive",
		})
	}
	plan := model.Plan(req.Plan)
	switch plan {
	case model.PlanNone, model.PlanBasic, model.PlanPro, model.PlanEnterprise:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "plan must be one of: none, basic, pro, enterprise",
		})
	}

	if err := h.users.SetSubscription(userContext(c), c.Params("id"), status, plan); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "user not found",
			})
		}
		h.logger.Error("failed to update subscription", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to update subscription",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListLinks handles GET /api/admin/links
func (h *AdminHandler) ListLinks(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	links, err := h.links.ListAll(userContext(c), limit, offset)
	if err != nil {
		h.logger.Error("failed to list links", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list links",
		})
	}
	return c.JSON(fiber.Map{
		"links":  links,
		"limit":  limit,
		"offset": offset,
		"count":  len(links),
	})
}

// RevokeLink handles POST /api/admin/links/:id/revoke
func (h *AdminHandler) RevokeLink(c *fiber.Ctx) error {
	id := c.Params("id")
	_, err := h.links.GetByID(userContext(c), id)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "link not found",
			})
		}
		h.logger.Error("failed to load link", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to revoke link",
		})
	}

	if _, err := h.links.Revoke(userContext(c), id, time.Now()); err != nil {
		h.logger.Error("failed to revoke link", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to revoke link",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
