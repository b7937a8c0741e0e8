package handler

import (
	"errors"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kvasserman/fadelink/internal/app/model"
	"github.com/kvasserman/fadelink/internal/app/repository"
	"github.com/kvasserman/fadelink/internal/app/service"
	"github.com/kvasserman/fadelink/internal/auth"
	"github.com/kvasserman/fadelink/internal/http/middleware"
	"go.uber.org/zap"
)

// APIDeps groups dependencies required by the owner-facing API handlers.
type APIDeps struct {
	Logger    *zap.Logger
	Links     service.LinkService
	Documents service.DocumentService
	JWT       *auth.JWTManager
}

// APIHandler implements the document and link management endpoints.
type APIHandler struct {
	logger    *zap.Logger
	links     service.LinkService
	documents service.DocumentService
	jwt       *auth.JWTManager
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:    logger,
		links:     deps.Links,
		documents: deps.Documents,
		jwt:       deps.JWT,
	}
}

// Register wires API routes onto the provided router.
func (h *APIHandler) Register(router fiber.Router) {
	api := router.Group("/api", middleware.Auth(h.jwt))
	{
		docs := api.Group("/documents")
		{
			docs.Post("/", h.UploadDocument)
			docs.Get("/", h.ListDocuments)
			docs.Get("/:id", h.GetDocument)
			docs.Delete("/:id", h.DeleteDocument)
		}

		links := api.Group("/links")
		{
			links.Post("/", h.CreateLink)
			links.Get("/", h.ListLinks)
			links.Get("/:id", h.GetLink)
			links.Get("/:id/stats", h.LinkStats)
			links.Post("/:id/revoke", h.RevokeLink)
			links.Delete("/:id", h.DeleteLink)
		}
	}
}

// UploadDocument handles POST /api/documents
func (h *APIHandler) UploadDocument(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "file field is required",
		})
	}

	f, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "failed to read upload",
		})
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "failed to read upload",
		})
	}

	doc, err := h.documents.Upload(userContext(c), middleware.UserID(c), fileHeader.Filename, data)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotPDF):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		case errors.Is(err, service.ErrStorageQuota):
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": err.Error(),
			})
		case errors.Is(err, service.ErrSubscriptionRequired):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": err.Error(),
			})
		default:
			h.logger.Error("failed to upload document", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to upload document",
			})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(doc)
}

// ListDocuments handles GET /api/documents
func (h *APIHandler) ListDocuments(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	docs, err := h.documents.List(userContext(c), middleware.UserID(c), limit, offset)
	if err != nil {
		h.logger.Error("failed to list documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list documents",
		})
	}
	return c.JSON(fiber.Map{
		"documents": docs,
		"limit":     limit,
		"offset":    offset,
		"count":     len(docs),
	})
}

// GetDocument handles GET /api/documents/:id
func (h *APIHandler) GetDocument(c *fiber.Ctx) error {
	doc, err := h.documents.Get(userContext(c), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return h.documentError(c, err, "failed to get document")
	}
	return c.JSON(doc)
}

// DeleteDocument handles DELETE /api/documents/:id
func (h *APIHandler) DeleteDocument(c *fiber.Ctx) error {
	if err := h.documents.Delete(userContext(c), middleware.UserID(c), c.Params("id")); err != nil {
		return h.documentError(c, err, "failed to delete document")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// CreateLinkRequest represents the request body for creating a share link.
type CreateLinkRequest struct {
	DocumentID      string     `json:"document_id"`
	ExpiryMode      string     `json:"expiry_mode"`
	DurationSeconds int64      `json:"duration_seconds,omitempty"`
	FixedExpiresAt  *time.Time `json:"fixed_expires_at,omitempty"`

	ExpiredRedirectURL string `json:"expired_redirect_url,omitempty"`
	ExpiredMessage     string `json:"expired_message,omitempty"`
}

// CreateLink handles POST /api/links
func (h *APIHandler) CreateLink(c *fiber.Ctx) error {
	var req CreateLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if req.DocumentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "document_id is required",
		})
	}

	link, err := h.links.CreateLink(userContext(c), service.CreateLinkInput{
		OwnerID:            middleware.UserID(c),
		DocumentID:         req.DocumentID,
		ExpiryMode:         model.ExpiryMode(req.ExpiryMode),
		DurationSeconds:    req.DurationSeconds,
		FixedExpiresAt:     req.FixedExpiresAt,
		ExpiredRedirectURL: req.ExpiredRedirectURL,
		ExpiredMessage:     req.ExpiredMessage,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidPolicy):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		case errors.Is(err, service.ErrSubscriptionRequired):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": err.Error(),
			})
		case errors.Is(err, service.ErrNotOwner), errors.Is(err, repository.ErrDocumentNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "document not found",
			})
		default:
			h.logger.Error("failed to create link", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to create link",
			})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"link":     link,
		"view_url": "/v/" + link.Token,
	})
}

// ListLinks handles GET /api/links
func (h *APIHandler) ListLinks(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	links, err := h.links.ListLinks(userContext(c), middleware.UserID(c), limit, offset)
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

// GetLink handles GET /api/links/:id
func (h *APIHandler) GetLink(c *fiber.Ctx) error {
	link, err := h.links.GetLink(userContext(c), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return h.linkError(c, err, "failed to get link")
	}
	return c.JSON(link)
}

// LinkStats handles GET /api/links/:id/stats
func (h *APIHandler) LinkStats(c *fiber.Ctx) error {
	stats, err := h.links.LinkStats(userContext(c), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return h.linkError(c, err, "failed to get link stats")
	}
	return c.JSON(stats)
}

// RevokeLink handles POST /api/links/:id/revoke
func (h *APIHandler) RevokeLink(c *fiber.Ctx) error {
	if err := h.links.RevokeLink(userContext(c), middleware.UserID(c), c.Params("id")); err != nil {
		return h.linkError(c, err, "failed to revoke link")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteLink handles DELETE /api/links/:id
func (h *APIHandler) DeleteLink(c *fiber.Ctx) error {
	if err := h.links.DeleteLink(userContext(c), middleware.UserID(c), c.Params("id")); err != nil {
		return h.linkError(c, err, "failed to delete link")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandler) linkError(c *fiber.Ctx, err error, msg string) error {
	if errors.Is(err, repository.ErrLinkNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "link not found",
		})
	}
	h.logger.Error(msg, zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": msg,
	})
}

func (h *APIHandler) documentError(c *fiber.Ctx, err error, msg string) error {
	if errors.Is(err, repository.ErrDocumentNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "document not found",
		})
	}
	h.logger.Error(msg, zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": msg,
	})
}

func pagination(c *fiber.Ctx) (int, int) {
	limit := 20
	offset := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed := c.QueryInt("limit"); parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsed := c.QueryInt("offset"); parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
