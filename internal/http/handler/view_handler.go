package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kvasserman/fadelink/internal/app/repository"
	"github.com/kvasserman/fadelink/internal/app/service"
	httpUtil "github.com/kvasserman/fadelink/internal/http/util"
	"github.com/kvasserman/fadelink/internal/http/view"
	"go.uber.org/zap"
)

const grantTTL = 60 * time.Second

// ViewDeps groups dependencies required by viewer-facing handlers.
type ViewDeps struct {
	Logger        *zap.Logger
	Access        *service.AccessService
	Documents     service.DocumentService
	Secret        []byte
	OpenPublisher *service.OpenPublisher
}

// ViewHandler serves the anonymous viewer surface: the access verdict, the
// HTML viewer page and the grant-protected PDF stream.
type ViewHandler struct {
	logger        *zap.Logger
	access        *service.AccessService
	documents     service.DocumentService
	grants        *httpUtil.GrantSigner
	openPublisher *service.OpenPublisher
}

// NewViewHandler creates a viewer handler with the provided dependencies.
func NewViewHandler(deps ViewDeps) *ViewHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ViewHandler{
		logger:        logger,
		access:        deps.Access,
		documents:     deps.Documents,
		grants:        httpUtil.NewGrantSigner(deps.Secret, grantTTL),
		openPublisher: deps.OpenPublisher,
	}
}

// Register wires viewer routes onto the provided router.
func (h *ViewHandler) Register(router fiber.Router) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)
	router.Get("/view/:token", h.Resolve)
	router.Get("/view/:token/pdf", h.Stream)
	router.Get("/v/:token", h.Page)
}

// Health is a simple root endpoint so we know the service is running.
func (h *ViewHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "FadeLink",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// viewerKey derives the viewer identity for countdown clocks. The client IP
// is deliberately coarse: everyone behind one NAT shares a clock.
func viewerKey(c *fiber.Ctx) string {
	return c.IP()
}

// Resolve handles GET /view/:token and returns the verdict as JSON.
func (h *ViewHandler) Resolve(c *fiber.Ctx) error {
	token := c.Params("token")
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing share token",
		})
	}

	result, loadErr := h.evaluate(c, token)
	if loadErr != nil {
		return c.Status(loadErr.StatusCode).JSON(fiber.Map{
			"error": loadErr.Message,
		})
	}

	body := fiber.Map{
		"outcome": result.Verdict.Outcome,
	}
	if result.Verdict.RemainingSeconds != nil {
		body["remaining_seconds"] = *result.Verdict.RemainingSeconds
	}
	if result.Verdict.ExpiresAt != nil {
		body["expires_at"] = result.Verdict.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if result.Verdict.Outcome != service.OutcomeActive {
		if result.Verdict.Message != "" {
			body["message"] = result.Verdict.Message
		}
		if result.Verdict.RedirectURL != "" {
			body["redirect_url"] = result.Verdict.RedirectURL
		}
		return c.JSON(body)
	}

	grant, err := h.grants.Issue(token, viewerKey(c))
	if err != nil {
		h.logger.Error("failed to issue fetch grant", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to prepare document access",
		})
	}
	body["pdf_url"] = fmt.Sprintf("/view/%s/pdf?grant=%s", token, grant)

	h.publishOpen(c, result)
	return c.JSON(body)
}

// Stream handles GET /view/:token/pdf and serves the document bytes. The
// verdict is re-checked so a grant issued moments before expiry cannot
// outlive the link.
func (h *ViewHandler) Stream(c *fiber.Ctx) error {
	token := c.Params("token")
	grant := c.Query("grant")
	if token == "" || grant == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing token or grant",
		})
	}

	if err := h.grants.Validate(token, viewerKey(c), grant); err != nil {
		if errors.Is(err, httpUtil.ErrInvalidGrant) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		h.logger.Error("failed to validate fetch grant", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to validate grant",
		})
	}

	result, loadErr := h.check(c, token)
	if loadErr != nil {
		return c.Status(loadErr.StatusCode).JSON(fiber.Map{
			"error": loadErr.Message,
		})
	}
	if result.Verdict.Outcome != service.OutcomeActive || result.Link == nil {
		return c.Status(fiber.StatusGone).JSON(fiber.Map{
			"error": "link is no longer accessible",
		})
	}

	ctx := userContext(c)
	rc, doc, err := h.documents.Open(ctx, result.Link.DocumentID)
	if err != nil {
		h.logger.Error("failed to open document",
			zap.String("document_id", result.Link.DocumentID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to open document",
		})
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", doc.Filename))
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.SendStream(rc)
}

// Page handles GET /v/:token and renders the HTML viewer.
func (h *ViewHandler) Page(c *fiber.Ctx) error {
	token := c.Params("token")
	if token == "" {
		return c.Status(fiber.StatusBadRequest).SendString("missing share token")
	}

	result, loadErr := h.evaluate(c, token)
	if loadErr != nil {
		if loadErr.StatusCode == fiber.StatusNotFound {
			html, err := view.RenderViewerPage(view.ViewerPageData{
				Token:   token,
				Message: "This link does not exist",
			})
			if err == nil {
				return c.Status(fiber.StatusNotFound).Type("html", "utf-8").SendString(html)
			}
		}
		return c.Status(loadErr.StatusCode).SendString(loadErr.Message)
	}

	data := view.ViewerPageData{
		Token:       token,
		Active:      result.Verdict.Outcome == service.OutcomeActive,
		Revoked:     result.Verdict.Outcome == service.OutcomeRevoked,
		Message:     result.Verdict.Message,
		RedirectURL: result.Verdict.RedirectURL,
	}
	if result.Verdict.RemainingSeconds != nil {
		data.RemainingSeconds = *result.Verdict.RemainingSeconds
	}

	if data.Active {
		grant, err := h.grants.Issue(token, viewerKey(c))
		if err != nil {
			h.logger.Error("failed to issue fetch grant", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).SendString("failed to prepare document access")
		}
		data.PDFURL = fmt.Sprintf("/view/%s/pdf?grant=%s", token, grant)
		h.publishOpen(c, result)
	}

	html, err := view.RenderViewerPage(data)
	if err != nil {
		h.logger.Error("failed to render viewer page", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).SendString("failed to render page")
	}

	status := fiber.StatusOK
	if !data.Active {
		status = fiber.StatusGone
	}
	return c.Status(status).Type("html", "utf-8").SendString(html)
}

type accessLoadError struct {
	StatusCode int
	Message    string
}

func (h *ViewHandler) evaluate(c *fiber.Ctx, token string) (*service.AccessResult, *accessLoadError) {
	result, err := h.access.EvaluateAccess(userContext(c), token, viewerKey(c), time.Now())
	return h.mapAccessResult(result, err)
}

// check re-runs the verdict without side effects. The open was counted when
// the grant was issued; the byte fetch must not count it again.
func (h *ViewHandler) check(c *fiber.Ctx, token string) (*service.AccessResult, *accessLoadError) {
	result, err := h.access.CheckAccess(userContext(c), token, viewerKey(c), time.Now())
	return h.mapAccessResult(result, err)
}

func (h *ViewHandler) mapAccessResult(result *service.AccessResult, err error) (*service.AccessResult, *accessLoadError) {
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, &accessLoadError{
				StatusCode: fiber.StatusNotFound,
				Message:    "link not found",
			}
		}
		h.logger.Error("failed to evaluate access", zap.Error(err))
		return nil, &accessLoadError{
			StatusCode: fiber.StatusInternalServerError,
			Message:    "internal server error",
		}
	}
	return result, nil
}

func (h *ViewHandler) publishOpen(c *fiber.Ctx, result *service.AccessResult) {
	if h.openPublisher == nil || result.Link == nil {
		return
	}
	linkID := result.Link.ID
	token := result.Link.Token
	key := viewerKey(c)
	ua := c.Get("User-Agent")
	go func() {
		if err := h.openPublisher.Publish(linkID, token, key, ua); err != nil {
			h.logger.Error("failed to publish open event", zap.Error(err), zap.String("link_id", linkID))
		}
	}()
}

func userContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
