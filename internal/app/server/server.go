package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kvasserman/fadelink/internal/app/repository"
	"github.com/kvasserman/fadelink/internal/app/service"
	"github.com/kvasserman/fadelink/internal/auth"
	inthttp "github.com/kvasserman/fadelink/internal/http/handler"
	"github.com/kvasserman/fadelink/internal/http/middleware"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies bundles infrastructure and services required by the HTTP server.
type Dependencies struct {
	Logger    *zap.Logger
	Postgres  *pgxpool.Pool
	Redis     *redis.Client
	NATS      *nats.Conn
	JetStream nats.JetStreamContext

	Links repository.LinkStore

	Access        *service.AccessService
	LinkService   service.LinkService
	Documents     service.DocumentService
	Users         service.UserService
	OpenPublisher *service.OpenPublisher

	JWT         *auth.JWTManager
	GrantSecret []byte
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with default routes.
func New(deps Dependencies) *Server {
	app := fiber.New(fiber.Config{
		// Uploads are whole PDFs; the default 4MB body limit is too small.
		BodyLimit: 64 * 1024 * 1024,
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the underlying Fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) registerMiddleware() {
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.CORS())
	if s.deps.Redis != nil {
		s.app.Use(middleware.RateLimit(s.deps.Redis, middleware.DefaultRateLimitConfig(), s.deps.Logger))
	}
}

func (s *Server) registerRoutes() {
	viewHandler := inthttp.NewViewHandler(inthttp.ViewDeps{
		Logger:        s.deps.Logger,
		Access:        s.deps.Access,
		Documents:     s.deps.Documents,
		Secret:        s.deps.GrantSecret,
		OpenPublisher: s.deps.OpenPublisher,
	})
	viewHandler.Register(s.app)

	authHandler := inthttp.NewAuthHandler(inthttp.AuthDeps{
		Logger: s.deps.Logger,
		Users:  s.deps.Users,
		JWT:    s.deps.JWT,
	})
	authHandler.Register(s.app)

	apiHandler := inthttp.NewAPIHandler(inthttp.APIDeps{
		Logger:    s.deps.Logger,
		Links:     s.deps.LinkService,
		Documents: s.deps.Documents,
		JWT:       s.deps.JWT,
	})
	apiHandler.Register(s.app)

	adminHandler := inthttp.NewAdminHandler(inthttp.AdminDeps{
		Logger: s.deps.Logger,
		Users:  s.deps.Users,
		Links:  s.deps.Links,
		JWT:    s.deps.JWT,
	})
	adminHandler.Register(s.app)
}
