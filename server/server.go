package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/goliatone/go-artisan"
	"github.com/goliatone/go-artisan/gateway"
)

// Server is the admin HTTP API: authentication endpoints plus the artisan
// lifecycle actions, backed by any artisan.Store.
type Server struct {
	app      *fiber.App
	store    artisan.Store
	accounts Accounts
	tokens   *TokenService
	limiter  *LoginLimiter
	metrics  *Metrics
	logger   artisan.Logger

	readTimeout  time.Duration
	writeTimeout time.Duration
}

// Option customizes a Server.
type Option func(*Server)

func WithAccounts(accounts Accounts) Option {
	return func(s *Server) {
		if accounts != nil {
			s.accounts = accounts
		}
	}
}

func WithLoginLimiter(limiter *LoginLimiter) Option {
	return func(s *Server) {
		if limiter != nil {
			s.limiter = limiter
		}
	}
}

// WithMetrics enables the request middleware and the /metrics endpoint.
func WithMetrics(metrics *Metrics) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

func WithLogger(logger artisan.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
	}
}

func New(store artisan.Store, tokens *TokenService, opts ...Option) *Server {
	s := &Server{
		store:        store,
		tokens:       tokens,
		accounts:     NewMemoryAccounts(),
		limiter:      NewLoginLimiter(DefaultLoginRate, DefaultLoginBurst),
		logger:       artisan.NopLogger{},
		readTimeout:  10 * time.Second,
		writeTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "artisand",
		ErrorHandler:          ErrorHandler(s.logger),
		ReadTimeout:           s.readTimeout,
		WriteTimeout:          s.writeTimeout,
		DisableStartupMessage: true,
	})
	s.routes()
	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.logger.Info("listening on %s", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes() {
	s.app.Use(recover.New())
	s.app.Use(requestid.New(requestid.Config{Header: gateway.RequestIDHeader}))
	if s.metrics != nil {
		s.app.Use(s.metrics.Middleware())
		s.app.Get("/metrics", s.metrics.Handler())
	}

	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	auth := s.app.Group("/auth")
	auth.Post("/login", s.login)
	auth.Post("/refresh", s.refresh)
	auth.Get("/me", s.requireAccess, s.me)

	admin := s.app.Group("/admin", s.requireAccess)
	admin.Get("/artisans", s.listArtisans)
	admin.Get("/artisans/:id", s.getArtisan)
	admin.Post("/artisans/:id/block", s.blockArtisan)
	admin.Post("/artisans/:id/unblock", s.unblockArtisan)
	admin.Post("/artisans/:id/approve", s.approveArtisan)
	admin.Post("/artisans/:id/verify", s.verifyArtisan)
	admin.Post("/artisans/:id/reupload", s.requestReupload)
}
