// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tribune/internal/bootstrap"
	"tribune/internal/config"
	"tribune/internal/featureflags"
	"tribune/internal/middleware"
	"tribune/internal/models"
	"tribune/internal/notifications"
	"tribune/internal/repository"
	"tribune/internal/service"
	"tribune/internal/session"
	"tribune/internal/store"
	"tribune/internal/validation"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	userRepo       repository.UserRepository
	postRepo       repository.PostRepository
	subscriberRepo repository.SubscriberRepository

	posts      *store.Store
	sessions   *session.Registry
	categories *models.CategorySet

	postService         *service.PostService
	userService         *service.UserService
	subscriptionService *service.SubscriptionService
	imageService        *service.ImageService
	newsletter          *service.NewsletterNotifier

	notifier     *notifications.Notifier
	hub          *notifications.Hub
	featureFlags *featureflags.Manager
}

// NewServer connects the runtime and builds a server on top of it.
func NewServer(cfg *config.Config) (*Server, error) {
	db, redisClient, err := bootstrap.InitRuntime(context.Background(), cfg, bootstrap.Options{SeedDemo: cfg.SeedDemo})
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, db, redisClient)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	categories, err := models.LoadCategories(cfg.CategoriesFile)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	subscriberRepo := repository.NewSubscriberRepository(db)

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("tribune-api"),
		userRepo:       userRepo,
		postRepo:       postRepo,
		subscriberRepo: subscriberRepo,
		categories:     categories,
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		notifier:       notifications.NewNotifier(redisClient),
		hub:            notifications.NewHub(),
	}
	s.shutdownCtx, s.shutdownFn = context.WithCancel(context.Background())

	s.posts = store.New(postRepo, store.Options{})
	s.sessions = session.NewRegistry(session.RegistryConfig{
		TTL: time.Duration(cfg.SessionTTLMinutes) * time.Minute,
	})

	s.userService = service.NewUserService(userRepo)
	s.postService = service.NewPostService(s.posts, s.userService, categories)
	s.subscriptionService = service.NewSubscriptionService(subscriberRepo)
	s.imageService = service.NewImageService(cfg)
	s.newsletter = service.NewNewsletterNotifier(s.subscriptionService, s.mailer(), s.featureFlags, cfg.PublicBaseURL).
		WithLifetime(s.shutdownCtx)
	s.posts.Subscribe(func(ctx context.Context, ch store.Change) {
		s.newsletter.Observe(ctx, ch.Version, ch.Count, ch.Added)
	})

	if err := s.posts.Refresh(context.Background()); err != nil {
		return nil, fmt.Errorf("initial post load: %w", err)
	}
	return s, nil
}

func (s *Server) mailer() notifications.Mailer {
	if s.config.NewsletterOutbox == "log" || s.redis == nil {
		return notifications.LogMailer{}
	}
	return notifications.NewRedisOutbox(s.redis, notifications.DefaultOutboxKey)
}

// Store exposes the post store, mainly for tests and commands.
func (s *Server) Store() *store.Store { return s.posts }

// Sessions exposes the session registry.
func (s *Server) Sessions() *session.Registry { return s.sessions }

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())

	// Browsing session before the context middleware so logs carry its id.
	app.Use(session.Middleware(s.sessions, s.config.IsProduction()))
	app.Use(s.optionalIdentity())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New(helmet.Config{
		// Cover images are loaded cross-origin by the frontend.
		CrossOriginResourcePolicy: "cross-origin",
	}))
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, " + session.HeaderName,
		ExposeHeaders:    session.HeaderName,
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	app.Static(strings.TrimSuffix(validation.UploadPathPrefix, "/"), s.imageService.UploadDir(), fiber.Static{
		MaxAge: 86400 * 30,
	})

	api := app.Group("/api")
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{Title: "Tribune Metrics"}))

	// Catalogue
	api.Get("/categories", s.GetCategories)
	api.Get("/categories/:slug/posts", s.GetCategoryPosts)

	// Public posts. Specific paths before /:id.
	posts := api.Group("/posts")
	posts.Get("/", s.GetPosts)
	posts.Get("/featured", s.GetFeaturedPost)
	posts.Get("/:id", s.GetPost)
	posts.Post("/:id/view", middleware.RateLimit(s.redis, 120, time.Minute, "post_view"), s.RecordView)
	posts.Post("/:id/like", s.AuthRequired(), middleware.RateLimit(s.redis, 60, time.Minute, "post_like"), s.ToggleLike)

	newsletter := api.Group("/newsletter")
	newsletter.Post("/subscribe", middleware.RateLimit(s.redis, 5, 10*time.Minute, "newsletter"), s.Subscribe)
	newsletter.Post("/unsubscribe", middleware.RateLimit(s.redis, 5, 10*time.Minute, "newsletter"), s.Unsubscribe)
	newsletter.Get("/status", s.SubscriptionStatus)

	auth := api.Group("/auth")
	auth.Post("/signup", middleware.RateLimit(s.redis, 3, 10*time.Minute, "signup"), s.Signup)
	auth.Post("/login", middleware.RateLimit(s.redis, 10, 5*time.Minute, "login"), s.Login)
	auth.Post("/logout", s.AuthRequired(), s.Logout)

	me := api.Group("/me", s.AuthRequired())
	me.Get("/", s.GetMe)
	me.Get("/likes", s.GetMyLikes)

	// Live feed. Browsers cannot set headers on a websocket upgrade, so
	// clients trade their bearer token for a single-use ticket first.
	api.Post("/ws/ticket", s.AuthRequired(), s.IssueWSTicket)
	api.Get("/ws/feed", s.AuthRequired(), s.FeedWebSocket())

	admin := api.Group("/admin", s.AuthRequired(), s.AdminRequired())
	admin.Post("/posts", s.CreatePost)
	admin.Put("/posts/:id", s.UpdatePost)
	admin.Delete("/posts/:id", s.DeletePost)
	admin.Post("/images", middleware.RateLimit(s.redis, 30, time.Minute, "image_upload"), s.UploadImage)
	admin.Get("/subscribers", s.GetSubscribers)
	admin.Get("/feature-flags", s.GetFeatureFlags)
}

// NewApp builds a Fiber app with middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "Tech Tribune API",
		BodyLimit: int(s.imageService.MaxUploadSizeBytes()) + 1024*1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// LivenessCheck handles liveness checks
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck pings the database and Redis. Redis is optional: without it
// the instance still serves, so it is reported but does not fail readiness.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	} else if redisStatus != "healthy" {
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"posts":    s.posts.Len(),
		"sessions": s.sessions.Len(),
		"version":  s.posts.Version(),
		"time":     time.Now(),
	})
}

// StartBackground launches the session reaper and pub/sub wiring. They stop
// when Shutdown is called.
func (s *Server) StartBackground() {
	go s.sessions.Run(s.shutdownCtx)

	if !s.notifier.Enabled() {
		return
	}
	err := s.hub.StartWiring(s.shutdownCtx, s.notifier, func(ctx context.Context, ev notifications.FeedEvent) {
		if err := s.posts.Refresh(ctx); err != nil {
			middleware.Logger.WarnContext(ctx, "refresh after remote event failed",
				slog.String("event", ev.Type), slog.String("error", err.Error()))
		}
	})
	if err != nil {
		middleware.Logger.Error("failed to start feed wiring", slog.String("error", err.Error()))
	}
}

// Start starts the server
func (s *Server) Start() error {
	s.app = s.NewApp()
	s.StartBackground()

	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Queued newsletter jobs are bounded by their own timeout.
	if s.newsletter != nil {
		s.newsletter.Wait()
	}
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down feed hub", slog.String("error", err.Error()))
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
