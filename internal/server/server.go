// Package server contains the HTTP handlers and routing for the odinbook API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"odinbook/internal/cache"
	"odinbook/internal/config"
	"odinbook/internal/database"
	"odinbook/internal/events"
	"odinbook/internal/middleware"
	"odinbook/internal/observability"
	"odinbook/internal/repository"
	"odinbook/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config  *config.Config
	db      *gorm.DB
	redis   *redis.Client
	mongo   *mongo.Client
	core    *service.Core
	metrics *middleware.Metrics
	logger  *slog.Logger
	app     *fiber.App
}

// NewServer creates a new server instance with all dependencies. Redis and
// the MongoDB dead-letter mirror are optional: when they cannot be reached
// the server starts without them.
func NewServer(cfg *config.Config) (*Server, error) {
	logger := observability.Logger

	// Initialize database
	db, err := database.Connect(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize Redis
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis unavailable, feed cache and push disabled", slog.String("error", err.Error()))
			redisClient = nil
		}
	}

	var mirrors []events.DeadLetterSink
	var mongoClient *mongo.Client
	if cfg.DeadLetterMongoURI != "" {
		mongoClient, err = repository.ConnectMongo(ctx, cfg.DeadLetterMongoURI)
		if err != nil {
			logger.Warn("MongoDB dead-letter mirror disabled", slog.String("error", err.Error()))
		} else {
			mirrors = append(mirrors, repository.NewMongoDeadLetterSink(mongoClient.Database(cfg.DBName)))
		}
	}

	s, err := NewServerWithDeps(cfg, db, redisClient, mirrors...)
	if err != nil {
		return nil, err
	}
	s.mongo = mongoClient
	return s, nil
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis itself.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, mirrors ...events.DeadLetterSink) (*Server, error) {
	if db == nil {
		return nil, errors.New("database handle is required")
	}
	logger := observability.Logger

	deps := service.DepsFromConfig(cfg, db, redisClient, logger)
	deps.Mirrors = mirrors

	s := &Server{
		config:  cfg,
		db:      db,
		redis:   redisClient,
		core:    service.NewCore(deps),
		metrics: middleware.InitMetrics("odinbook-api"),
		logger:  logger,
	}

	s.app = fiber.New(fiber.Config{
		AppName:      "odinbook API",
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: s.errorHandler,
	})
	s.SetupMiddleware(s.app)
	s.SetupRoutes(s.app)
	return s, nil
}

// App returns the configured Fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Core returns the wired services behind the handlers.
func (s *Server) Core() *service.Core {
	return s.core
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Server span, before the context middleware reads the trace id
	app.Use(middleware.TracingMiddleware())

	// Context Middleware to propagate Request ID and Trace ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.metrics != nil {
		app.Use(s.metrics.Middleware())
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger(s.logger))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health", s.HealthCheck)
	if s.metrics != nil {
		app.Get("/metrics", s.metrics.Handler())
	}

	api := app.Group("/api", middleware.AuthRequired(s.config.JWTSecret))

	// Friend routes
	friends := api.Group("/friends")
	friends.Get("/", s.GetFriends)
	// Specific /requests/:userId/<action> routes before the bare request routes
	friends.Post("/requests/:userId/accept", s.AcceptFriendRequest)
	friends.Post("/requests/:userId/reject", s.RejectFriendRequest)
	friends.Post("/requests/:userId", s.SendFriendRequest)
	friends.Delete("/requests/:userId", s.CancelFriendRequest)
	friends.Get("/status/:userId", s.GetFriendshipStatus)
	// Generic /:userId route must be last
	friends.Delete("/:userId", s.RemoveFriend)

	// Notification routes
	notifications := api.Group("/notifications")
	notifications.Get("/", s.GetNotifications)
	notifications.Post("/read", s.MarkAllNotificationsRead)
	notifications.Post("/:id/read", s.MarkNotificationRead)
	notifications.Delete("/", s.DeleteAllNotifications)
	notifications.Delete("/:id", s.DeleteNotification)

	api.Get("/feed", s.GetFeed)

	// Post routes
	posts := api.Group("/posts")
	posts.Post("/", s.CreatePost)
	// Define specific /:id/:resource routes BEFORE generic /:id route
	posts.Post("/:id/like", s.TogglePostLike)
	posts.Get("/:id/comments", s.GetComments)
	posts.Post("/:id/comments", s.CreateComment)
	posts.Get("/:id", s.GetPost)
	posts.Put("/:id", s.UpdatePost)
	posts.Delete("/:id", s.DeletePost)

	// Comment routes
	comments := api.Group("/comments")
	comments.Post("/:id/like", s.ToggleCommentLike)
	comments.Delete("/:id", s.DeleteComment)
}

// HealthCheck reports database and Redis reachability. Redis is optional, so
// only a database failure makes the service unhealthy.
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "disabled"
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
	} else if redisStatus == "unhealthy" {
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start listens on the configured port until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown stops accepting requests, drains the event router and closes the
// connections the server owns.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.core.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("event router drain: %w", err))
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if s.mongo != nil {
		if err := s.mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongo disconnect: %w", err))
		}
	}
	if sqlDB, err := s.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close: %w", err))
		}
	}
	return errors.Join(errs...)
}
