package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"odinbook/internal/cache"
	"odinbook/internal/config"
	"odinbook/internal/events"
	"odinbook/internal/models"
	"odinbook/internal/notifications"
	"odinbook/internal/observability"
	"odinbook/internal/repository"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// CoreDeps are the handles the core services are built from.
type CoreDeps struct {
	DB       *gorm.DB
	Cache    *cache.Store
	Notifier *notifications.Notifier
	Retrier  repository.Retrier
	Events   events.Options
	FeedTTL  time.Duration
	Limits   ContentLimits
	// Mirrors receive dead letters in addition to the dead_letters table.
	Mirrors []events.DeadLetterSink
	Logger  *slog.Logger
}

// DepsFromConfig maps the runtime configuration onto CoreDeps. rdb may be
// nil, in which case the feed cache is bypassed and nothing is pushed.
func DepsFromConfig(cfg *config.Config, db *gorm.DB, rdb *redis.Client, logger *slog.Logger) CoreDeps {
	return CoreDeps{
		DB:       db,
		Cache:    cache.NewStore(rdb),
		Notifier: notifications.NewNotifier(rdb),
		Retrier: repository.Retrier{
			MaxRetries: cfg.StorageMaxRetries,
			Initial:    repository.DefaultRetrier.Initial,
		},
		Events: events.Options{
			Workers:        cfg.EventWorkers,
			QueueSize:      cfg.EventQueueSize,
			MaxRetries:     cfg.EventMaxRetries,
			RetryInitial:   cfg.EventRetryInitial,
			AttemptTimeout: cfg.EventAttemptTimeout,
		},
		FeedTTL: cfg.FeedCacheTTL,
		Limits: ContentLimits{
			PostMaxLength:    cfg.PostMaxLength,
			CommentMaxLength: cfg.CommentMaxLength,
		},
		Logger: logger,
	}
}

// Core is the wired social-graph core: stores, services and the router that
// connects them.
type Core struct {
	Users         repository.UserRepository
	DeadLetters   repository.DeadLetterRepository
	Router        *events.Router
	Relationships *RelationshipService
	Notifications *NotificationService
	Feed          *FeedService
	Content       *ContentService
}

// NewCore builds the services and starts the event router.
func NewCore(deps CoreDeps) *Core {
	logger := deps.Logger
	if logger == nil {
		logger = observability.Logger
	}
	deps.Events.Logger = logger

	db := deps.DB
	users := repository.NewUserRepository(db)
	deadLetters := repository.NewDeadLetterRepository(db)
	inbox := repository.NewInboxProjection(db)
	notificationRepo := repository.NewNotificationRepository(db, inbox, deps.Retrier)
	posts := repository.NewPostRepository(db, deps.Retrier)
	comments := repository.NewCommentRepository(db, deps.Retrier)
	likes := repository.NewLikeRepository(db, deps.Retrier)

	// The router exists before the dispatcher it calls; nothing is published
	// until NewCore returns.
	var dispatcher *events.Dispatcher
	sinks := append([]events.DeadLetterSink{deadLetters}, deps.Mirrors...)
	router := events.NewRouter(func(ctx context.Context, e events.Event) error {
		return dispatcher.Handle(ctx, e)
	}, deps.Events, sinks...)

	store := repository.NewRelationshipStore(db, deps.Retrier, logger,
		repository.WithCommitHook(RelationshipEvents(router, logger)))

	c := &Core{
		Users:         users,
		DeadLetters:   deadLetters,
		Router:        router,
		Relationships: NewRelationshipService(store, users),
		Notifications: NewNotificationService(notificationRepo, inbox, deps.Notifier, logger),
		Feed:          NewFeedService(posts, store, users, deps.Cache, deps.FeedTTL, logger),
		Content:       NewContentService(posts, comments, likes, router, deps.Limits, logger),
	}
	dispatcher = events.NewDispatcher(c.Notifications, c.Feed, c.Relationships, c.Content, logger)
	return c
}

// ReplayDeadLetter republishes a stored dead letter with its original event
// id and marks it replayed. Handlers are idempotent on the event id, so a
// replay of partially handled work cannot duplicate notifications.
func (c *Core) ReplayDeadLetter(ctx context.Context, id uint) error {
	dl, err := c.DeadLetters.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if dl.ReplayedAt != nil {
		return models.NewValidationError(fmt.Sprintf("dead letter %d was already replayed", id))
	}
	if err := c.Router.Replay(ctx, dl); err != nil {
		return fmt.Errorf("replay dead letter %d: %w", id, err)
	}
	return c.DeadLetters.MarkReplayed(ctx, id, time.Now())
}

// Shutdown waits for published events to be handled, then stops the router.
func (c *Core) Shutdown(ctx context.Context) error {
	err := c.Router.Flush(ctx)
	c.Router.Close()
	return err
}
