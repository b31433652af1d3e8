package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"odinbook/internal/cache"
	"odinbook/internal/database"
	"odinbook/internal/events"
	"odinbook/internal/models"
	"odinbook/internal/observability"
	"odinbook/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db   *gorm.DB
	core *Core
	mr   *miniredis.Miniredis
	rdb  *redis.Client
}

type envOption func(*CoreDeps)

func withLimits(limits ContentLimits) envOption {
	return func(d *CoreDeps) { d.Limits = limits }
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newTestEnv(t *testing.T, withRedis bool, opts ...envOption) *testEnv {
	t.Helper()
	env := &testEnv{db: newTestDB(t)}

	store := cache.NewStore(nil)
	if withRedis {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		t.Cleanup(mr.Close)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		store = cache.NewStore(rdb)
		env.mr = mr
		env.rdb = rdb
	}

	deps := CoreDeps{
		DB:      env.db,
		Cache:   store,
		Retrier: repository.Retrier{MaxRetries: 2, Initial: time.Millisecond},
		Events: events.Options{
			Workers:        4,
			QueueSize:      64,
			MaxRetries:     2,
			RetryInitial:   time.Millisecond,
			AttemptTimeout: 2 * time.Second,
		},
		FeedTTL: time.Minute,
		Logger:  observability.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	env.core = NewCore(deps)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = env.core.Shutdown(ctx)
	})
	return env
}

// settle waits until every published event has been handled.
func (e *testEnv) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.core.Router.Flush(ctx))
}

func (e *testEnv) createUsers(t *testing.T, n int) []uint {
	t.Helper()
	ids := make([]uint, 0, n)
	for i := 0; i < n; i++ {
		u := models.User{
			Username: fmt.Sprintf("user_%d", i),
			Email:    fmt.Sprintf("user_%d@example.com", i),
		}
		require.NoError(t, e.core.Users.Create(context.Background(), &u))
		ids = append(ids, u.ID)
	}
	return ids
}

func (e *testEnv) befriend(t *testing.T, a, b uint) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.core.Relationships.SendRequest(ctx, a, b))
	require.NoError(t, e.core.Relationships.AcceptRequest(ctx, b, a))
}

func (e *testEnv) notificationsOf(t *testing.T, userID uint, typ models.NotificationType) []models.Notification {
	t.Helper()
	all, err := e.core.Notifications.ListAll(context.Background(), userID)
	require.NoError(t, err)
	var out []models.Notification
	for _, n := range all {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}
