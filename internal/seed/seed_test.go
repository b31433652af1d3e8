package seed

import (
	"context"
	"testing"
	"time"

	"odinbook/internal/database"
	"odinbook/internal/events"
	"odinbook/internal/models"
	"odinbook/internal/observability"
	"odinbook/internal/repository"
	"odinbook/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSeeder(t *testing.T) (*Seeder, *gorm.DB) {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)

	logger := observability.DiscardLogger()
	core := service.NewCore(service.CoreDeps{
		DB:      db,
		Retrier: repository.Retrier{MaxRetries: 1, Initial: time.Millisecond},
		Events: events.Options{
			Workers:        2,
			QueueSize:      32,
			MaxRetries:     1,
			RetryInitial:   time.Millisecond,
			AttemptTimeout: time.Second,
		},
		Limits: service.ContentLimits{PostMaxLength: 1000, CommentMaxLength: 500},
		Logger: logger,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = core.Shutdown(ctx)
	})
	return NewSeeder(db, core, logger), db
}

func count(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestSeeder_RunMatchesSummary(t *testing.T) {
	s, db := newSeeder(t)

	summary, err := s.Run(context.Background(), Options{
		NumUsers:        8,
		NumPosts:        12,
		CommentsPerPost: 3,
		FriendRatio:     0.5,
		PendingRatio:    0.25,
		RandSeed:        7,
	})
	require.NoError(t, err)

	assert.Equal(t, 8, summary.Users)
	assert.Equal(t, 12, summary.Posts)
	assert.EqualValues(t, summary.Users, count(t, db, &models.User{}))
	assert.EqualValues(t, summary.Posts, count(t, db, &models.Post{}))
	assert.EqualValues(t, summary.Comments, count(t, db, &models.Comment{}))
	assert.EqualValues(t, summary.Likes, count(t, db, &models.Like{}))
	// Two directed rows per friendship and per pending request.
	assert.EqualValues(t, 2*(summary.Friendships+summary.Pending), count(t, db, &models.UserRelation{}))

	var requests int64
	require.NoError(t, db.Model(&models.Notification{}).
		Where("type = ?", models.NotificationIncomingFriendRequest).Count(&requests).Error)
	assert.EqualValues(t, summary.Friendships+summary.Pending, requests)
	assert.Zero(t, count(t, db, &models.DeadLetter{}))
}

func TestSeeder_SameSeedSameShape(t *testing.T) {
	opts := Options{NumUsers: 6, NumPosts: 4, CommentsPerPost: 2, RandSeed: 99}

	first, _ := newSeeder(t)
	a, err := first.Run(context.Background(), opts)
	require.NoError(t, err)

	second, _ := newSeeder(t)
	b, err := second.Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestSeeder_ClearAll(t *testing.T) {
	s, db := newSeeder(t)
	ctx := context.Background()

	_, err := s.Run(ctx, Options{NumUsers: 4, NumPosts: 3, CommentsPerPost: 1, FriendRatio: 1})
	require.NoError(t, err)
	require.NotZero(t, count(t, db, &models.User{}))

	require.NoError(t, s.ClearAll(ctx))
	for _, model := range database.Models() {
		assert.Zero(t, count(t, db, model), "%T", model)
	}
}
