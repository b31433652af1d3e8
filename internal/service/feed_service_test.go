package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"odinbook/internal/cache"
	"odinbook/internal/models"
	"odinbook/internal/observability"
	"odinbook/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postIDs(posts []models.Post) []uint {
	ids := make([]uint, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestSortFeed(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	posts := []models.Post{
		{ID: 1, CreatedAt: base},
		{ID: 4, CreatedAt: base.Add(-time.Minute)},
		{ID: 3, CreatedAt: base},
		{ID: 2, CreatedAt: base.Add(time.Minute)},
		{ID: 5, CreatedAt: base},
	}

	sortFeed(posts)

	assert.Equal(t, []uint{2, 5, 3, 1, 4}, postIDs(posts))
}

func TestFeedService_OrderingWithEqualTimestamps(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	ids := env.createUsers(t, 3)
	me, friend, stranger := ids[0], ids[1], ids[2]
	env.befriend(t, me, friend)
	env.settle(t)

	same := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rows := []models.Post{
		{UserID: friend, Content: "older", CreatedAt: same.Add(-time.Hour)},
		{UserID: me, Content: "tie one", CreatedAt: same},
		{UserID: friend, Content: "tie two", CreatedAt: same},
		{UserID: stranger, Content: "not visible", CreatedAt: same.Add(time.Hour)},
		{UserID: friend, Content: "newest", CreatedAt: same.Add(time.Minute)},
	}
	for i := range rows {
		require.NoError(t, env.db.Create(&rows[i]).Error)
	}

	feed, err := env.core.Feed.ComputeFeed(ctx, me)
	require.NoError(t, err)

	assert.Equal(t, []uint{rows[4].ID, rows[2].ID, rows[1].ID, rows[0].ID}, postIDs(feed))
}

func TestFeedService_UnknownUser(t *testing.T) {
	env := newTestEnv(t, false)

	_, err := env.core.Feed.ComputeFeed(context.Background(), 12345)
	assert.True(t, models.IsCode(err, models.CodeInvalidTarget))
}

// userRepoStub is a stub for repository.UserRepository.
type userRepoStub struct {
	friendSetVersionFn func(context.Context, uint) (uint64, error)
}

func (s *userRepoStub) GetByID(_ context.Context, id uint) (*models.User, error) {
	return &models.User{ID: id}, nil
}
func (s *userRepoStub) GetByIDs(_ context.Context, _ []uint) ([]models.User, error) {
	return nil, nil
}
func (s *userRepoStub) Create(_ context.Context, _ *models.User) error { return nil }
func (s *userRepoStub) List(_ context.Context, _, _ int) ([]models.User, error) {
	return nil, nil
}
func (s *userRepoStub) FriendSetVersion(ctx context.Context, id uint) (uint64, error) {
	return s.friendSetVersionFn(ctx, id)
}

func TestFeedService_InvalidateWithoutCacheIsNoop(t *testing.T) {
	users := &userRepoStub{friendSetVersionFn: func(context.Context, uint) (uint64, error) {
		t.Fatal("version must not be read without a cache")
		return 0, nil
	}}
	svc := NewFeedService(noopPostRepo(), nil, users, cache.NewStore(nil), time.Minute, observability.DiscardLogger())

	assert.NoError(t, svc.Invalidate(context.Background(), 1, 2))
}

func TestFeedService_InvalidateMovesToNewGeneration(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	me := env.createUsers(t, 1)[0]

	_, err := env.core.Feed.ComputeFeed(ctx, me)
	require.NoError(t, err)
	version, err := env.core.Users.FriendSetVersion(ctx, me)
	require.NoError(t, err)
	assert.True(t, env.mr.Exists(cache.FeedKey(me, version, 0)))

	// Duplicates collapse into one bump.
	require.NoError(t, env.core.Feed.Invalidate(ctx, me, me, 999))
	gen, err := env.mr.Get(cache.FeedGenerationKey(me))
	require.NoError(t, err)
	assert.Equal(t, "1", gen)

	_, err = env.core.Feed.ComputeFeed(ctx, me)
	require.NoError(t, err)
	assert.True(t, env.mr.Exists(cache.FeedKey(me, version, 1)))
}

func TestFeedService_ReadRacingInvalidationIsNotServed(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	me := env.createUsers(t, 1)[0]

	// The first listing pauses after reading, before the result is cached.
	postRepo := repository.NewPostRepository(env.db, repository.DefaultRetrier)
	listed := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	posts := noopPostRepo()
	posts.listByAuthorsFn = func(ctx context.Context, authorIDs []uint, viewerID uint) ([]models.Post, error) {
		out, err := postRepo.ListByAuthors(ctx, authorIDs, viewerID)
		once.Do(func() {
			close(listed)
			<-release
		})
		return out, err
	}
	store := repository.NewRelationshipStore(env.db, repository.DefaultRetrier, nil)
	svc := NewFeedService(posts, store, env.core.Users, cache.NewStore(env.rdb), time.Minute, observability.DiscardLogger())

	stale := make(chan []models.Post, 1)
	go func() {
		feed, err := svc.ComputeFeed(ctx, me)
		assert.NoError(t, err)
		stale <- feed
	}()
	<-listed

	_, err := env.core.Content.CreatePost(ctx, me, "written mid-read")
	require.NoError(t, err)
	env.settle(t)
	close(release)
	assert.Empty(t, <-stale)

	feed, err := svc.ComputeFeed(ctx, me)
	require.NoError(t, err)
	assert.Len(t, feed, 1)
}

func TestFeedService_FailedInvalidationBypassesCache(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	me := env.createUsers(t, 1)[0]

	_, err := env.core.Content.CreatePost(ctx, me, "first")
	require.NoError(t, err)
	env.settle(t)
	feed, err := env.core.Feed.ComputeFeed(ctx, me)
	require.NoError(t, err)
	require.Len(t, feed, 1)

	env.mr.SetError("LOADING")
	_, err = env.core.Content.CreatePost(ctx, me, "second")
	require.NoError(t, err)
	env.settle(t)
	env.mr.SetError("")

	feed, err = env.core.Feed.ComputeFeed(ctx, me)
	require.NoError(t, err)
	assert.Len(t, feed, 2)
}
