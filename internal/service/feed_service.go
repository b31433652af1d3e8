package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"odinbook/internal/cache"
	"odinbook/internal/models"
	"odinbook/internal/observability"
	"odinbook/internal/repository"
)

// FeedService answers what a user should see right now: every post by the
// user or a current friend, newest first.
type FeedService struct {
	posts         repository.PostRepository
	relationships repository.RelationshipStore
	users         repository.UserRepository
	cache         *cache.Store
	ttl           time.Duration
	logger        *slog.Logger

	// pending holds users whose generation bump failed. Their feeds skip
	// the cache until a later bump succeeds.
	mu      sync.Mutex
	pending map[uint]struct{}
}

// NewFeedService returns a new FeedService. A disabled cache store makes
// every read compute the feed.
func NewFeedService(
	posts repository.PostRepository,
	relationships repository.RelationshipStore,
	users repository.UserRepository,
	store *cache.Store,
	ttl time.Duration,
	logger *slog.Logger,
) *FeedService {
	if logger == nil {
		logger = observability.Logger
	}
	return &FeedService{
		posts:         posts,
		relationships: relationships,
		users:         users,
		cache:         store,
		ttl:           ttl,
		logger:        logger,
		pending:       make(map[uint]struct{}),
	}
}

// ComputeFeed returns userID's feed ordered by creation time descending,
// ties broken by id descending.
func (s *FeedService) ComputeFeed(ctx context.Context, userID uint) ([]models.Post, error) {
	start := time.Now()
	defer func() {
		observability.FeedComputeLatency.Observe(time.Since(start).Seconds())
	}()

	version, err := s.users.FriendSetVersion(ctx, userID)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, models.NewInvalidTargetError(userID)
		}
		return nil, err
	}

	var feed []models.Post
	fetch := func() error {
		posts, err := s.compute(ctx, userID)
		if err != nil {
			return err
		}
		feed = posts
		return nil
	}

	// The generation is read before computing, so a concurrent invalidation
	// moves later readers to a new key and this result is never served.
	result := cache.Degraded
	if s.retryPending(ctx, userID) {
		err = fetch()
	} else if gen, genErr := s.cache.Generation(ctx, cache.FeedGenerationKey(userID)); genErr != nil {
		err = fetch()
	} else {
		result, err = s.cache.Aside(ctx, cache.FeedKey(userID, version, gen), &feed, s.ttl, fetch)
	}
	observability.FeedCacheResults.WithLabelValues(string(result)).Inc()
	if result == cache.Degraded {
		s.logger.WarnContext(ctx, "feed cache unavailable, computed from storage",
			slog.Uint64("user_id", uint64(userID)))
	}
	if err != nil {
		return nil, err
	}
	if feed == nil {
		feed = []models.Post{}
	}
	return feed, nil
}

func (s *FeedService) compute(ctx context.Context, userID uint) ([]models.Post, error) {
	friends, err := s.relationships.FriendsOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	audience := append([]uint{userID}, friends...)
	posts, err := s.posts.ListByAuthors(ctx, audience, userID)
	if err != nil {
		return nil, err
	}
	sortFeed(posts)
	return posts, nil
}

// sortFeed orders posts newest first with id descending as the tie breaker,
// so equal timestamps still produce a stable total order.
func sortFeed(posts []models.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ID > posts[j].ID
	})
}

// Invalidate moves every given user's feed to a new content generation.
// Cache errors are logged and counted rather than returned; the affected
// users read from storage until a later bump succeeds.
func (s *FeedService) Invalidate(ctx context.Context, userIDs ...uint) error {
	if !s.cache.Enabled() || len(userIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range userIDs {
		s.pending[id] = struct{}{}
	}
	s.bumpPendingLocked(ctx)
	return nil
}

// retryPending bumps any generations left over from failed invalidations
// and reports whether userID still has one outstanding.
func (s *FeedService) retryPending(ctx context.Context, userID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return false
	}
	s.bumpPendingLocked(ctx)
	_, stale := s.pending[userID]
	return stale
}

func (s *FeedService) bumpPendingLocked(ctx context.Context) {
	keys := make([]string, 0, len(s.pending))
	for id := range s.pending {
		keys = append(keys, cache.FeedGenerationKey(id))
	}
	if err := s.cache.Bump(ctx, keys...); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate feed cache",
			slog.Int("users", len(keys)),
			slog.String("error", err.Error()),
		)
		return
	}
	clear(s.pending)
}
