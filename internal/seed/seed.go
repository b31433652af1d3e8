// Package seed provides database seeding utilities for development and testing.
// Everything is created through the core services so the event path
// (notifications, fan-out, feed invalidation) runs exactly as in production.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"

	"odinbook/internal/database"
	"odinbook/internal/models"
	"odinbook/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password every seeded user can log in with.
const DefaultPassword = "password123"

// Options configuration for the seeder
type Options struct {
	NumUsers int
	NumPosts int
	// CommentsPerPost is the upper bound of comments on one post.
	CommentsPerPost int
	// FriendRatio is the probability that a pair of users is connected.
	FriendRatio float64
	// PendingRatio is the share of connections left as unanswered requests.
	PendingRatio float64
	// RandSeed makes a run reproducible; zero picks a fixed default.
	RandSeed int64
}

func (o *Options) withDefaults() {
	if o.NumUsers <= 0 {
		o.NumUsers = 20
	}
	if o.NumPosts < 0 {
		o.NumPosts = 0
	}
	if o.CommentsPerPost < 0 {
		o.CommentsPerPost = 0
	}
	if o.FriendRatio <= 0 || o.FriendRatio > 1 {
		o.FriendRatio = 0.3
	}
	if o.PendingRatio < 0 || o.PendingRatio > 1 {
		o.PendingRatio = 0.2
	}
	if o.RandSeed == 0 {
		o.RandSeed = 42
	}
}

// Summary counts what a run created.
type Summary struct {
	Users       int
	Friendships int
	Pending     int
	Posts       int
	Comments    int
	Likes       int
}

// Seeder populates the database through the core services.
type Seeder struct {
	db     *gorm.DB
	core   *service.Core
	logger *slog.Logger
	rng    *rand.Rand
}

// NewSeeder returns a Seeder bound to db and the services built on it.
func NewSeeder(db *gorm.DB, core *service.Core, logger *slog.Logger) *Seeder {
	return &Seeder{db: db, core: core, logger: logger}
}

// ClearAll deletes every row of every table the service owns.
func (s *Seeder) ClearAll(ctx context.Context) error {
	tables := database.Models()
	for i := len(tables) - 1; i >= 0; i-- {
		if err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).
			Delete(tables[i]).Error; err != nil {
			return fmt.Errorf("failed to clear %T: %w", tables[i], err)
		}
	}
	s.logger.Info("Cleared existing data")
	return nil
}

// Run creates users, friendships, posts, comments and likes, then waits for
// the resulting events to be handled.
func (s *Seeder) Run(ctx context.Context, opts Options) (*Summary, error) {
	opts.withDefaults()
	//nolint:gosec // Weak random number generator is fine for seeding
	s.rng = rand.New(rand.NewSource(opts.RandSeed))
	gofakeit.Seed(opts.RandSeed)

	summary := &Summary{}

	users, err := s.createUsers(ctx, opts.NumUsers)
	if err != nil {
		return summary, fmt.Errorf("failed to create users: %w", err)
	}
	summary.Users = len(users)
	s.logger.Info("Users created", slog.Int("count", summary.Users))

	if err := s.connect(ctx, users, opts, summary); err != nil {
		return summary, fmt.Errorf("failed to create friendships: %w", err)
	}
	s.logger.Info("Friendships created",
		slog.Int("friends", summary.Friendships),
		slog.Int("pending", summary.Pending),
	)

	if err := s.engage(ctx, users, opts, summary); err != nil {
		return summary, fmt.Errorf("failed to create content: %w", err)
	}
	s.logger.Info("Content created",
		slog.Int("posts", summary.Posts),
		slog.Int("comments", summary.Comments),
		slog.Int("likes", summary.Likes),
	)

	if err := s.core.Router.Flush(ctx); err != nil {
		return summary, fmt.Errorf("failed to drain events: %w", err)
	}
	return summary, nil
}

func (s *Seeder) createUsers(ctx context.Context, count int) ([]uint, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, count)
	for i := 0; i < count; i++ {
		// The index suffix keeps usernames unique across faker collisions.
		username := fmt.Sprintf("%s_%d", strings.ToLower(gofakeit.Username()), i)
		if len(username) > 50 {
			username = username[len(username)-50:]
		}
		user := &models.User{
			Username:     username,
			Email:        fmt.Sprintf("%s@%s", username, gofakeit.DomainName()),
			PasswordHash: string(hashedPassword),
			Bio:          gofakeit.HipsterSentence(8),
			Location:     gofakeit.City(),
			PhotoURL:     fmt.Sprintf("https://i.pravatar.cc/150?u=%s", username),
		}
		if err := s.core.Users.Create(ctx, user); err != nil {
			return ids, err
		}
		ids = append(ids, user.ID)
	}
	return ids, nil
}

// connect walks every unordered pair once and sends, and usually accepts, a
// request with probability FriendRatio.
func (s *Seeder) connect(ctx context.Context, users []uint, opts Options, summary *Summary) error {
	rel := s.core.Relationships
	for i := 0; i < len(users); i++ {
		for j := i + 1; j < len(users); j++ {
			if s.rng.Float64() >= opts.FriendRatio {
				continue
			}
			from, to := users[i], users[j]
			if s.rng.Intn(2) == 0 {
				from, to = to, from
			}
			if err := rel.SendRequest(ctx, from, to); err != nil {
				return err
			}
			if s.rng.Float64() < opts.PendingRatio {
				summary.Pending++
				continue
			}
			if err := rel.AcceptRequest(ctx, to, from); err != nil {
				return err
			}
			summary.Friendships++
		}
	}
	return nil
}

func (s *Seeder) engage(ctx context.Context, users []uint, opts Options, summary *Summary) error {
	if len(users) == 0 {
		return nil
	}
	content := s.core.Content
	pick := func() uint { return users[s.rng.Intn(len(users))] }

	for i := 0; i < opts.NumPosts; i++ {
		post, err := content.CreatePost(ctx, pick(), gofakeit.Sentence(6+s.rng.Intn(12)))
		if err != nil {
			return err
		}
		summary.Posts++

		if opts.CommentsPerPost > 0 {
			for c := s.rng.Intn(opts.CommentsPerPost + 1); c > 0; c-- {
				if _, err := content.CreateComment(ctx, pick(), post.ID, gofakeit.Sentence(3+s.rng.Intn(8))); err != nil {
					return err
				}
				summary.Comments++
			}
		}

		// Each user likes at most once, so toggling never unlikes.
		likers := s.rng.Perm(len(users))[:s.rng.Intn(len(users)+1)]
		for _, idx := range likers {
			if _, err := content.TogglePostLike(ctx, users[idx], post.ID); err != nil {
				return err
			}
			summary.Likes++
		}
	}
	return nil
}
