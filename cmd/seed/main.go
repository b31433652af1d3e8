// Command seed populates the database with demo users, friendships and content.
package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"odinbook/internal/cache"
	"odinbook/internal/config"
	"odinbook/internal/database"
	"odinbook/internal/observability"
	"odinbook/internal/seed"
	"odinbook/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"
)

func main() {
	numUsers := flag.IntP("users", "u", 50, "Number of users to create")
	numPosts := flag.IntP("posts", "p", 200, "Number of posts to create")
	comments := flag.Int("comments", 4, "Maximum comments per post")
	friendRatio := flag.Float64("friend-ratio", 0.3, "Probability that two users are connected")
	pendingRatio := flag.Float64("pending-ratio", 0.2, "Share of connections left as pending requests")
	randSeed := flag.Int64("seed", time.Now().UnixNano(), "Random seed for reproducible runs")
	shouldClean := flag.Bool("clean", false, "Delete existing data before seeding")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := observability.Init(cfg.LogLevel, cfg.Env)

	db, err := database.Connect(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx := context.Background()
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		if rdb, err = cache.NewClient(ctx, cfg.RedisURL); err != nil {
			logger.Warn("Redis unavailable, seeding without feed cache", slog.String("error", err.Error()))
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	core := service.NewCore(service.DepsFromConfig(cfg, db, rdb, logger))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := core.Shutdown(shutdownCtx); err != nil {
			logger.Error("Event drain failed", slog.String("error", err.Error()))
		}
	}()

	s := seed.NewSeeder(db, core, logger)
	if *shouldClean {
		if err := s.ClearAll(ctx); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	summary, err := s.Run(ctx, seed.Options{
		NumUsers:        *numUsers,
		NumPosts:        *numPosts,
		CommentsPerPost: *comments,
		FriendRatio:     *friendRatio,
		PendingRatio:    *pendingRatio,
		RandSeed:        *randSeed,
	})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	logger.Info("Seeding complete",
		slog.Int("users", summary.Users),
		slog.Int("friendships", summary.Friendships),
		slog.Int("pending", summary.Pending),
		slog.Int("posts", summary.Posts),
		slog.Int("comments", summary.Comments),
		slog.Int("likes", summary.Likes),
		slog.String("password", seed.DefaultPassword),
	)
}
