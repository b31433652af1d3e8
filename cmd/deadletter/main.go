// Command deadletter lists and replays events the router gave up on.
//
//	deadletter list [--limit N] [--all] [--mongo]
//	deadletter replay (--id N | --pending)
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"odinbook/internal/cache"
	"odinbook/internal/config"
	"odinbook/internal/database"
	"odinbook/internal/models"
	"odinbook/internal/observability"
	"odinbook/internal/repository"
	"odinbook/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// listing is the YAML document printed by the list command.
type listing struct {
	DeadLetters []models.DeadLetter `yaml:"dead_letters"`
	MongoCounts map[string]int64    `yaml:"mongo_counts,omitempty"`
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: deadletter list [--limit N] [--all] [--mongo]")
	fmt.Fprintln(os.Stderr, "       deadletter replay (--id N | --pending)")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
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
	switch os.Args[1] {
	case "list":
		err = list(ctx, cfg, db, os.Args[2:])
	case "replay":
		err = replay(ctx, cfg, db, logger, os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

func list(ctx context.Context, cfg *config.Config, db *gorm.DB, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.IntP("limit", "n", 50, "Maximum number of dead letters to print")
	all := fs.Bool("all", false, "Include dead letters that were already replayed")
	withMongo := fs.Bool("mongo", false, "Add per-type counts from the MongoDB mirror")
	if err := fs.Parse(args); err != nil {
		return err
	}

	letters, err := repository.NewDeadLetterRepository(db).List(ctx, *limit, *all)
	if err != nil {
		return err
	}
	out := listing{DeadLetters: letters}

	if *withMongo {
		if cfg.DeadLetterMongoURI == "" {
			return fmt.Errorf("DEADLETTER_MONGO_URI is not set")
		}
		client, err := repository.ConnectMongo(ctx, cfg.DeadLetterMongoURI)
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()

		mirror := repository.NewMongoDeadLetterSink(client.Database(cfg.DBName))
		out.MongoCounts = make(map[string]int64)
		for _, dl := range letters {
			if _, seen := out.MongoCounts[dl.EventType]; seen {
				continue
			}
			n, err := mirror.CountByType(ctx, dl.EventType)
			if err != nil {
				return err
			}
			out.MongoCounts[dl.EventType] = n
		}
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(out)
}

func replay(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	id := fs.Uint("id", 0, "Replay a single dead letter")
	pending := fs.Bool("pending", false, "Replay every dead letter not replayed yet")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*id == 0) == !*pending {
		usage()
	}

	// Handlers push notifications and invalidate feeds, so Redis is wired
	// when available.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		var err error
		if rdb, err = cache.NewClient(ctx, cfg.RedisURL); err != nil {
			logger.Warn("Redis unavailable, replaying without feed cache", slog.String("error", err.Error()))
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

	ids := []uint{*id}
	if *pending {
		letters, err := core.DeadLetters.List(ctx, 0, false)
		if err != nil {
			return err
		}
		ids = ids[:0]
		for _, dl := range letters {
			ids = append(ids, dl.ID)
		}
	}

	for _, dlID := range ids {
		if err := core.ReplayDeadLetter(ctx, dlID); err != nil {
			return err
		}
		logger.Info("Dead letter replayed", slog.Uint64("id", uint64(dlID)))
	}
	logger.Info("Replay complete", slog.Int("count", len(ids)))
	return nil
}
