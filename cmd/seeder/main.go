package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/flicker/match-app/internal/apperr"
	"github.com/flicker/match-app/internal/config"
	"github.com/flicker/match-app/internal/logging"
	"github.com/flicker/match-app/internal/profile"
)

func main() {
	redisURL := flag.String("redis", "", "Redis URL (defaults to REDIS_URL)")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "random seed for ages, preferences and bios")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.Component(logging.New(cfg.Env, cfg.LogLevel), "seeder")

	url := cfg.RedisURL
	if *redisURL != "" {
		url = *redisURL
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid redis url")
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}

	created, skipped, err := Seed(ctx, profile.NewRedisStore(rdb), newGenerator(*seed), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("seeding failed")
	}

	fmt.Printf("%-36s  %-10s  %-6s  %s\n", "ID", "NAME", "GENDER", "WANTS")
	for _, u := range created {
		fmt.Printf("%-36s  %-10s  %-6s  %s\n", u.ID, u.Name, u.Gender, u.GenderPreference)
	}
	logger.Info().Int("created", len(created)).Int("skipped", skipped).Msg("seeding finished")
}

// Seed creates one profile per demo name. Profiles whose email is already
// registered are skipped, so running it twice is harmless.
func Seed(ctx context.Context, store profile.Store, gen *generator, logger zerolog.Logger) (created []seeded, skipped int, err error) {
	for _, u := range gen.users() {
		if err := profile.Validate(&u); err != nil {
			return created, skipped, fmt.Errorf("seed %s: %w", u.Email, err)
		}
		// A valid profile is only rejected when it already exists.
		if err := store.Create(ctx, &u); err != nil {
			if errors.Is(err, apperr.ErrInvalidAction) {
				logger.Debug().Str("email", u.Email).Msg("already seeded")
				skipped++
				continue
			}
			return created, skipped, fmt.Errorf("seed %s: %w", u.Email, err)
		}
		created = append(created, seeded{ID: u.ID, Name: u.Name, Gender: u.Gender, GenderPreference: u.GenderPreference})
	}
	return created, skipped, nil
}

type seeded struct {
	ID               string
	Name             string
	Gender           string
	GenderPreference string
}
