package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/withcare/carelink/internal/models"
	"github.com/withcare/carelink/internal/monitoring"
)

const ratingStatsTTL = 5 * time.Minute

// Redis wraps the redis client used for display-only aggregates. Every
// operation fails open: a cache outage degrades to recomputing from the
// database, never to a request failure.
type Redis struct {
	Client *redis.Client
}

// New creates a Redis cache from a redis:// URL
func New(url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("cache: ping redis: %w", err)
	}

	log.Info().Msg("Redis connection established")
	return &Redis{Client: client}, nil
}

// Close closes the redis connection
func (r *Redis) Close() error {
	return r.Client.Close()
}

func ratingStatsKey(userID int64) string {
	return fmt.Sprintf("rating-stats:%d", userID)
}

// GetRatingStats returns the cached rating aggregate for a user, if present
func (r *Redis) GetRatingStats(ctx context.Context, userID int64) (*models.RatingStats, bool) {
	if r == nil {
		return nil, false
	}

	raw, err := r.Client.Get(ctx, ratingStatsKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to read rating stats cache")
		}
		monitoring.Get().CacheMisses.WithLabelValues("rating-stats").Inc()
		return nil, false
	}

	var stats models.RatingStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Corrupt rating stats cache entry")
		monitoring.Get().CacheMisses.WithLabelValues("rating-stats").Inc()
		return nil, false
	}
	monitoring.Get().CacheHits.WithLabelValues("rating-stats").Inc()
	return &stats, true
}

// SetRatingStats stores a user's rating aggregate with a short TTL
func (r *Redis) SetRatingStats(ctx context.Context, userID int64, stats models.RatingStats) {
	if r == nil {
		return
	}

	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := r.Client.Set(ctx, ratingStatsKey(userID), raw, ratingStatsTTL).Err(); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to write rating stats cache")
	}
}

// InvalidateRatingStats drops a user's cached aggregate after a new review
func (r *Redis) InvalidateRatingStats(ctx context.Context, userID int64) {
	if r == nil {
		return
	}
	if err := r.Client.Del(ctx, ratingStatsKey(userID)).Err(); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("Failed to invalidate rating stats cache")
	}
}
