package agency

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/falco-investigation/falco/internal/platform/cache"
)

// ProfileSource loads profiles from durable storage.
type ProfileSource interface {
	Get(ctx context.Context, userID int64) (Optional, error)
}

// Service reads profiles through the Redis cache.
type Service struct {
	source ProfileSource
	cache  *cache.JSON
	logger *slog.Logger
}

// NewService constructs the profile service. cache may be nil.
func NewService(source ProfileSource, c *cache.JSON, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, cache: c, logger: logger}
}

// Load returns the user's profile, or None when the user has not created one.
func (s *Service) Load(ctx context.Context, userID int64) (Optional, error) {
	if s.cache == nil {
		return s.source.Get(ctx, userID)
	}
	var entry cached
	err := s.cache.Fetch(ctx, s.key(userID), &entry, func(ctx context.Context) (any, error) {
		opt, err := s.source.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		p, ok := opt.Get()
		return cached{Present: ok, Profile: p}, nil
	})
	if err != nil {
		return None(), err
	}
	if !entry.Present {
		return None(), nil
	}
	return Some(entry.Profile), nil
}

// Invalidate drops the cached profile of the user.
func (s *Service) Invalidate(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, s.key(userID)); err != nil {
		s.logger.Warn("invalidate profile cache", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

func (s *Service) key(userID int64) string {
	return s.cache.Key("profile", strconv.FormatInt(userID, 10))
}
