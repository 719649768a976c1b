package adapter

import (
	"context"
	"errors"
	"time"

	cacheport "chatsync/internal/infrastructure/cache/port"
	chat "chatsync/internal/pkg/chat/application/domain"
	repository "chatsync/internal/pkg/chat/persistence/repository/port"

	"github.com/rs/zerolog"
)

// CachedProfileRepository memoises found avatars in a cache. Missing
// profiles are not cached so a newly created profile shows up on the next
// lookup. Cache failures degrade to a direct lookup.
type CachedProfileRepository struct {
	next  repository.ProfileRepository
	cache cacheport.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

func NewCachedProfileRepository(next repository.ProfileRepository, cache cacheport.Cache, ttl time.Duration, log zerolog.Logger) *CachedProfileRepository {
	return &CachedProfileRepository{next: next, cache: cache, ttl: ttl, log: log}
}

var _ repository.ProfileRepository = (*CachedProfileRepository)(nil)

func avatarKey(userID string) string { return "avatar:" + userID }

func (r *CachedProfileRepository) FindProfile(ctx context.Context, userID string) (chat.Profile, bool, error) {
	avatar, err := r.cache.Get(ctx, avatarKey(userID))
	switch {
	case err == nil:
		return chat.Profile{UserID: userID, Avatar: avatar}, true, nil
	case !errors.Is(err, cacheport.ErrMiss):
		r.log.Warn().Err(err).Str("user_id", userID).Msg("avatar cache get")
	}

	p, ok, err := r.next.FindProfile(ctx, userID)
	if err != nil || !ok {
		return p, ok, err
	}
	if err := r.cache.Set(ctx, avatarKey(userID), p.Avatar, r.ttl); err != nil {
		r.log.Warn().Err(err).Str("user_id", userID).Msg("avatar cache set")
	}
	return p, true, nil
}
