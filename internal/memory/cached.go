package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Corleone-Yang/Sekai-Take-Home/internal/log"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/models"
	"github.com/Corleone-Yang/Sekai-Take-Home/internal/redis"
)

const defaultCacheTTL = 30 * time.Minute

// CachedStore is a redis read-through cache in front of another Store.
// Every write goes to the inner store first and then drops the cached list,
// so a failed write never leaves the cache ahead of the source of truth.
type CachedStore struct {
	inner  Store
	client *redis.Client
	ttl    time.Duration
}

func NewCachedStore(inner Store, client *redis.Client, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedStore{inner: inner, client: client, ttl: ttl}
}

func longTermKey(sessionID, characterID string) string {
	return fmt.Sprintf("memory:long:%s:%s", sessionID, characterID)
}

func shortTermKey(sessionID, characterID string) string {
	return fmt.Sprintf("memory:short:%s:%s", sessionID, characterID)
}

func (s *CachedStore) LongTerm(ctx context.Context, sessionID, characterID string) ([]models.LongTermMemory, error) {
	key := longTermKey(sessionID, characterID)
	var cached []models.LongTermMemory
	if s.load(ctx, key, &cached) {
		return cached, nil
	}
	entries, err := s.inner.LongTerm(ctx, sessionID, characterID)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, entries)
	return entries, nil
}

func (s *CachedStore) ShortTerm(ctx context.Context, sessionID, characterID string) ([]models.ShortTermMemory, error) {
	key := shortTermKey(sessionID, characterID)
	var cached []models.ShortTermMemory
	if s.load(ctx, key, &cached) {
		return cached, nil
	}
	entries, err := s.inner.ShortTerm(ctx, sessionID, characterID)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, entries)
	return entries, nil
}

func (s *CachedStore) AppendShortTerm(ctx context.Context, sessionID, characterID string, entry models.ShortTermMemory) error {
	if err := s.inner.AppendShortTerm(ctx, sessionID, characterID, entry); err != nil {
		return err
	}
	s.invalidate(ctx, shortTermKey(sessionID, characterID))
	return nil
}

func (s *CachedStore) ReplaceShortTerm(ctx context.Context, sessionID, characterID string, entries []models.ShortTermMemory) error {
	if err := s.inner.ReplaceShortTerm(ctx, sessionID, characterID, entries); err != nil {
		return err
	}
	s.invalidate(ctx, shortTermKey(sessionID, characterID))
	return nil
}

func (s *CachedStore) SeedLongTerm(ctx context.Context, sessionID string, entries []models.LongTermMemory) error {
	if err := s.inner.SeedLongTerm(ctx, sessionID, entries); err != nil {
		return err
	}
	seen := make(map[string]struct{})
	var keys []string
	for _, e := range entries {
		if _, ok := seen[e.CharacterID]; ok {
			continue
		}
		seen[e.CharacterID] = struct{}{}
		keys = append(keys, longTermKey(sessionID, e.CharacterID))
	}
	s.invalidate(ctx, keys...)
	return nil
}

func (s *CachedStore) HasLongTerm(ctx context.Context, sessionID string) (bool, error) {
	return s.inner.HasLongTerm(ctx, sessionID)
}

func (s *CachedStore) load(ctx context.Context, key string, dst any) bool {
	if s.client == nil {
		return false
	}
	err := s.client.GetJSON(ctx, key, dst)
	if err == nil {
		return true
	}
	if !errors.Is(err, redis.ErrCacheMiss) {
		log.FromCtx(ctx).Warn().Err(err).Str("key", key).Msg("memory cache read failed")
	}
	return false
}

func (s *CachedStore) store(ctx context.Context, key string, value any) {
	if s.client == nil {
		return
	}
	if err := s.client.SetJSON(ctx, key, value, s.ttl); err != nil {
		log.FromCtx(ctx).Warn().Err(err).Str("key", key).Msg("memory cache write failed")
	}
}

func (s *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if s.client == nil || len(keys) == 0 {
		return
	}
	if err := s.client.Del(ctx, keys...); err != nil {
		log.FromCtx(ctx).Warn().Err(err).Strs("keys", keys).Msg("memory cache invalidate failed")
	}
}
