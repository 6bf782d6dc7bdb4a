package workcontext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/establishment-api/internal/model"
)

const keyPrefix = "current_establishment:"

// Store keeps the current selection of each professional.
type Store interface {
	Save(ctx context.Context, wc *model.WorkContext, ttl time.Duration) error
	// Load returns ErrNoContext when nothing is selected.
	Load(ctx context.Context, professionalID uuid.UUID) (*model.WorkContext, error)
	Delete(ctx context.Context, professionalID uuid.UUID) error
}

func storeKey(professionalID uuid.UUID) string {
	return keyPrefix + professionalID.String()
}

// RedisStore shares selections between API instances.
type RedisStore struct {
	client redis.Cmdable
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, wc *model.WorkContext, ttl time.Duration) error {
	data, err := json.Marshal(wc)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}
	if err := s.client.Set(ctx, storeKey(wc.ProfessionalID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save context: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, professionalID uuid.UUID) (*model.WorkContext, error) {
	data, err := s.client.Get(ctx, storeKey(professionalID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoContext
		}
		return nil, fmt.Errorf("failed to load context: %w", err)
	}

	var wc model.WorkContext
	if err := json.Unmarshal(data, &wc); err != nil {
		return nil, fmt.Errorf("failed to decode context: %w", err)
	}
	return &wc, nil
}

func (s *RedisStore) Delete(ctx context.Context, professionalID uuid.UUID) error {
	if err := s.client.Del(ctx, storeKey(professionalID)).Err(); err != nil {
		return fmt.Errorf("failed to delete context: %w", err)
	}
	return nil
}

// CacheStore is the single-instance fallback used when Redis is disabled.
type CacheStore struct {
	cache *cache.Cache
}

func NewCacheStore(cleanupInterval time.Duration) *CacheStore {
	return &CacheStore{cache: cache.New(cache.NoExpiration, cleanupInterval)}
}

func (s *CacheStore) Save(ctx context.Context, wc *model.WorkContext, ttl time.Duration) error {
	snapshot := *wc
	s.cache.Set(storeKey(wc.ProfessionalID), snapshot, ttl)
	return nil
}

func (s *CacheStore) Load(ctx context.Context, professionalID uuid.UUID) (*model.WorkContext, error) {
	v, ok := s.cache.Get(storeKey(professionalID))
	if !ok {
		return nil, ErrNoContext
	}
	wc := v.(model.WorkContext)
	return &wc, nil
}

func (s *CacheStore) Delete(ctx context.Context, professionalID uuid.UUID) error {
	s.cache.Delete(storeKey(professionalID))
	return nil
}
