package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sayan/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type CacheService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCacheService(client *redis.Client, defaultTTL time.Duration) *CacheService {
	return &CacheService{
		client: client,
		ttl:    defaultTTL,
	}
}

// Base operations
func (s *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	return s.SetWithTTL(ctx, key, value, s.ttl)
}

func (s *CacheService) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}

func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to get cache value: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return true, nil
}

func (s *CacheService) Delete(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...).Err()
}

// Key generation
func (s *CacheService) GenerateKey(entityType, keyType string, value interface{}) string {
	return fmt.Sprintf("%s:%s:%v", entityType, keyType, value)
}

// Balance caching. Every committed mutation bumps a per-owner version and
// drops the entry; a reader may only store a balance under the version it
// saw before reading the database, so a read that raced a write is discarded.
func (s *CacheService) balanceKey(owner models.Owner) string {
	return s.GenerateKey("wallet", "balance", owner.String())
}

func (s *CacheService) balanceVersionKey(owner models.Owner) string {
	return s.GenerateKey("wallet", "balance_version", owner.String())
}

const setBalanceIfVersion = `
local current = redis.call('GET', KEYS[2])
if (current or '0') ~= ARGV[2] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1`

func (s *CacheService) GetBalance(ctx context.Context, owner models.Owner) (decimal.Decimal, bool, error) {
	var balance decimal.Decimal
	found, err := s.Get(ctx, s.balanceKey(owner), &balance)
	if err != nil || !found {
		return decimal.Zero, false, err
	}
	return balance, true, nil
}

// BalanceVersion returns the owner's invalidation counter, zero if unset.
func (s *CacheService) BalanceVersion(ctx context.Context, owner models.Owner) (int64, error) {
	v, err := s.client.Get(ctx, s.balanceVersionKey(owner)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance version: %w", err)
	}
	return v, nil
}

// SetBalance stores balance only while the version is still the one the
// caller read. It reports whether the entry was written.
func (s *CacheService) SetBalance(ctx context.Context, owner models.Owner, balance decimal.Decimal, version int64, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	data, err := json.Marshal(balance)
	if err != nil {
		return false, fmt.Errorf("failed to marshal cache value: %w", err)
	}
	keys := []string{s.balanceKey(owner), s.balanceVersionKey(owner)}
	stored, err := s.client.Eval(ctx, setBalanceIfVersion, keys, data, version, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to set balance: %w", err)
	}
	return stored == 1, nil
}

func (s *CacheService) InvalidateBalance(ctx context.Context, owner models.Owner) error {
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, s.balanceVersionKey(owner))
		pipe.Del(ctx, s.balanceKey(owner))
		return nil
	})
	return err
}

func (s *CacheService) Close() error {
	return s.client.Close()
}
