package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leadflow/leadflow/pkg/models"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix    = "leadflow:consent:"
	fieldOptedIn      = "opted_in"
	fieldOptedOut     = "opted_out"
	fieldMethod       = "method"
	fieldUpdatedAt    = "updated_at"
	fieldLastInbound  = "last_inbound_at"
	redisPingTimeout  = 5 * time.Second
	redisTimestampFmt = time.RFC3339Nano
)

// RedisStore keeps each consent record in a hash.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	store := NewRedisStoreFromClient(client)

	if err := store.HealthCheck(ctx); err != nil {
		_ = client.Close()

		return nil, err
	}

	return store, nil
}

func NewRedisStoreFromClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(phone string) string {
	return redisKeyPrefix + phone
}

func (s *RedisStore) Get(ctx context.Context, phone string) (*models.ConsentRecord, error) {
	values, err := s.client.HGetAll(ctx, s.key(phone)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrConsentNotFound
		}

		return nil, fmt.Errorf("failed to read consent for %s: %w", phone, err)
	}

	if len(values) == 0 {
		return nil, ErrConsentNotFound
	}

	record := &models.ConsentRecord{
		Phone:    phone,
		OptedIn:  values[fieldOptedIn] == "1",
		OptedOut: values[fieldOptedOut] == "1",
		Method:   values[fieldMethod],
	}

	if ts, ok := values[fieldUpdatedAt]; ok {
		record.UpdatedAt, _ = time.Parse(redisTimestampFmt, ts)
	}

	if ts, ok := values[fieldLastInbound]; ok {
		if at, err := time.Parse(redisTimestampFmt, ts); err == nil {
			record.LastInboundAt = &at
		}
	}

	return record, nil
}

func (s *RedisStore) SetConsent(ctx context.Context, phone string, optedIn bool, method string, at time.Time) error {
	err := s.client.HSet(ctx, s.key(phone),
		fieldOptedIn, boolFlag(optedIn),
		fieldOptedOut, boolFlag(!optedIn),
		fieldMethod, method,
		fieldUpdatedAt, at.UTC().Format(redisTimestampFmt),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to save consent for %s: %w", phone, err)
	}

	return nil
}

func (s *RedisStore) SetLastInbound(ctx context.Context, phone string, at time.Time) error {
	err := s.client.HSet(ctx, s.key(phone), fieldLastInbound, at.UTC().Format(redisTimestampFmt)).Err()
	if err != nil {
		return fmt.Errorf("failed to save inbound time for %s: %w", phone, err)
	}

	return nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func boolFlag(v bool) string {
	if v {
		return "1"
	}

	return "0"
}
