package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "minishop:session:"

// RedisStore keeps sessions as JSON values with a sliding TTL. Updates use
// WATCH/MULTI/EXEC so a concurrent writer turns into ErrVersionConflict.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// NewRedisClient builds the client used by NewRedisStore.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
}

func (s *RedisStore) Create(ctx context.Context, d *Data) error {
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	d.Version = 1

	val, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(d.ID), val, s.ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Data, error) {
	key := s.key(id)

	val, err := s.client.GetEx(ctx, key, s.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var d Data
	if err := json.Unmarshal(val, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *RedisStore) Update(ctx context.Context, d *Data) error {
	key := s.key(d.ID)

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var stored Data
		if err := json.Unmarshal(val, &stored); err != nil {
			return err
		}
		if stored.Version != d.Version {
			return ErrVersionConflict
		}

		next := d.Clone()
		next.Version++
		next.UpdatedAt = time.Now().UTC()

		newVal, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, s.ttl)
			return nil
		})
		if err != nil {
			return err
		}

		d.Version = next.Version
		d.UpdatedAt = next.UpdatedAt
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	return err
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(id string) string {
	return keyPrefix + id
}
