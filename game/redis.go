package game

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	sessionKeyPrefix = "spark:session:"
	favoritesKey     = "spark:favorites"

	// sessionTTL bounds how long a concluded session stays summarizable.
	sessionTTL = 30 * 24 * time.Hour
)

// DialRedis connects with exponential backoff and verifies the connection
// with a ping before handing the client out.
func DialRedis(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	b := backoff.NewExponentialBackOff()
	err := backoff.Retry(
		func() error {
			if _, err := client.Ping(ctx).Result(); err != nil {
				logrus.Warnf("redis connection failed: %v, retrying...", err)
				return err
			}
			return nil
		},
		backoff.WithMaxRetries(b, 5),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	logrus.Infof("connected to redis at %s", addr)
	return client, nil
}

// RedisStore keeps each session as a JSON value under a prefixed key, so
// several nodes can share one game state.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func (r *RedisStore) Load(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Result()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get session %s: %v", ErrPersistence, id, err)
	}

	var s Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("%w: unmarshal session %s: %v", ErrPersistence, id, err)
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("%w: marshal session %s: %v", ErrPersistence, s.SessionID, err)
	}
	if err := r.client.Set(ctx, sessionKey(s.SessionID), data, sessionTTL).Err(); err != nil {
		return fmt.Errorf("%w: set session %s: %v", ErrPersistence, s.SessionID, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("%w: delete session %s: %v", ErrPersistence, id, err)
	}
	return nil
}

// RedisFavorites stores the favorite set as a redis set, shared across
// nodes. No expiry.
type RedisFavorites struct {
	client *redis.Client
}

func NewRedisFavorites(client *redis.Client) *RedisFavorites {
	return &RedisFavorites{client: client}
}

func (r *RedisFavorites) Add(ctx context.Context, cardID string) (int, error) {
	if err := r.client.SAdd(ctx, favoritesKey, cardID).Err(); err != nil {
		return 0, fmt.Errorf("%w: add favorite %s: %v", ErrPersistence, cardID, err)
	}
	return r.count(ctx)
}

func (r *RedisFavorites) Remove(ctx context.Context, cardID string) (int, error) {
	if err := r.client.SRem(ctx, favoritesKey, cardID).Err(); err != nil {
		return 0, fmt.Errorf("%w: remove favorite %s: %v", ErrPersistence, cardID, err)
	}
	return r.count(ctx)
}

func (r *RedisFavorites) All(ctx context.Context) (map[string]bool, error) {
	members, err := r.client.SMembers(ctx, favoritesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list favorites: %v", ErrPersistence, err)
	}
	out := make(map[string]bool, len(members))
	for _, id := range members {
		out[id] = true
	}
	return out, nil
}

func (r *RedisFavorites) count(ctx context.Context) (int, error) {
	n, err := r.client.SCard(ctx, favoritesKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: count favorites: %v", ErrPersistence, err)
	}
	return int(n), nil
}
