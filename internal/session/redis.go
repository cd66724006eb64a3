package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores sessions as JSON values whose key TTL is the session lifetime.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return NewRedisWithPrefix(client, ttl, "rollcall:session:")
}

// NewRedisWithPrefix keeps its tokens under prefix, apart from admin sessions.
func NewRedisWithPrefix(client *redis.Client, ttl time.Duration, prefix string) *Redis {
	return &Redis{client: client, ttl: ttl, prefix: prefix}
}

func (r *Redis) Create(ctx context.Context, username, role string) (Session, error) {
	token, err := NewToken()
	if err != nil {
		return Session{}, err
	}
	s := Session{Token: token, Username: username, Role: role, ExpiresAt: time.Now().Add(r.ttl)}
	data, err := json.Marshal(s)
	if err != nil {
		return Session{}, err
	}
	if err := r.client.Set(ctx, r.prefix+token, data, r.ttl).Err(); err != nil {
		return Session{}, err
	}
	return s, nil
}

func (r *Redis) Verify(ctx context.Context, token string) (Session, error) {
	data, err := r.client.Get(ctx, r.prefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrInvalid
		}
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, err
	}
	if !time.Now().Before(s.ExpiresAt) {
		r.client.Del(ctx, r.prefix+token)
		return Session{}, ErrInvalid
	}
	return s, nil
}

func (r *Redis) Delete(ctx context.Context, token string) error {
	return r.client.Del(ctx, r.prefix+token).Err()
}
