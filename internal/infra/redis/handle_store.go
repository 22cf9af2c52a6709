package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gabzinnn/av-continua-sub000/internal/domain"
)

// HandleStore keeps session handles in Redis with a TTL. A reverse key per result
// lets finalize clear the handle without knowing the token.
// Keys: sessao:token:{token} -> handle JSON, sessao:resultado:{resultID} -> token.
type HandleStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewHandleStore(client *redis.Client, ttl time.Duration) *HandleStore {
	return &HandleStore{client: client, ttl: ttl}
}

func (s *HandleStore) Put(ctx context.Context, h domain.SessionHandle) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal handle: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.tokenKey(h.Token), data, s.ttl)
	pipe.Set(ctx, s.resultKey(h.ResultID), h.Token, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store handle: %w", err)
	}
	return nil
}

func (s *HandleStore) Get(ctx context.Context, token string) (domain.SessionHandle, error) {
	raw, err := s.client.Get(ctx, s.tokenKey(token)).Bytes()
	if err == redis.Nil {
		return domain.SessionHandle{}, domain.ErrHandleNotFound
	}
	if err != nil {
		return domain.SessionHandle{}, fmt.Errorf("load handle: %w", err)
	}
	var h domain.SessionHandle
	if err := json.Unmarshal(raw, &h); err != nil {
		return domain.SessionHandle{}, fmt.Errorf("unmarshal handle: %w", err)
	}
	return h, nil
}

func (s *HandleStore) Delete(ctx context.Context, token string) error {
	h, err := s.Get(ctx, token)
	if err == domain.ErrHandleNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	return s.client.Del(ctx, s.tokenKey(token), s.resultKey(h.ResultID)).Err()
}

func (s *HandleStore) DeleteByResult(ctx context.Context, resultID string) error {
	token, err := s.client.Get(ctx, s.resultKey(resultID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve handle for result: %w", err)
	}
	return s.client.Del(ctx, s.tokenKey(token), s.resultKey(resultID)).Err()
}

func (s *HandleStore) tokenKey(token string) string {
	return "sessao:token:" + token
}

func (s *HandleStore) resultKey(resultID string) string {
	return "sessao:resultado:" + resultID
}
