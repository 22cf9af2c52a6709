package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/gabzinnn/av-continua-sub000/internal/domain"
	redisinfra "github.com/gabzinnn/av-continua-sub000/internal/infra/redis"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestHandleStorePutGet(t *testing.T) {
	mr, client := newTestRedis(t)
	store := redisinfra.NewHandleStore(client, time.Hour)
	ctx := context.Background()

	h := domain.SessionHandle{Token: "tok", CandidateID: "cand", ResultID: "res", ExamID: "prova", IssuedAt: time.Unix(1700000000, 0).UTC()}
	if err := store.Put(ctx, h); err != nil {
		t.Fatalf("put: %v", err)
	}
	if !mr.Exists("sessao:token:tok") || !mr.Exists("sessao:resultado:res") {
		t.Fatalf("expected both the token key and the reverse key")
	}

	got, err := store.Get(ctx, "tok")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ResultID != "res" || got.CandidateID != "cand" {
		t.Fatalf("wrong handle: %+v", got)
	}
}

func TestHandleStoreTTLExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	store := redisinfra.NewHandleStore(client, time.Minute)
	ctx := context.Background()

	if err := store.Put(ctx, domain.SessionHandle{Token: "tok", ResultID: "res"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, "tok"); !errors.Is(err, domain.ErrHandleNotFound) {
		t.Fatalf("expired handle: got %v", err)
	}
}

func TestHandleStoreDeleteByResult(t *testing.T) {
	mr, client := newTestRedis(t)
	store := redisinfra.NewHandleStore(client, time.Hour)
	ctx := context.Background()

	if err := store.Put(ctx, domain.SessionHandle{Token: "tok", ResultID: "res"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.DeleteByResult(ctx, "res"); err != nil {
		t.Fatalf("delete by result: %v", err)
	}
	if mr.Exists("sessao:token:tok") || mr.Exists("sessao:resultado:res") {
		t.Fatalf("keys survived deletion")
	}

	// Deleting a result that has no handle is a no-op.
	if err := store.DeleteByResult(ctx, "outro"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestHandleStoreDeleteClearsReverseKey(t *testing.T) {
	mr, client := newTestRedis(t)
	store := redisinfra.NewHandleStore(client, time.Hour)
	ctx := context.Background()

	if err := store.Put(ctx, domain.SessionHandle{Token: "tok", ResultID: "res"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Delete(ctx, "tok"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("sessao:resultado:res") {
		t.Fatalf("reverse key survived token deletion")
	}
	if err := store.Delete(ctx, "tok"); err != nil {
		t.Fatalf("double delete: %v", err)
	}
}
