package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/gabzinnn/av-continua-sub000/internal/domain"
	"github.com/gabzinnn/av-continua-sub000/internal/infra/memory"
)

// ExamRepository caches exam definitions in Redis (JSON per exam) and falls back
// to a loader on cache miss. Cached as: SET prova:{examID} {json} with TTL.
// The active exam uses its own key so registration does not scan.
type ExamRepository struct {
	client *redis.Client
	loader memory.ExamLoader
	ttl    time.Duration
	sf     singleflight.Group
}

func NewExamRepository(client *redis.Client, loader memory.ExamLoader, ttl time.Duration) *ExamRepository {
	return &ExamRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
	}
}

func (r *ExamRepository) GetExam(ctx context.Context, examID string) (domain.Exam, error) {
	return r.cached(ctx, r.examKey(examID), func() (domain.Exam, error) {
		return r.loader.LoadExam(ctx, examID)
	})
}

func (r *ExamRepository) ActiveExam(ctx context.Context) (domain.Exam, error) {
	return r.cached(ctx, r.activeKey(), func() (domain.Exam, error) {
		return r.loader.LoadActiveExam(ctx)
	})
}

func (r *ExamRepository) cached(ctx context.Context, key string, load func() (domain.Exam, error)) (domain.Exam, error) {
	if exam, ok := r.fromCache(ctx, key); ok {
		return exam, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if exam, ok := r.fromCache(ctx, key); ok {
			return exam, nil
		}
		exam, err := load()
		if err != nil {
			return domain.Exam{}, err
		}
		data, err := json.Marshal(exam)
		if err != nil {
			return domain.Exam{}, fmt.Errorf("marshal exam: %w", err)
		}
		_ = r.client.Set(ctx, key, data, r.ttlWithJitter()).Err()
		return exam, nil
	})
	if err != nil {
		return domain.Exam{}, err
	}
	return result.(domain.Exam), nil
}

func (r *ExamRepository) fromCache(ctx context.Context, key string) (domain.Exam, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil || len(raw) == 0 {
		return domain.Exam{}, false
	}
	var exam domain.Exam
	if err := json.Unmarshal(raw, &exam); err != nil {
		return domain.Exam{}, false
	}
	return exam, true
}

func (r *ExamRepository) examKey(examID string) string {
	return "prova:" + examID
}

func (r *ExamRepository) activeKey() string {
	return "prova:ativa"
}

func (r *ExamRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// The global source is safe under concurrent singleflight fills.
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
