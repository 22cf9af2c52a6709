package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gabzinnn/av-continua-sub000/internal/domain"
)

// activeKey indexes the currently-open exam in the cache alongside per-id entries.
const activeKey = "__active__"

// ExamLoader fetches exam definitions from a backing store.
type ExamLoader interface {
	LoadExam(ctx context.Context, examID string) (domain.Exam, error)
	// LoadActiveExam returns the published exam open for registration.
	LoadActiveExam(ctx context.Context) (domain.Exam, error)
}

// ExamRepository caches exam definitions with TTL to avoid repeated DB hits.
type ExamRepository struct {
	loader ExamLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	cache map[string]cachedExam
}

type cachedExam struct {
	exam      domain.Exam
	expiresAt time.Time
}

func NewExamRepository(loader ExamLoader, ttl time.Duration) *ExamRepository {
	return &ExamRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		cache:  make(map[string]cachedExam),
	}
}

func (r *ExamRepository) GetExam(ctx context.Context, examID string) (domain.Exam, error) {
	return r.cached(examID, func() (domain.Exam, error) {
		return r.loader.LoadExam(ctx, examID)
	})
}

func (r *ExamRepository) ActiveExam(ctx context.Context) (domain.Exam, error) {
	return r.cached(activeKey, func() (domain.Exam, error) {
		return r.loader.LoadActiveExam(ctx)
	})
}

func (r *ExamRepository) cached(key string, load func() (domain.Exam, error)) (domain.Exam, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[key]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.exam, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[key]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.exam, nil
		}
		r.mu.RUnlock()

		exam, err := load()
		if err != nil {
			return domain.Exam{}, err
		}

		r.mu.Lock()
		r.cache[key] = cachedExam{exam: exam, expiresAt: now.Add(r.ttlWithJitter())}
		r.mu.Unlock()
		return exam, nil
	})
	if err != nil {
		return domain.Exam{}, err
	}
	return result.(domain.Exam), nil
}

func (r *ExamRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations; the global source is safe
	// under concurrent singleflight fills
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(rand.Int63n(jitterMax+1))
}

// StaticExamLoader serves exams from an in-memory map (useful for tests/demos).
type StaticExamLoader struct {
	exams map[string]domain.Exam
}

func NewStaticExamLoader(exams map[string]domain.Exam) *StaticExamLoader {
	return &StaticExamLoader{exams: exams}
}

func (l *StaticExamLoader) LoadExam(_ context.Context, examID string) (domain.Exam, error) {
	if exam, ok := l.exams[examID]; ok {
		return exam, nil
	}
	return domain.Exam{}, domain.ErrExamNotFound
}

func (l *StaticExamLoader) LoadActiveExam(_ context.Context) (domain.Exam, error) {
	for _, exam := range l.exams {
		if exam.Status == domain.ExamPublished {
			return exam, nil
		}
	}
	return domain.Exam{}, domain.ErrNoActiveExam
}
