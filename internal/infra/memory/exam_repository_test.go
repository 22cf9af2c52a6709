package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gabzinnn/av-continua-sub000/internal/domain"
	"github.com/gabzinnn/av-continua-sub000/internal/infra/memory"
)

// countingLoader counts backend hits so the cache tests can assert them.
type countingLoader struct {
	mu    sync.Mutex
	loads int
	exam  domain.Exam
}

func (l *countingLoader) LoadExam(_ context.Context, examID string) (domain.Exam, error) {
	l.mu.Lock()
	l.loads++
	l.mu.Unlock()
	if examID != l.exam.ID {
		return domain.Exam{}, domain.ErrExamNotFound
	}
	return l.exam, nil
}

func (l *countingLoader) LoadActiveExam(_ context.Context) (domain.Exam, error) {
	l.mu.Lock()
	l.loads++
	l.mu.Unlock()
	if l.exam.Status != domain.ExamPublished {
		return domain.Exam{}, domain.ErrNoActiveExam
	}
	return l.exam, nil
}

func (l *countingLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}

func TestExamRepositoryCachesLoads(t *testing.T) {
	loader := &countingLoader{exam: domain.Exam{ID: "prova-1", Status: domain.ExamPublished}}
	repo := memory.NewExamRepository(loader, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		exam, err := repo.GetExam(ctx, "prova-1")
		if err != nil {
			t.Fatalf("get exam: %v", err)
		}
		if exam.ID != "prova-1" {
			t.Fatalf("wrong exam: %+v", exam)
		}
	}
	if got := loader.count(); got != 1 {
		t.Fatalf("backend hit %d times, want 1", got)
	}
}

func TestExamRepositoryActiveExamCachedSeparately(t *testing.T) {
	loader := &countingLoader{exam: domain.Exam{ID: "prova-1", Status: domain.ExamPublished}}
	repo := memory.NewExamRepository(loader, time.Minute)
	ctx := context.Background()

	if _, err := repo.ActiveExam(ctx); err != nil {
		t.Fatalf("active exam: %v", err)
	}
	if _, err := repo.ActiveExam(ctx); err != nil {
		t.Fatalf("active exam: %v", err)
	}
	if _, err := repo.GetExam(ctx, "prova-1"); err != nil {
		t.Fatalf("get exam: %v", err)
	}
	// One load for the active slot, one for the per-id slot.
	if got := loader.count(); got != 2 {
		t.Fatalf("backend hit %d times, want 2", got)
	}
}

func TestExamRepositoryConcurrentFills(t *testing.T) {
	loader := &countingLoader{exam: domain.Exam{ID: "prova-1", Status: domain.ExamPublished}}
	repo := memory.NewExamRepository(loader, time.Minute)
	ctx := context.Background()

	// Distinct keys fill in parallel; the jitter source must tolerate that.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.GetExam(ctx, "prova-1")
			_, _ = repo.ActiveExam(ctx)
		}()
	}
	wg.Wait()

	// Both slots filled once despite the contention.
	if got := loader.count(); got != 2 {
		t.Fatalf("backend hit %d times, want 2", got)
	}
}

func TestExamRepositoryErrorsAreNotCached(t *testing.T) {
	loader := &countingLoader{exam: domain.Exam{ID: "prova-1", Status: domain.ExamDraft}}
	repo := memory.NewExamRepository(loader, time.Minute)
	ctx := context.Background()

	if _, err := repo.ActiveExam(ctx); !errors.Is(err, domain.ErrNoActiveExam) {
		t.Fatalf("got %v, want ErrNoActiveExam", err)
	}
	loader.mu.Lock()
	loader.exam.Status = domain.ExamPublished
	loader.mu.Unlock()
	if _, err := repo.ActiveExam(ctx); err != nil {
		t.Fatalf("publish should be seen immediately: %v", err)
	}
}
