package app

import (
	"context"

	"github.com/gabzinnn/av-continua-sub000/internal/domain"
)

// Store abstracts the relational rows behind the engine and the pipeline
// (Postgres in production, in-memory for tests and dev mode).
type Store interface {
	CreateCandidate(ctx context.Context, c *domain.Candidate) error
	GetCandidate(ctx context.Context, id string) (domain.Candidate, error)
	UpdateCandidate(ctx context.Context, c domain.Candidate) error
	// DeleteCandidate removes the candidate and cascades over answers, results,
	// and stage records.
	DeleteCandidate(ctx context.Context, id string) error

	CreateResult(ctx context.Context, r *domain.ExamResult) error
	GetResult(ctx context.Context, id string) (domain.ExamResult, error)
	UpdateResult(ctx context.Context, r domain.ExamResult) error
	ResultByCandidate(ctx context.Context, candidateID string) (domain.ExamResult, error)

	// UpsertAnswer is last-write-wins keyed by (resultID, questionID).
	UpsertAnswer(ctx context.Context, a domain.Answer) error
	ListAnswers(ctx context.Context, resultID string) ([]domain.Answer, error)

	StageRecords(ctx context.Context, candidateID string) (domain.StageRecords, error)
	PutDynamicGrade(ctx context.Context, g domain.DynamicGrade) error
	PutInterviewGrade(ctx context.Context, g domain.InterviewGrade) error
	PutTrainingGrade(ctx context.Context, g domain.TrainingGrade) error
}

// ExamRepository loads exam definitions (from cache/backing store).
type ExamRepository interface {
	GetExam(ctx context.Context, examID string) (domain.Exam, error)
	// ActiveExam returns the published exam currently open for registration.
	ActiveExam(ctx context.Context) (domain.Exam, error)
}

// HandleStore keeps session handles alive for the duration of a session.
type HandleStore interface {
	Put(ctx context.Context, h domain.SessionHandle) error
	Get(ctx context.Context, token string) (domain.SessionHandle, error)
	Delete(ctx context.Context, token string) error
	// DeleteByResult clears whatever handle points at the result; used at finalize.
	DeleteByResult(ctx context.Context, resultID string) error
}
