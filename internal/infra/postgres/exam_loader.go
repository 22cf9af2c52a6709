package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/gabzinnn/av-continua-sub000/internal/domain"
)

// ExamLoader loads exam-definition JSONB from Postgres.
type ExamLoader struct {
	pool *pgxpool.Pool
}

func NewExamLoader(pool *pgxpool.Pool) *ExamLoader {
	return &ExamLoader{pool: pool}
}

func (l *ExamLoader) LoadExam(ctx context.Context, examID string) (domain.Exam, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM provas WHERE id=$1`, examID).Scan(&raw)
	if err == pgx.ErrNoRows {
		return domain.Exam{}, domain.ErrExamNotFound
	}
	if err != nil {
		return domain.Exam{}, fmt.Errorf("load exam: %w", err)
	}
	return unmarshalExam(raw)
}

// LoadActiveExam returns the most recently published exam.
func (l *ExamLoader) LoadActiveExam(ctx context.Context) (domain.Exam, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx,
		`SELECT data FROM provas WHERE status=$1 ORDER BY criada_em DESC LIMIT 1`,
		string(domain.ExamPublished)).Scan(&raw)
	if err == pgx.ErrNoRows {
		return domain.Exam{}, domain.ErrNoActiveExam
	}
	if err != nil {
		return domain.Exam{}, fmt.Errorf("load active exam: %w", err)
	}
	return unmarshalExam(raw)
}

func unmarshalExam(raw []byte) (domain.Exam, error) {
	var exam domain.Exam
	if err := json.Unmarshal(raw, &exam); err != nil {
		return domain.Exam{}, fmt.Errorf("unmarshal exam: %w", err)
	}
	return exam, nil
}
