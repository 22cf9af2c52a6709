package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/gabzinnn/av-continua-sub000/internal/domain"
)

// Store is the bun-backed implementation of app.Store.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

type candidateRow struct {
	bun.BaseModel `bun:"table:candidatos,alias:c"`

	ID          string    `bun:"id,pk"`
	Name        string    `bun:"nome"`
	Email       string    `bun:"email"`
	Registry    string    `bun:"matricula"`
	Course      string    `bun:"curso"`
	Term        string    `bun:"periodo"`
	Stage       int       `bun:"etapa_atual"`
	Status      string    `bun:"status_geral"`
	Withdrawn   bool      `bun:"desistente"`
	Observation string    `bun:"observacao"`
	CreatedAt   time.Time `bun:"created_at,nullzero"`
}

type resultRow struct {
	bun.BaseModel `bun:"table:resultados,alias:r"`

	ID           string     `bun:"id,pk"`
	CandidateID  string     `bun:"candidato_id"`
	ExamID       string     `bun:"prova_id"`
	Status       string     `bun:"status"`
	StartedAt    *time.Time `bun:"iniciado_em"`
	FinishedAt   *time.Time `bun:"finalizado_em"`
	FinishReason string     `bun:"motivo_finalizacao"`
	TimeSpentSec int        `bun:"tempo_gasto"`
	FinalScore   *float64   `bun:"nota_final"`
	Passed       *bool      `bun:"aprovado_prova"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:respostas,alias:a"`

	ResultID      string  `bun:"resultado_id,pk"`
	QuestionID    string  `bun:"questao_id,pk"`
	AlternativeID *string `bun:"alternativa_id"`
	Text          *string `bun:"resposta_texto"`
	Corrected     bool    `bun:"corrigida"`
	Points        float64 `bun:"pontuacao"`
}

type dynamicRow struct {
	bun.BaseModel `bun:"table:notas_dinamica,alias:nd"`

	CandidateID string  `bun:"candidato_id,pk"`
	Grade       *string `bun:"nota"`
	Approval    *bool   `bun:"aprovado"`
}

type interviewRow struct {
	bun.BaseModel `bun:"table:notas_entrevista,alias:ne"`

	CandidateID string  `bun:"candidato_id,pk"`
	Grade       *string `bun:"nota"`
	Approval    *bool   `bun:"aprovado"`
}

type trainingRow struct {
	bun.BaseModel `bun:"table:notas_capacitacao,alias:nc"`

	CandidateID         string   `bun:"candidato_id,pk"`
	ArticleGrade        *float64 `bun:"nota_artigo"`
	ArticlePresentation *float64 `bun:"apresentacao_artigo"`
	CaseGrade           *string  `bun:"nota_case"`
	Approval            *bool    `bun:"aprovado"`
}

func (s *Store) CreateCandidate(ctx context.Context, c *domain.Candidate) error {
	row := candidateToRow(*c)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert candidate: %w", err)
	}
	return nil
}

func (s *Store) GetCandidate(ctx context.Context, id string) (domain.Candidate, error) {
	row := candidateRow{}
	err := s.db.NewSelect().Model(&row).Where("c.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Candidate{}, domain.ErrCandidateNotFound
	}
	if err != nil {
		return domain.Candidate{}, fmt.Errorf("select candidate: %w", err)
	}
	return rowToCandidate(row), nil
}

func (s *Store) UpdateCandidate(ctx context.Context, c domain.Candidate) error {
	row := candidateToRow(c)
	res, err := s.db.NewUpdate().Model(&row).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update candidate: %w", err)
	}
	return requireAffected(res, domain.ErrCandidateNotFound)
}

// DeleteCandidate cascades over answers, results, and stage rows in one
// transaction.
func (s *Store) DeleteCandidate(ctx context.Context, id string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*answerRow)(nil)).
			Where("resultado_id IN (SELECT id FROM resultados WHERE candidato_id = ?)", id).
			Exec(ctx); err != nil {
			return fmt.Errorf("delete answers: %w", err)
		}
		if _, err := tx.NewDelete().Model((*resultRow)(nil)).Where("candidato_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("delete results: %w", err)
		}
		if _, err := tx.NewDelete().Model((*dynamicRow)(nil)).Where("candidato_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("delete dynamic grades: %w", err)
		}
		if _, err := tx.NewDelete().Model((*interviewRow)(nil)).Where("candidato_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("delete interview grades: %w", err)
		}
		if _, err := tx.NewDelete().Model((*trainingRow)(nil)).Where("candidato_id = ?", id).Exec(ctx); err != nil {
			return fmt.Errorf("delete training grades: %w", err)
		}
		res, err := tx.NewDelete().Model((*candidateRow)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete candidate: %w", err)
		}
		return requireAffected(res, domain.ErrCandidateNotFound)
	})
}

func (s *Store) CreateResult(ctx context.Context, r *domain.ExamResult) error {
	row := resultToRow(*r)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *Store) GetResult(ctx context.Context, id string) (domain.ExamResult, error) {
	row := resultRow{}
	err := s.db.NewSelect().Model(&row).Where("r.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ExamResult{}, domain.ErrResultNotFound
	}
	if err != nil {
		return domain.ExamResult{}, fmt.Errorf("select result: %w", err)
	}
	return rowToResult(row), nil
}

func (s *Store) UpdateResult(ctx context.Context, r domain.ExamResult) error {
	row := resultToRow(r)
	res, err := s.db.NewUpdate().Model(&row).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update result: %w", err)
	}
	return requireAffected(res, domain.ErrResultNotFound)
}

func (s *Store) ResultByCandidate(ctx context.Context, candidateID string) (domain.ExamResult, error) {
	row := resultRow{}
	err := s.db.NewSelect().Model(&row).Where("r.candidato_id = ?", candidateID).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ExamResult{}, domain.ErrResultNotFound
	}
	if err != nil {
		return domain.ExamResult{}, fmt.Errorf("select result by candidate: %w", err)
	}
	return rowToResult(row), nil
}

// UpsertAnswer is last-write-wins on (resultado_id, questao_id).
func (s *Store) UpsertAnswer(ctx context.Context, a domain.Answer) error {
	row := answerRow{
		ResultID:      a.ResultID,
		QuestionID:    a.QuestionID,
		AlternativeID: a.AlternativeID,
		Text:          a.Text,
		Corrected:     a.Corrected,
		Points:        a.Points,
	}
	_, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (resultado_id, questao_id) DO UPDATE").
		Set("alternativa_id = EXCLUDED.alternativa_id").
		Set("resposta_texto = EXCLUDED.resposta_texto").
		Set("corrigida = EXCLUDED.corrigida").
		Set("pontuacao = EXCLUDED.pontuacao").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return nil
}

func (s *Store) ListAnswers(ctx context.Context, resultID string) ([]domain.Answer, error) {
	rows := []answerRow{}
	if err := s.db.NewSelect().Model(&rows).Where("a.resultado_id = ?", resultID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("select answers: %w", err)
	}
	out := make([]domain.Answer, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Answer{
			ResultID:      row.ResultID,
			QuestionID:    row.QuestionID,
			AlternativeID: row.AlternativeID,
			Text:          row.Text,
			Corrected:     row.Corrected,
			Points:        row.Points,
		})
	}
	return out, nil
}

func (s *Store) StageRecords(ctx context.Context, candidateID string) (domain.StageRecords, error) {
	records := domain.StageRecords{}

	dyn := dynamicRow{}
	err := s.db.NewSelect().Model(&dyn).Where("nd.candidato_id = ?", candidateID).Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return records, fmt.Errorf("select dynamic grade: %w", err)
	}
	if err == nil {
		g := domain.DynamicGrade{
			CandidateID: dyn.CandidateID,
			Grade:       conceptPtr(dyn.Grade),
			Approval:    domain.DecisionFromBool(dyn.Approval),
		}
		records.Dynamic = &g
	}

	itv := interviewRow{}
	err = s.db.NewSelect().Model(&itv).Where("ne.candidato_id = ?", candidateID).Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return records, fmt.Errorf("select interview grade: %w", err)
	}
	if err == nil {
		g := domain.InterviewGrade{
			CandidateID: itv.CandidateID,
			Grade:       conceptPtr(itv.Grade),
			Approval:    domain.DecisionFromBool(itv.Approval),
		}
		records.Interview = &g
	}

	trn := trainingRow{}
	err = s.db.NewSelect().Model(&trn).Where("nc.candidato_id = ?", candidateID).Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return records, fmt.Errorf("select training grade: %w", err)
	}
	if err == nil {
		g := domain.TrainingGrade{
			CandidateID:         trn.CandidateID,
			ArticleGrade:        trn.ArticleGrade,
			ArticlePresentation: trn.ArticlePresentation,
			CaseGrade:           conceptPtr(trn.CaseGrade),
			Approval:            domain.DecisionFromBool(trn.Approval),
		}
		records.Training = &g
	}

	return records, nil
}

func (s *Store) PutDynamicGrade(ctx context.Context, g domain.DynamicGrade) error {
	row := dynamicRow{
		CandidateID: g.CandidateID,
		Grade:       conceptStr(g.Grade),
		Approval:    g.Approval.BoolPtr(),
	}
	_, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (candidato_id) DO UPDATE").
		Set("nota = EXCLUDED.nota").
		Set("aprovado = EXCLUDED.aprovado").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert dynamic grade: %w", err)
	}
	return nil
}

func (s *Store) PutInterviewGrade(ctx context.Context, g domain.InterviewGrade) error {
	row := interviewRow{
		CandidateID: g.CandidateID,
		Grade:       conceptStr(g.Grade),
		Approval:    g.Approval.BoolPtr(),
	}
	_, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (candidato_id) DO UPDATE").
		Set("nota = EXCLUDED.nota").
		Set("aprovado = EXCLUDED.aprovado").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert interview grade: %w", err)
	}
	return nil
}

func (s *Store) PutTrainingGrade(ctx context.Context, g domain.TrainingGrade) error {
	row := trainingRow{
		CandidateID:         g.CandidateID,
		ArticleGrade:        g.ArticleGrade,
		ArticlePresentation: g.ArticlePresentation,
		CaseGrade:           conceptStr(g.CaseGrade),
		Approval:            g.Approval.BoolPtr(),
	}
	_, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (candidato_id) DO UPDATE").
		Set("nota_artigo = EXCLUDED.nota_artigo").
		Set("apresentacao_artigo = EXCLUDED.apresentacao_artigo").
		Set("nota_case = EXCLUDED.nota_case").
		Set("aprovado = EXCLUDED.aprovado").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert training grade: %w", err)
	}
	return nil
}

func candidateToRow(c domain.Candidate) candidateRow {
	return candidateRow{
		ID:          c.ID,
		Name:        c.Name,
		Email:       c.Email,
		Registry:    c.Registry,
		Course:      c.Course,
		Term:        c.Term,
		Stage:       int(c.Stage),
		Status:      string(c.Status),
		Withdrawn:   c.Withdrawn,
		Observation: c.Observation,
		CreatedAt:   c.CreatedAt,
	}
}

func rowToCandidate(row candidateRow) domain.Candidate {
	return domain.Candidate{
		ID:          row.ID,
		Name:        row.Name,
		Email:       row.Email,
		Registry:    row.Registry,
		Course:      row.Course,
		Term:        row.Term,
		Stage:       domain.Stage(row.Stage),
		Status:      domain.OverallStatus(row.Status),
		Withdrawn:   row.Withdrawn,
		Observation: row.Observation,
		CreatedAt:   row.CreatedAt,
	}
}

func resultToRow(r domain.ExamResult) resultRow {
	return resultRow{
		ID:           r.ID,
		CandidateID:  r.CandidateID,
		ExamID:       r.ExamID,
		Status:       string(r.Status),
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		FinishReason: string(r.FinishReason),
		TimeSpentSec: r.TimeSpentSec,
		FinalScore:   r.FinalScore,
		Passed:       r.Passed.BoolPtr(),
	}
}

func rowToResult(row resultRow) domain.ExamResult {
	return domain.ExamResult{
		ID:           row.ID,
		CandidateID:  row.CandidateID,
		ExamID:       row.ExamID,
		Status:       domain.ResultStatus(row.Status),
		StartedAt:    row.StartedAt,
		FinishedAt:   row.FinishedAt,
		FinishReason: domain.FinalizeReason(row.FinishReason),
		TimeSpentSec: row.TimeSpentSec,
		FinalScore:   row.FinalScore,
		Passed:       domain.DecisionFromBool(row.Passed),
	}
}

func conceptPtr(s *string) *domain.ConceptGrade {
	if s == nil {
		return nil
	}
	g := domain.ConceptGrade(*s)
	return &g
}

func conceptStr(g *domain.ConceptGrade) *string {
	if g == nil {
		return nil
	}
	s := string(*g)
	return &s
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
