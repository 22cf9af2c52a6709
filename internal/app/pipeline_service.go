package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gabzinnn/av-continua-sub000/internal/domain"
)

// PipelineService tracks candidates through the four ordered evaluation stages.
// Grading and approving are decoupled: writing a grade never moves the stage
// pointer, only an explicit approval decision does.
type PipelineService struct {
	store Store
}

func NewPipelineService(store Store) *PipelineService {
	return &PipelineService{store: store}
}

// StageView is the derived display state of one stage.
type StageView struct {
	Stage  domain.Stage       `json:"stage"`
	Status domain.StageStatus `json:"status"`
}

// CandidateView joins the candidate row with its derived statuses and grades.
type CandidateView struct {
	Candidate domain.Candidate     `json:"candidate"`
	Overall   domain.OverallStatus `json:"overall"`
	Stages    []StageView          `json:"stages"`
	Result    *domain.ExamResult   `json:"result,omitempty"`
	Records   domain.StageRecords  `json:"records"`
	Progress  float64              `json:"progress"`
}

// View recomputes everything derivable for one candidate. Overall status is a pure
// function of the approval flags; the stored column is display cache only.
func (p *PipelineService) View(ctx context.Context, candidateID string) (CandidateView, error) {
	candidate, err := p.store.GetCandidate(ctx, candidateID)
	if err != nil {
		return CandidateView{}, err
	}
	result, records, err := p.loadFlags(ctx, candidateID)
	if err != nil {
		return CandidateView{}, err
	}
	approvals := domain.Approvals(result, records)
	view := CandidateView{
		Candidate: candidate,
		Overall:   domain.DeriveOverall(approvals, candidate.Withdrawn),
		Result:    result,
		Records:   records,
	}
	for stage := domain.StageExam; stage <= domain.StageTraining; stage++ {
		view.Stages = append(view.Stages, StageView{
			Stage:  stage,
			Status: domain.DeriveStageStatus(stage, candidate.Stage, approvals, records),
		})
	}
	if records.Training != nil {
		view.Progress = records.Training.Progress()
	}
	return view, nil
}

// AssignConceptGrade writes the qualitative grade for stage 2 or 3. The stage
// record is created lazily on the first grade.
func (p *PipelineService) AssignConceptGrade(ctx context.Context, candidateID string, stage domain.Stage, grade domain.ConceptGrade) error {
	if stage != domain.StageDynamic && stage != domain.StageInterview {
		return fmt.Errorf("%w: stage %d takes no concept grade", domain.ErrValidation, stage)
	}
	if !grade.Valid() {
		return fmt.Errorf("%w: unknown grade %q", domain.ErrValidation, grade)
	}
	candidate, err := p.eligible(ctx, candidateID, stage)
	if err != nil {
		return err
	}
	records, err := p.store.StageRecords(ctx, candidate.ID)
	if err != nil {
		return err
	}
	g := grade
	switch stage {
	case domain.StageDynamic:
		record := domain.DynamicGrade{CandidateID: candidate.ID}
		if records.Dynamic != nil {
			record = *records.Dynamic
		}
		record.Grade = &g
		return p.store.PutDynamicGrade(ctx, record)
	default:
		record := domain.InterviewGrade{CandidateID: candidate.ID}
		if records.Interview != nil {
			record = *records.Interview
		}
		record.Grade = &g
		return p.store.PutInterviewGrade(ctx, record)
	}
}

// TrainingInput carries the stage-4 grade components; nil fields are left as they
// are, so partial grading never errors.
type TrainingInput struct {
	ArticleGrade        *float64             `json:"article_grade"`
	ArticlePresentation *float64             `json:"article_presentation"`
	CaseGrade           *domain.ConceptGrade `json:"case_grade"`
}

// SaveTrainingGrades merges the provided components into the stage-4 record.
func (p *PipelineService) SaveTrainingGrades(ctx context.Context, candidateID string, in TrainingInput) error {
	if in.ArticleGrade != nil && (*in.ArticleGrade < 0 || *in.ArticleGrade > 5) {
		return fmt.Errorf("%w: article grade must be between 0 and 5", domain.ErrValidation)
	}
	if in.ArticlePresentation != nil && (*in.ArticlePresentation < 0 || *in.ArticlePresentation > 5) {
		return fmt.Errorf("%w: presentation grade must be between 0 and 5", domain.ErrValidation)
	}
	if in.CaseGrade != nil && !in.CaseGrade.Valid() {
		return fmt.Errorf("%w: unknown case grade %q", domain.ErrValidation, *in.CaseGrade)
	}
	candidate, err := p.eligible(ctx, candidateID, domain.StageTraining)
	if err != nil {
		return err
	}
	records, err := p.store.StageRecords(ctx, candidate.ID)
	if err != nil {
		return err
	}
	record := domain.TrainingGrade{CandidateID: candidate.ID}
	if records.Training != nil {
		record = *records.Training
	}
	if in.ArticleGrade != nil {
		record.ArticleGrade = in.ArticleGrade
	}
	if in.ArticlePresentation != nil {
		record.ArticlePresentation = in.ArticlePresentation
	}
	if in.CaseGrade != nil {
		record.CaseGrade = in.CaseGrade
	}
	return p.store.PutTrainingGrade(ctx, record)
}

// DecideApproval records the explicit human decision for a stage. Approving the
// candidate's current stage advances the pointer (clamped at stage 4, which flips
// the overall status to approved). A rejection anywhere makes the candidate
// REPROVADO without moving the pointer, so a later re-approval can correct it.
func (p *PipelineService) DecideApproval(ctx context.Context, candidateID string, stage domain.Stage, approved bool) error {
	candidate, err := p.eligible(ctx, candidateID, stage)
	if err != nil {
		return err
	}

	decision := domain.Rejected
	if approved {
		decision = domain.Approved
	}
	if err := p.writeDecision(ctx, candidate.ID, stage, decision); err != nil {
		return err
	}

	if approved && stage == candidate.Stage && candidate.Stage < domain.StageTraining {
		candidate.Stage++
	}
	return p.refreshCandidate(ctx, candidate)
}

// writeDecision stores the tri-state flag where the stage keeps it: the result row
// for the exam stage, the stage record otherwise.
func (p *PipelineService) writeDecision(ctx context.Context, candidateID string, stage domain.Stage, d domain.Decision) error {
	records, err := p.store.StageRecords(ctx, candidateID)
	if err != nil {
		return err
	}
	switch stage {
	case domain.StageExam:
		result, err := p.store.ResultByCandidate(ctx, candidateID)
		if err != nil {
			return err
		}
		result.Passed = d
		return p.store.UpdateResult(ctx, result)
	case domain.StageDynamic:
		record := domain.DynamicGrade{CandidateID: candidateID}
		if records.Dynamic != nil {
			record = *records.Dynamic
		}
		record.Approval = d
		return p.store.PutDynamicGrade(ctx, record)
	case domain.StageInterview:
		record := domain.InterviewGrade{CandidateID: candidateID}
		if records.Interview != nil {
			record = *records.Interview
		}
		record.Approval = d
		return p.store.PutInterviewGrade(ctx, record)
	case domain.StageTraining:
		record := domain.TrainingGrade{CandidateID: candidateID}
		if records.Training != nil {
			record = *records.Training
		}
		record.Approval = d
		return p.store.PutTrainingGrade(ctx, record)
	default:
		return fmt.Errorf("%w: unknown stage %d", domain.ErrValidation, stage)
	}
}

// MarkWithdrawn flags an explicit withdrawal; DESISTENTE is terminal.
func (p *PipelineService) MarkWithdrawn(ctx context.Context, candidateID string) error {
	candidate, err := p.store.GetCandidate(ctx, candidateID)
	if err != nil {
		return err
	}
	if candidate.Status == domain.StatusApproved {
		return domain.ErrCandidateTerminal
	}
	candidate.Withdrawn = true
	return p.refreshCandidate(ctx, candidate)
}

// SetObservation updates the free-text note on the candidate.
func (p *PipelineService) SetObservation(ctx context.Context, candidateID, text string) error {
	candidate, err := p.store.GetCandidate(ctx, candidateID)
	if err != nil {
		return err
	}
	candidate.Observation = text
	return p.store.UpdateCandidate(ctx, candidate)
}

// Delete removes the candidate and every dependent row. Hard and irreversible;
// the confirmation step lives in the caller.
func (p *PipelineService) Delete(ctx context.Context, candidateID string) error {
	if _, err := p.store.GetCandidate(ctx, candidateID); err != nil {
		return err
	}
	return p.store.DeleteCandidate(ctx, candidateID)
}

// eligible loads the candidate and checks the stage gating rules: terminal
// candidates take no further actions, locked stages take none either.
func (p *PipelineService) eligible(ctx context.Context, candidateID string, stage domain.Stage) (domain.Candidate, error) {
	if !stage.Valid() {
		return domain.Candidate{}, fmt.Errorf("%w: unknown stage %d", domain.ErrValidation, stage)
	}
	candidate, err := p.store.GetCandidate(ctx, candidateID)
	if err != nil {
		return domain.Candidate{}, err
	}
	if candidate.Withdrawn {
		return domain.Candidate{}, domain.ErrCandidateTerminal
	}
	result, records, err := p.loadFlags(ctx, candidateID)
	if err != nil {
		return domain.Candidate{}, err
	}
	if domain.DeriveOverall(domain.Approvals(result, records), candidate.Withdrawn) == domain.StatusApproved {
		return domain.Candidate{}, domain.ErrCandidateTerminal
	}
	if stage > candidate.Stage {
		return domain.Candidate{}, domain.ErrStageLocked
	}
	return candidate, nil
}

// refreshCandidate recomputes the derived overall status and persists the row.
func (p *PipelineService) refreshCandidate(ctx context.Context, candidate domain.Candidate) error {
	result, records, err := p.loadFlags(ctx, candidate.ID)
	if err != nil {
		return err
	}
	candidate.Status = domain.DeriveOverall(domain.Approvals(result, records), candidate.Withdrawn)
	return p.store.UpdateCandidate(ctx, candidate)
}

func (p *PipelineService) loadFlags(ctx context.Context, candidateID string) (*domain.ExamResult, domain.StageRecords, error) {
	records, err := p.store.StageRecords(ctx, candidateID)
	if err != nil {
		return nil, domain.StageRecords{}, err
	}
	result, err := p.store.ResultByCandidate(ctx, candidateID)
	if err != nil {
		if errors.Is(err, domain.ErrResultNotFound) {
			return nil, records, nil
		}
		return nil, domain.StageRecords{}, err
	}
	return &result, records, nil
}
