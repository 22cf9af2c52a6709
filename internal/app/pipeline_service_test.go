package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gabzinnn/av-continua-sub000/internal/app"
	"github.com/gabzinnn/av-continua-sub000/internal/domain"
	"github.com/gabzinnn/av-continua-sub000/internal/infra/memory"
)

func newPipelineFixture(t *testing.T) (*app.PipelineService, *memory.Store, domain.Candidate) {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()

	candidate := domain.Candidate{
		ID:       "cand-1",
		Name:     "Joao Santos",
		Email:    "joao@exemplo.com",
		Registry: "20250001",
		Stage:    domain.StageExam,
		Status:   domain.StatusActive,
	}
	if err := store.CreateCandidate(ctx, &candidate); err != nil {
		t.Fatalf("seed candidate: %v", err)
	}
	result := domain.ExamResult{ID: "res-1", CandidateID: candidate.ID, ExamID: "prova-1", Status: domain.ResultPending}
	if err := store.CreateResult(ctx, &result); err != nil {
		t.Fatalf("seed result: %v", err)
	}
	return app.NewPipelineService(store), store, candidate
}

func approveThrough(t *testing.T, p *app.PipelineService, candidateID string, upTo domain.Stage) {
	t.Helper()
	for stage := domain.StageExam; stage <= upTo; stage++ {
		if err := p.DecideApproval(context.Background(), candidateID, stage, true); err != nil {
			t.Fatalf("approve stage %d: %v", stage, err)
		}
	}
}

func TestApprovalAdvancesStagePointer(t *testing.T) {
	p, store, c := newPipelineFixture(t)
	ctx := context.Background()

	if err := p.DecideApproval(ctx, c.ID, domain.StageExam, true); err != nil {
		t.Fatalf("approve exam: %v", err)
	}
	got, _ := store.GetCandidate(ctx, c.ID)
	if got.Stage != domain.StageDynamic {
		t.Fatalf("pointer: got %d, want 2", got.Stage)
	}
	if got.Status != domain.StatusActive {
		t.Fatalf("mid-pipeline status: got %s, want ATIVO", got.Status)
	}
	result, _ := store.ResultByCandidate(ctx, c.ID)
	if result.Passed != domain.Approved {
		t.Fatalf("exam approval should live on the result row")
	}
}

func TestApprovalAtTrainingStageApprovesCandidate(t *testing.T) {
	p, store, c := newPipelineFixture(t)
	ctx := context.Background()

	approveThrough(t, p, c.ID, domain.StageTraining)
	got, _ := store.GetCandidate(ctx, c.ID)
	if got.Stage != domain.StageTraining {
		t.Fatalf("pointer must clamp at 4, got %d", got.Stage)
	}
	if got.Status != domain.StatusApproved {
		t.Fatalf("status: got %s, want APROVADO", got.Status)
	}

	// APROVADO is terminal.
	if err := p.DecideApproval(ctx, c.ID, domain.StageTraining, false); !errors.Is(err, domain.ErrCandidateTerminal) {
		t.Fatalf("decision on approved candidate: got %v", err)
	}
	if err := p.AssignConceptGrade(ctx, c.ID, domain.StageDynamic, domain.GradeA); !errors.Is(err, domain.ErrCandidateTerminal) {
		t.Fatalf("grade on approved candidate: got %v", err)
	}
}

func TestRejectionKeepsPointerAndAllowsCorrection(t *testing.T) {
	p, store, c := newPipelineFixture(t)
	ctx := context.Background()

	approveThrough(t, p, c.ID, domain.StageExam)
	if err := p.DecideApproval(ctx, c.ID, domain.StageDynamic, false); err != nil {
		t.Fatalf("reject: %v", err)
	}
	got, _ := store.GetCandidate(ctx, c.ID)
	if got.Status != domain.StatusRejected {
		t.Fatalf("status: got %s, want REPROVADO", got.Status)
	}
	if got.Stage != domain.StageDynamic {
		t.Fatalf("rejection must not move the pointer, got %d", got.Stage)
	}

	// REPROVADO is not terminal: a re-approval corrects the mistake and advances.
	if err := p.DecideApproval(ctx, c.ID, domain.StageDynamic, true); err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	got, _ = store.GetCandidate(ctx, c.ID)
	if got.Status != domain.StatusActive || got.Stage != domain.StageInterview {
		t.Fatalf("correction failed: status=%s stage=%d", got.Status, got.Stage)
	}
}

func TestStageGating(t *testing.T) {
	p, _, c := newPipelineFixture(t)
	ctx := context.Background()

	if err := p.AssignConceptGrade(ctx, c.ID, domain.StageDynamic, domain.GradeP); !errors.Is(err, domain.ErrStageLocked) {
		t.Fatalf("grading a locked stage: got %v", err)
	}
	if err := p.DecideApproval(ctx, c.ID, domain.StageInterview, true); !errors.Is(err, domain.ErrStageLocked) {
		t.Fatalf("deciding a locked stage: got %v", err)
	}
	if err := p.AssignConceptGrade(ctx, c.ID, domain.StageExam, domain.GradeA); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("concept grade on exam stage: got %v", err)
	}
	if err := p.AssignConceptGrade(ctx, c.ID, domain.StageDynamic, domain.ConceptGrade("Z")); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("unknown grade: got %v", err)
	}
}

func TestGradeDoesNotMovePointer(t *testing.T) {
	p, store, c := newPipelineFixture(t)
	ctx := context.Background()

	approveThrough(t, p, c.ID, domain.StageExam)
	if err := p.AssignConceptGrade(ctx, c.ID, domain.StageDynamic, domain.GradePAlto); err != nil {
		t.Fatalf("grade: %v", err)
	}
	got, _ := store.GetCandidate(ctx, c.ID)
	if got.Stage != domain.StageDynamic {
		t.Fatalf("grading moved the pointer to %d", got.Stage)
	}
	records, _ := store.StageRecords(ctx, c.ID)
	if records.Dynamic == nil || records.Dynamic.Grade == nil || *records.Dynamic.Grade != domain.GradePAlto {
		t.Fatalf("grade not stored: %+v", records.Dynamic)
	}
	if records.Dynamic.Approval != domain.Undecided {
		t.Fatalf("grading must leave the approval flag untouched")
	}
}

func TestTrainingGradesMergePartially(t *testing.T) {
	p, store, c := newPipelineFixture(t)
	ctx := context.Background()

	approveThrough(t, p, c.ID, domain.StageInterview)

	article := 4.0
	if err := p.SaveTrainingGrades(ctx, c.ID, app.TrainingInput{ArticleGrade: &article}); err != nil {
		t.Fatalf("save article grade: %v", err)
	}
	view, err := p.View(ctx, c.ID)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if view.Progress != 80 {
		t.Fatalf("progress with one component: got %.2f, want 80", view.Progress)
	}
	if view.Stages[domain.StageTraining-1].Status != domain.StageInProgress {
		t.Fatalf("partial training should show EM_ANDAMENTO, got %s", view.Stages[3].Status)
	}

	presentation := 3.5
	caseGrade := domain.GradeP
	if err := p.SaveTrainingGrades(ctx, c.ID, app.TrainingInput{ArticlePresentation: &presentation, CaseGrade: &caseGrade}); err != nil {
		t.Fatalf("save remaining components: %v", err)
	}
	records, _ := store.StageRecords(ctx, c.ID)
	tr := records.Training
	if tr == nil || tr.ArticleGrade == nil || *tr.ArticleGrade != 4.0 {
		t.Fatalf("merge dropped the earlier component: %+v", tr)
	}
	if tr.ArticlePresentation == nil || tr.CaseGrade == nil {
		t.Fatalf("merge missed the new components: %+v", tr)
	}

	bad := 7.5
	if err := p.SaveTrainingGrades(ctx, c.ID, app.TrainingInput{ArticleGrade: &bad}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("out-of-range article grade: got %v", err)
	}
}

func TestWithdrawal(t *testing.T) {
	p, store, c := newPipelineFixture(t)
	ctx := context.Background()

	approveThrough(t, p, c.ID, domain.StageExam)
	if err := p.MarkWithdrawn(ctx, c.ID); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	got, _ := store.GetCandidate(ctx, c.ID)
	if got.Status != domain.StatusWithdrawn || !got.Withdrawn {
		t.Fatalf("withdrawal not recorded: %+v", got)
	}
	if err := p.DecideApproval(ctx, c.ID, domain.StageDynamic, true); !errors.Is(err, domain.ErrCandidateTerminal) {
		t.Fatalf("decision on withdrawn candidate: got %v", err)
	}
}

func TestWithdrawalBlockedAfterApproval(t *testing.T) {
	p, _, c := newPipelineFixture(t)
	approveThrough(t, p, c.ID, domain.StageTraining)
	if err := p.MarkWithdrawn(context.Background(), c.ID); !errors.Is(err, domain.ErrCandidateTerminal) {
		t.Fatalf("withdrawing an approved candidate: got %v", err)
	}
}

func TestViewDerivesStatuses(t *testing.T) {
	p, _, c := newPipelineFixture(t)
	ctx := context.Background()

	view, err := p.View(ctx, c.ID)
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	want := []domain.StageStatus{domain.StagePending, domain.StageLocked, domain.StageLocked, domain.StageLocked}
	for i, sv := range view.Stages {
		if sv.Status != want[i] {
			t.Errorf("stage %d: got %s, want %s", i+1, sv.Status, want[i])
		}
	}
	if view.Overall != domain.StatusActive {
		t.Fatalf("overall: got %s, want ATIVO", view.Overall)
	}

	approveThrough(t, p, c.ID, domain.StageExam)
	if err := p.DecideApproval(ctx, c.ID, domain.StageDynamic, false); err != nil {
		t.Fatalf("reject: %v", err)
	}
	view, _ = p.View(ctx, c.ID)
	if view.Overall != domain.StatusRejected {
		t.Fatalf("overall after rejection: got %s", view.Overall)
	}
	if view.Stages[0].Status != domain.StageApproved || view.Stages[1].Status != domain.StageRejected {
		t.Fatalf("stage views wrong: %+v", view.Stages)
	}
}

func TestSetObservation(t *testing.T) {
	p, store, c := newPipelineFixture(t)
	ctx := context.Background()
	if err := p.SetObservation(ctx, c.ID, "remarcar dinamica"); err != nil {
		t.Fatalf("set observation: %v", err)
	}
	got, _ := store.GetCandidate(ctx, c.ID)
	if got.Observation != "remarcar dinamica" {
		t.Fatalf("observation not stored: %q", got.Observation)
	}
}

func TestDeleteCascades(t *testing.T) {
	p, store, c := newPipelineFixture(t)
	ctx := context.Background()

	approveThrough(t, p, c.ID, domain.StageExam)
	if err := p.AssignConceptGrade(ctx, c.ID, domain.StageDynamic, domain.GradeA); err != nil {
		t.Fatalf("grade: %v", err)
	}
	text := "resposta"
	if err := store.UpsertAnswer(ctx, domain.Answer{ResultID: "res-1", QuestionID: "q1", Text: &text}); err != nil {
		t.Fatalf("seed answer: %v", err)
	}

	if err := p.Delete(ctx, c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetCandidate(ctx, c.ID); !errors.Is(err, domain.ErrCandidateNotFound) {
		t.Fatalf("candidate survived deletion: %v", err)
	}
	if _, err := store.ResultByCandidate(ctx, c.ID); !errors.Is(err, domain.ErrResultNotFound) {
		t.Fatalf("result survived deletion: %v", err)
	}
	if answers, _ := store.ListAnswers(ctx, "res-1"); len(answers) != 0 {
		t.Fatalf("answers survived deletion: %+v", answers)
	}
	records, err := store.StageRecords(ctx, c.ID)
	if err != nil {
		t.Fatalf("stage records: %v", err)
	}
	if records.Dynamic != nil {
		t.Fatalf("stage record survived deletion")
	}
	if err := p.Delete(ctx, c.ID); !errors.Is(err, domain.ErrCandidateNotFound) {
		t.Fatalf("double delete: got %v", err)
	}
}
