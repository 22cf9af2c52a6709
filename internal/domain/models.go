package domain

import "time"

// QuestionType discriminates how a question is answered and scored.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multipla_escolha"
	QuestionTrueFalse      QuestionType = "verdadeiro_falso"
	QuestionEssay          QuestionType = "discursiva"
)

// IsObjective reports whether the question can be scored automatically.
func (t QuestionType) IsObjective() bool {
	return t == QuestionMultipleChoice || t == QuestionTrueFalse
}

// Alternative is one selectable option of a choice question.
type Alternative struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question belongs to an exam definition. Alternatives are empty for essay questions.
type Question struct {
	ID           string        `json:"id"`
	Type         QuestionType  `json:"type"`
	Statement    string        `json:"statement"`
	Points       float64       `json:"points"` // defaults to 1 if zero
	Alternatives []Alternative `json:"alternatives,omitempty"`
	Images       []string      `json:"images,omitempty"`
}

// EffectivePoints applies the one-point default for unweighted questions.
func (q Question) EffectivePoints() float64 {
	if q.Points == 0 {
		return 1
	}
	return q.Points
}

// ExamStatus gates whether candidates may take an exam.
type ExamStatus string

const (
	ExamDraft     ExamStatus = "RASCUNHO"
	ExamPublished ExamStatus = "PUBLICADA"
)

// Exam is a reusable exam template. Read-only during a candidate session.
type Exam struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	TimeLimitMin int        `json:"time_limit_min"` // zero means untimed
	Status       ExamStatus `json:"status"`
	Questions    []Question `json:"questions"`
}

// MaxScore sums the point value of every question.
func (e Exam) MaxScore() float64 {
	total := 0.0
	for _, q := range e.Questions {
		total += q.EffectivePoints()
	}
	return total
}

// OverallStatus is the candidate's derived standing in the recruitment process.
type OverallStatus string

const (
	StatusActive    OverallStatus = "ATIVO"
	StatusApproved  OverallStatus = "APROVADO"
	StatusRejected  OverallStatus = "REPROVADO"
	StatusWithdrawn OverallStatus = "DESISTENTE"
)

// Terminal reports whether the candidate accepts no further grading or approval.
// Rejected candidates stay editable so mistakes can be corrected.
func (s OverallStatus) Terminal() bool {
	return s == StatusApproved || s == StatusWithdrawn
}

// Candidate is a person moving through the recruitment pipeline.
type Candidate struct {
	ID          string
	Name        string
	Email       string
	Registry    string // institutional registry id (matrícula)
	Course      string
	Term        string
	Stage       Stage // current stage pointer, only ever advances
	Status      OverallStatus
	Withdrawn   bool
	Observation string
	CreatedAt   time.Time
}

// ResultStatus tracks the grading state of one exam result.
type ResultStatus string

const (
	ResultPending    ResultStatus = "PENDENTE"
	ResultInProgress ResultStatus = "EM_ANDAMENTO"
	ResultCorrected  ResultStatus = "CORRIGIDA"
)

// FinalizeReason records why an exam session ended.
type FinalizeReason string

const (
	ReasonManual    FinalizeReason = "manual"
	ReasonTimeout   FinalizeReason = "timeout"
	ReasonTabSwitch FinalizeReason = "tabswitch"
)

// ExamResult is the one-per-candidate-per-exam session record.
type ExamResult struct {
	ID           string
	CandidateID  string
	ExamID       string
	Status       ResultStatus
	StartedAt    *time.Time // recorded when the candidate clicks "begin", not at row creation
	FinishedAt   *time.Time
	FinishReason FinalizeReason
	TimeSpentSec int
	FinalScore   *float64
	Passed       Decision // approval flag for the exam stage; independent of Status
}

// Finalized reports whether the session has closed and the result is immutable to
// the candidate.
func (r ExamResult) Finalized() bool {
	return r.FinishedAt != nil
}

// Answer holds one candidate response per (result, question) pair. Exactly one of
// AlternativeID or Text is populated depending on the question type.
type Answer struct {
	ResultID      string
	QuestionID    string
	AlternativeID *string
	Text          *string
	Corrected     bool
	Points        float64
}

// DynamicGrade is the stage-2 (group dynamic) record, created lazily on first grade.
type DynamicGrade struct {
	CandidateID string
	Grade       *ConceptGrade
	Approval    Decision
}

// InterviewGrade is the stage-3 record.
type InterviewGrade struct {
	CandidateID string
	Grade       *ConceptGrade
	Approval    Decision
}

// TrainingGrade is the stage-4 (capacitação) record. The three grade components are
// independent; partial grading is valid.
type TrainingGrade struct {
	CandidateID         string
	ArticleGrade        *float64 // 0..5
	ArticlePresentation *float64 // 0..5
	CaseGrade           *ConceptGrade
	Approval            Decision
}

// Progress combines the present components into a 0..100 percentage. Components not
// yet graded are excluded from the mean; no component present yields zero.
func (t TrainingGrade) Progress() float64 {
	sum, n := 0.0, 0
	if t.ArticleGrade != nil {
		sum += *t.ArticleGrade / 5 * 100
		n++
	}
	if t.ArticlePresentation != nil {
		sum += *t.ArticlePresentation / 5 * 100
		n++
	}
	if t.CaseGrade != nil {
		sum += t.CaseGrade.Percent()
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Partial reports whether some but not all components have been graded.
func (t TrainingGrade) Partial() bool {
	n := 0
	if t.ArticleGrade != nil {
		n++
	}
	if t.ArticlePresentation != nil {
		n++
	}
	if t.CaseGrade != nil {
		n++
	}
	return n > 0 && n < 3
}

// StageRecords bundles the per-stage grading rows of one candidate. Nil pointers
// mean the stage has never been graded.
type StageRecords struct {
	Dynamic   *DynamicGrade
	Interview *InterviewGrade
	Training  *TrainingGrade
}
