package domain

// Stage identifies one of the four ordered evaluation stages.
type Stage int

const (
	StageExam      Stage = 1
	StageDynamic   Stage = 2
	StageInterview Stage = 3
	StageTraining  Stage = 4
)

// Valid reports whether the stage is one of the four known stages.
func (s Stage) Valid() bool {
	return s >= StageExam && s <= StageTraining
}

func (s Stage) String() string {
	switch s {
	case StageExam:
		return "prova"
	case StageDynamic:
		return "dinamica"
	case StageInterview:
		return "entrevista"
	case StageTraining:
		return "capacitacao"
	default:
		return "desconhecida"
	}
}

// StageStatus is the derived per-stage display state.
type StageStatus string

const (
	StageLocked     StageStatus = "BLOQUEADO"
	StagePending    StageStatus = "PENDENTE"
	StageInProgress StageStatus = "EM_ANDAMENTO"
	StageApproved   StageStatus = "APROVADO"
	StageRejected   StageStatus = "REPROVADO"
)

// StageApprovals collects the four tri-state approval flags that feed the derived
// statuses. The exam flag comes from the result row, the others from stage records.
type StageApprovals struct {
	Exam      Decision
	Dynamic   Decision
	Interview Decision
	Training  Decision
}

// At returns the approval flag for the given stage.
func (a StageApprovals) At(stage Stage) Decision {
	switch stage {
	case StageExam:
		return a.Exam
	case StageDynamic:
		return a.Dynamic
	case StageInterview:
		return a.Interview
	case StageTraining:
		return a.Training
	default:
		return Undecided
	}
}

// Approvals derives the flag set from a result row plus the stage records.
func Approvals(result *ExamResult, records StageRecords) StageApprovals {
	a := StageApprovals{}
	if result != nil {
		a.Exam = result.Passed
	}
	if records.Dynamic != nil {
		a.Dynamic = records.Dynamic.Approval
	}
	if records.Interview != nil {
		a.Interview = records.Interview.Approval
	}
	if records.Training != nil {
		a.Training = records.Training.Approval
	}
	return a
}

// DeriveOverall computes the candidate's overall status as a pure function of the
// approval flags plus the explicit withdrawal flag. Precedence: any explicit
// rejection wins, then withdrawal, then full approval, otherwise active.
func DeriveOverall(approvals StageApprovals, withdrawn bool) OverallStatus {
	for _, d := range []Decision{approvals.Exam, approvals.Dynamic, approvals.Interview, approvals.Training} {
		if d == Rejected {
			return StatusRejected
		}
	}
	if withdrawn {
		return StatusWithdrawn
	}
	if approvals.Training == Approved {
		return StatusApproved
	}
	return StatusActive
}

// DeriveStageStatus computes the display state of one stage. Stages beyond the
// candidate's current pointer are locked, never shown as gradable.
func DeriveStageStatus(stage Stage, current Stage, approvals StageApprovals, records StageRecords) StageStatus {
	if stage > current {
		return StageLocked
	}
	switch approvals.At(stage) {
	case Approved:
		return StageApproved
	case Rejected:
		return StageRejected
	}
	if stage == StageTraining && records.Training != nil && records.Training.Partial() {
		return StageInProgress
	}
	return StagePending
}
