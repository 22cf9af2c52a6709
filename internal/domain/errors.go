package domain

import "errors"

var (
	// ErrNoActiveExam is returned when no published exam accepts registrations.
	ErrNoActiveExam = errors.New("no active exam")
	// ErrExamNotFound indicates the exam definition could not be loaded.
	ErrExamNotFound = errors.New("exam not found")
	// ErrExamNotPublished indicates the exam exists but is not open to candidates.
	ErrExamNotPublished = errors.New("exam not published")
	// ErrCandidateNotFound indicates an unknown candidate id.
	ErrCandidateNotFound = errors.New("candidate not found")
	// ErrResultNotFound indicates an unknown exam result id.
	ErrResultNotFound = errors.New("exam result not found")
	// ErrQuestionNotFound indicates a submitted question id is not in the exam.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAlternativeNotFound indicates a submitted alternative id is invalid.
	ErrAlternativeNotFound = errors.New("alternative not found")
	// ErrSessionNotFound is returned when no live session exists for a result.
	ErrSessionNotFound = errors.New("exam session not found")
	// ErrSessionFinalized rejects writes against a finalized session.
	ErrSessionFinalized = errors.New("exam session already finalized")
	// ErrHandleNotFound is returned for unknown or expired session handles.
	ErrHandleNotFound = errors.New("session handle not found")
	// ErrBackwardNavigation rejects question-index regressions; navigation is
	// single-direction.
	ErrBackwardNavigation = errors.New("cannot navigate to an earlier question")
	// ErrStageLocked rejects grading or approval of a stage the candidate has not
	// reached.
	ErrStageLocked = errors.New("stage not reached by candidate")
	// ErrCandidateTerminal rejects pipeline actions on approved or withdrawn
	// candidates.
	ErrCandidateTerminal = errors.New("candidate is in a terminal status")
	// ErrResultCorrected rejects answer edits after the official correction.
	ErrResultCorrected = errors.New("result already corrected")
	// ErrValidation wraps input-validation failures; callers surface them inline.
	ErrValidation = errors.New("validation failed")
)
