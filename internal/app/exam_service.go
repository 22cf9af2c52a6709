package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gabzinnn/av-continua-sub000/internal/domain"
)

// ExamService runs candidates through one timed exam each: registration,
// start, autosaved answering under a countdown and tab-focus monitoring, and
// idempotent finalization with objective scoring.
type ExamService struct {
	store   Store
	exams   ExamRepository
	handles HandleStore

	debounce  time.Duration
	tabLimit  int
	tickEvery time.Duration
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option tweaks service behavior, mainly for tests.
type Option func(*ExamService)

// WithClock injects a deterministic time source.
func WithClock(now func() time.Time) Option {
	return func(s *ExamService) { s.now = now }
}

// WithDebounce overrides the essay autosave debounce window.
func WithDebounce(d time.Duration) Option {
	return func(s *ExamService) { s.debounce = d }
}

// WithTabSwitchLimit overrides how many hidden events terminate the session.
func WithTabSwitchLimit(n int) Option {
	return func(s *ExamService) { s.tabLimit = n }
}

// WithTickInterval overrides the countdown broadcast interval.
func WithTickInterval(d time.Duration) Option {
	return func(s *ExamService) { s.tickEvery = d }
}

func NewExamService(store Store, exams ExamRepository, handles HandleStore, opts ...Option) *ExamService {
	s := &ExamService{
		store:     store,
		exams:     exams,
		handles:   handles,
		debounce:  time.Second,
		tabLimit:  2,
		tickEvery: time.Second,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegistrationInput is the identification form a candidate submits.
type RegistrationInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Registry string `json:"registry"`
	Course   string `json:"course"`
	Term     string `json:"term"`
}

// Registration is what the candidate's browser keeps: the created rows plus the
// session handle token used to survive a page reload.
type Registration struct {
	Candidate domain.Candidate  `json:"candidate"`
	Result    domain.ExamResult `json:"result"`
	ExamID    string            `json:"exam_id"`
	Token     string            `json:"token"`
}

// Register creates the candidate and result rows against the currently active
// exam and issues a session handle.
func (s *ExamService) Register(ctx context.Context, in RegistrationInput) (Registration, error) {
	if err := validateRegistration(in); err != nil {
		return Registration{}, err
	}
	exam, err := s.exams.ActiveExam(ctx)
	if err != nil {
		return Registration{}, err
	}

	candidate := domain.Candidate{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(in.Name),
		Email:     strings.TrimSpace(in.Email),
		Registry:  strings.TrimSpace(in.Registry),
		Course:    strings.TrimSpace(in.Course),
		Term:      strings.TrimSpace(in.Term),
		Stage:     domain.StageExam,
		Status:    domain.StatusActive,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateCandidate(ctx, &candidate); err != nil {
		return Registration{}, fmt.Errorf("create candidate: %w", err)
	}

	result := domain.ExamResult{
		ID:          uuid.NewString(),
		CandidateID: candidate.ID,
		ExamID:      exam.ID,
		Status:      domain.ResultPending,
	}
	if err := s.store.CreateResult(ctx, &result); err != nil {
		return Registration{}, fmt.Errorf("create result: %w", err)
	}

	handle := domain.SessionHandle{
		Token:       uuid.NewString(),
		CandidateID: candidate.ID,
		ResultID:    result.ID,
		ExamID:      exam.ID,
		IssuedAt:    s.now(),
	}
	if err := s.handles.Put(ctx, handle); err != nil {
		return Registration{}, fmt.Errorf("issue session handle: %w", err)
	}

	return Registration{Candidate: candidate, Result: result, ExamID: exam.ID, Token: handle.Token}, nil
}

func validateRegistration(in RegistrationInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if strings.TrimSpace(in.Email) == "" || !strings.Contains(in.Email, "@") {
		return fmt.Errorf("%w: valid email is required", domain.ErrValidation)
	}
	if strings.TrimSpace(in.Registry) == "" {
		return fmt.Errorf("%w: registry id is required", domain.ErrValidation)
	}
	return nil
}

// Resume resolves a session handle back to its session, for page-reload survival.
func (s *ExamService) Resume(ctx context.Context, token string) (domain.SessionHandle, error) {
	return s.handles.Get(ctx, token)
}

// Start records the official session start instant. Elapsed time is computed from
// this moment, never from row creation. Callers treat it as fire-and-forget: a
// failed write must not block entering the exam.
func (s *ExamService) Start(ctx context.Context, resultID string) error {
	result, err := s.store.GetResult(ctx, resultID)
	if err != nil {
		return err
	}
	if result.Finalized() {
		return domain.ErrSessionFinalized
	}
	if result.StartedAt == nil {
		started := s.now()
		result.StartedAt = &started
		result.Status = domain.ResultInProgress
		if err := s.store.UpdateResult(ctx, result); err != nil {
			return fmt.Errorf("record start: %w", err)
		}
	}
	if sess, ok := s.session(resultID); ok {
		sess.setStarted(*result.StartedAt)
		s.ensureTicker(sess)
	}
	return nil
}

// Snapshot is the session view returned on attach: the exam stripped of its answer
// key, the re-derived countdown, and previously saved answers.
type Snapshot struct {
	Exam          domain.Exam     `json:"exam"`
	RemainingSec  int             `json:"remaining_sec"`
	HasTimeLimit  bool            `json:"has_time_limit"`
	QuestionIndex int             `json:"question_index"`
	Answers       []domain.Answer `json:"answers"`
}

// Attach binds a caller to the live session for a result, creating it on first
// use. Any load failure here is unrecoverable for the attempt; the transport
// redirects the candidate back to identification.
func (s *ExamService) Attach(ctx context.Context, resultID string) (*Session, Snapshot, error) {
	result, err := s.store.GetResult(ctx, resultID)
	if err != nil {
		return nil, Snapshot{}, err
	}
	if result.Finalized() {
		return nil, Snapshot{}, domain.ErrSessionFinalized
	}
	exam, err := s.exams.GetExam(ctx, result.ExamID)
	if err != nil {
		return nil, Snapshot{}, err
	}
	if exam.Status != domain.ExamPublished {
		return nil, Snapshot{}, domain.ErrExamNotPublished
	}

	sess := s.getOrCreateSession(resultID, exam)
	if result.StartedAt != nil {
		sess.setStarted(*result.StartedAt)
		s.ensureTicker(sess)
	}
	if err := s.expireIfDue(ctx, sess); err != nil {
		return nil, Snapshot{}, err
	}

	answers, err := s.store.ListAnswers(ctx, resultID)
	if err != nil {
		return nil, Snapshot{}, fmt.Errorf("load answers: %w", err)
	}
	remaining, has := sess.RemainingSeconds()
	return sess, Snapshot{
		Exam:          sanitizeExam(exam),
		RemainingSec:  remaining,
		HasTimeLimit:  has,
		QuestionIndex: sess.QuestionIndex(),
		Answers:       answers,
	}, nil
}

// SaveChoice upserts a choice answer immediately. Storage failures are swallowed:
// the save repeats on every subsequent edit and the candidate must not be
// interrupted mid-exam.
func (s *ExamService) SaveChoice(ctx context.Context, resultID, questionID, alternativeID string) error {
	sess, ok := s.session(resultID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	if err := s.expireIfDue(ctx, sess); err != nil {
		return err
	}
	q, err := findQuestion(sess.exam, questionID)
	if err != nil {
		return err
	}
	if !q.Type.IsObjective() {
		return fmt.Errorf("%w: question %s takes free text", domain.ErrValidation, questionID)
	}
	if _, err := findAlternative(*q, alternativeID); err != nil {
		return err
	}
	return sess.saveChoice(questionID, alternativeID)
}

// SaveEssay schedules the debounced persistence of free text.
func (s *ExamService) SaveEssay(ctx context.Context, resultID, questionID, text string) error {
	sess, ok := s.session(resultID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	if err := s.expireIfDue(ctx, sess); err != nil {
		return err
	}
	q, err := findQuestion(sess.exam, questionID)
	if err != nil {
		return err
	}
	if q.Type != domain.QuestionEssay {
		return fmt.Errorf("%w: question %s takes an alternative", domain.ErrValidation, questionID)
	}
	return sess.saveEssay(questionID, text)
}

// Advance moves the candidate to a later question; going back is rejected.
func (s *ExamService) Advance(ctx context.Context, resultID string, to int) (int, error) {
	sess, ok := s.session(resultID)
	if !ok {
		return 0, domain.ErrSessionNotFound
	}
	if err := s.expireIfDue(ctx, sess); err != nil {
		return sess.QuestionIndex(), err
	}
	if to < 0 || to >= len(sess.exam.Questions) {
		return sess.QuestionIndex(), fmt.Errorf("%w: question index out of range", domain.ErrValidation)
	}
	return sess.advance(to)
}

// ReportHidden counts a visibility-hidden event. The first switch warns and the
// session continues; reaching the limit finalizes immediately with reason
// tabswitch, a terminal non-cancellable transition.
func (s *ExamService) ReportHidden(ctx context.Context, resultID string) (Event, error) {
	sess, ok := s.session(resultID)
	if !ok {
		return Event{}, domain.ErrSessionNotFound
	}
	if err := s.expireIfDue(ctx, sess); err != nil {
		return Event{}, err
	}
	count, err := sess.reportHidden()
	if err != nil {
		return Event{}, err
	}
	if count >= s.tabLimit {
		if err := s.Finalize(ctx, resultID, domain.ReasonTabSwitch); err != nil {
			return Event{}, err
		}
		return Event{Type: "finalized", TabSwitches: count, Reason: domain.ReasonTabSwitch}, nil
	}
	ev := Event{Type: "warning", TabSwitches: count}
	sess.broadcast(ev)
	return ev, nil
}

// Finalize ends the session, scores the objective questions, and makes the result
// immutable to the candidate. Idempotent: a second call is a no-op.
func (s *ExamService) Finalize(ctx context.Context, resultID string, reason domain.FinalizeReason) error {
	if sess, ok := s.session(resultID); ok {
		pending, already := sess.markFinalized(reason)
		if !already {
			for questionID, text := range pending {
				body := text
				s.persistAnswer(domain.Answer{ResultID: resultID, QuestionID: questionID, Text: &body})
			}
		}
	}

	result, err := s.store.GetResult(ctx, resultID)
	if err != nil {
		return err
	}
	if result.Finalized() {
		s.dropSession(resultID)
		return nil
	}

	exam, err := s.exams.GetExam(ctx, result.ExamID)
	if err != nil {
		return err
	}
	if err := s.scoreObjective(ctx, resultID, exam); err != nil {
		return err
	}

	finished := s.now()
	result.FinishedAt = &finished
	result.FinishReason = reason
	result.TimeSpentSec = elapsedSeconds(result.StartedAt, finished, exam.TimeLimitMin)
	if err := s.store.UpdateResult(ctx, result); err != nil {
		return fmt.Errorf("finalize result: %w", err)
	}

	if err := s.handles.DeleteByResult(ctx, resultID); err != nil {
		log.Printf("clear session handle for result %s: %v", resultID, err)
	}
	if sess, ok := s.session(resultID); ok {
		remaining, _ := sess.RemainingSeconds()
		sess.broadcast(Event{Type: "finalized", RemainingSec: remaining, Reason: reason})
	}
	s.dropSession(resultID)
	return nil
}

// scoreObjective grades choice answers against the stored correct flags. Essay
// answers stay ungraded pending manual review.
func (s *ExamService) scoreObjective(ctx context.Context, resultID string, exam domain.Exam) error {
	answers, err := s.store.ListAnswers(ctx, resultID)
	if err != nil {
		return fmt.Errorf("load answers: %w", err)
	}
	byQuestion := make(map[string]domain.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}
	for _, q := range exam.Questions {
		if !q.Type.IsObjective() {
			continue
		}
		a, ok := byQuestion[q.ID]
		if !ok || a.AlternativeID == nil {
			continue
		}
		a.Points = 0
		for _, alt := range q.Alternatives {
			if alt.ID == *a.AlternativeID && alt.Correct {
				a.Points = q.EffectivePoints()
				break
			}
		}
		a.Corrected = true
		if err := s.store.UpsertAnswer(ctx, a); err != nil {
			return fmt.Errorf("score answer %s: %w", q.ID, err)
		}
	}
	return nil
}

// GradeResult computes the final score over all answers and marks the result
// CORRIGIDA. Essay answers should have been scored manually first; ungraded ones
// count as zero.
func (s *ExamService) GradeResult(ctx context.Context, resultID string) (domain.ExamResult, error) {
	result, err := s.store.GetResult(ctx, resultID)
	if err != nil {
		return domain.ExamResult{}, err
	}
	if !result.Finalized() {
		return domain.ExamResult{}, fmt.Errorf("%w: result not finalized", domain.ErrValidation)
	}
	answers, err := s.store.ListAnswers(ctx, resultID)
	if err != nil {
		return domain.ExamResult{}, fmt.Errorf("load answers: %w", err)
	}
	total := 0.0
	for _, a := range answers {
		total += a.Points
	}
	result.FinalScore = &total
	result.Status = domain.ResultCorrected
	if err := s.store.UpdateResult(ctx, result); err != nil {
		return domain.ExamResult{}, fmt.Errorf("grade result: %w", err)
	}
	return result, nil
}

// ScoreEssay records the manual grade of one essay answer. Rejected once the
// result has been officially corrected.
func (s *ExamService) ScoreEssay(ctx context.Context, resultID, questionID string, points float64) error {
	result, err := s.store.GetResult(ctx, resultID)
	if err != nil {
		return err
	}
	if result.Status == domain.ResultCorrected {
		return domain.ErrResultCorrected
	}
	exam, err := s.exams.GetExam(ctx, result.ExamID)
	if err != nil {
		return err
	}
	q, err := findQuestion(exam, questionID)
	if err != nil {
		return err
	}
	if q.Type != domain.QuestionEssay {
		return fmt.Errorf("%w: question %s is scored automatically", domain.ErrValidation, questionID)
	}
	if points < 0 || points > q.EffectivePoints() {
		return fmt.Errorf("%w: points out of range for question %s", domain.ErrValidation, questionID)
	}

	answer := domain.Answer{ResultID: resultID, QuestionID: questionID}
	answers, err := s.store.ListAnswers(ctx, resultID)
	if err != nil {
		return fmt.Errorf("load answers: %w", err)
	}
	for _, a := range answers {
		if a.QuestionID == questionID {
			answer = a
			break
		}
	}
	answer.Points = points
	answer.Corrected = true
	return s.store.UpsertAnswer(ctx, answer)
}

// Detach cancels the session's scheduled tasks when the transport goes away,
// without finalizing. The durable rows keep the progress for a later resume.
func (s *ExamService) Detach(resultID string) {
	if sess, ok := s.session(resultID); ok {
		sess.teardown()
	}
	s.dropSession(resultID)
}

func (s *ExamService) session(resultID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[resultID]
	return sess, ok
}

func (s *ExamService) getOrCreateSession(resultID string, exam domain.Exam) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[resultID]; ok {
		return sess
	}
	sess := newSession(resultID, exam, s.debounce, s.now, s.persistAnswer)
	s.sessions[resultID] = sess
	return sess
}

func (s *ExamService) dropSession(resultID string) {
	s.mu.Lock()
	delete(s.sessions, resultID)
	s.mu.Unlock()
}

// persistAnswer is the best-effort autosave sink shared by choice saves, settled
// debounces, and the finalize flush.
func (s *ExamService) persistAnswer(a domain.Answer) {
	if err := s.store.UpsertAnswer(context.Background(), a); err != nil {
		log.Printf("autosave failed for result %s question %s: %v", a.ResultID, a.QuestionID, err)
	}
}

// expireIfDue lazily enforces the deadline: if the countdown has hit zero the
// session finalizes with reason timeout before the requested operation runs.
func (s *ExamService) expireIfDue(ctx context.Context, sess *Session) error {
	if sess.Finalized() {
		return domain.ErrSessionFinalized
	}
	if !sess.expiredNow() {
		return nil
	}
	if err := s.Finalize(ctx, sess.resultID, domain.ReasonTimeout); err != nil {
		log.Printf("timeout finalize for result %s: %v", sess.resultID, err)
	}
	return domain.ErrSessionFinalized
}

// ensureTicker starts the one-second countdown loop for timed, started sessions.
func (s *ExamService) ensureTicker(sess *Session) {
	sess.mu.Lock()
	if sess.tickStarted || sess.exam.TimeLimitMin <= 0 || sess.startedAt == nil || sess.finalized {
		sess.mu.Unlock()
		return
	}
	sess.tickStarted = true
	sess.mu.Unlock()
	go s.runTicker(sess)
}

func (s *ExamService) runTicker(sess *Session) {
	ticker := time.NewTicker(s.tickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-sess.stopTick:
			return
		case <-ticker.C:
			remaining, has := sess.RemainingSeconds()
			sess.broadcast(Event{Type: "tick", RemainingSec: remaining})
			if has && remaining == 0 {
				if err := s.Finalize(context.Background(), sess.resultID, domain.ReasonTimeout); err != nil {
					log.Printf("timeout finalize for result %s: %v", sess.resultID, err)
				}
				return
			}
		}
	}
}

func elapsedSeconds(startedAt *time.Time, finished time.Time, limitMin int) int {
	if startedAt == nil {
		return 0
	}
	elapsed := int(finished.Sub(*startedAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}
	if limitMin > 0 && elapsed > limitMin*60 {
		elapsed = limitMin * 60
	}
	return elapsed
}

func findQuestion(exam domain.Exam, questionID string) (*domain.Question, error) {
	for i := range exam.Questions {
		if exam.Questions[i].ID == questionID {
			return &exam.Questions[i], nil
		}
	}
	return nil, domain.ErrQuestionNotFound
}

func findAlternative(q domain.Question, alternativeID string) (*domain.Alternative, error) {
	for i := range q.Alternatives {
		if q.Alternatives[i].ID == alternativeID {
			return &q.Alternatives[i], nil
		}
	}
	return nil, domain.ErrAlternativeNotFound
}

// sanitizeExam strips the answer key before the exam reaches a candidate.
func sanitizeExam(e domain.Exam) domain.Exam {
	out := e
	out.Questions = make([]domain.Question, len(e.Questions))
	for i, q := range e.Questions {
		cq := q
		cq.Alternatives = make([]domain.Alternative, len(q.Alternatives))
		for j, alt := range q.Alternatives {
			alt.Correct = false
			cq.Alternatives[j] = alt
		}
		out.Questions[i] = cq
	}
	return out
}
