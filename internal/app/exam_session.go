package app

import (
	"sync"
	"time"

	"github.com/gabzinnn/av-continua-sub000/internal/domain"
)

// Event is pushed to session subscribers: countdown ticks, the first tab-switch
// warning, and the terminal finalized notification.
type Event struct {
	Type         string                `json:"type"` // tick | warning | finalized
	RemainingSec int                   `json:"remaining_sec,omitempty"`
	TabSwitches  int                   `json:"tab_switches,omitempty"`
	Reason       domain.FinalizeReason `json:"reason,omitempty"`
}

// Session is the in-memory state of one live exam sitting. The durable truth
// (answers, start instant) lives in the Store; the session owns only the scheduled
// tasks (countdown, essay debounce) and the per-tab counters.
type Session struct {
	resultID string
	exam     domain.Exam
	now      func() time.Time
	debounce time.Duration

	// persist is the best-effort autosave sink; failures are logged by the
	// service and never surfaced to the candidate.
	persist func(a domain.Answer)

	mu          sync.Mutex
	startedAt   *time.Time
	finalized   bool
	reason      domain.FinalizeReason
	questionIdx int
	tabSwitches int
	pending     map[string]string
	debouncers  map[string]*time.Timer
	subscribers map[chan Event]struct{}
	stopTick    chan struct{}
	tickStarted bool
}

func newSession(resultID string, exam domain.Exam, debounce time.Duration, now func() time.Time, persist func(domain.Answer)) *Session {
	return &Session{
		resultID:    resultID,
		exam:        exam,
		now:         now,
		debounce:    debounce,
		persist:     persist,
		pending:     make(map[string]string),
		debouncers:  make(map[string]*time.Timer),
		subscribers: make(map[chan Event]struct{}),
		stopTick:    make(chan struct{}),
	}
}

// setStarted records the durable session start instant for countdown derivation.
func (s *Session) setStarted(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt == nil {
		started := t
		s.startedAt = &started
	}
}

// RemainingSeconds re-derives the countdown from the durable start timestamp; the
// boolean is false for untimed exams or sessions that have not started. Client
// countdown state is never trusted.
func (s *Session) RemainingSeconds() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remainingLocked()
}

func (s *Session) remainingLocked() (int, bool) {
	if s.exam.TimeLimitMin <= 0 {
		return 0, false
	}
	// Before the start event the full budget remains; elapsed time counts from
	// the recorded start instant only.
	if s.startedAt == nil {
		return s.exam.TimeLimitMin * 60, true
	}
	elapsed := int(s.now().Sub(*s.startedAt).Seconds())
	remaining := s.exam.TimeLimitMin*60 - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// expiredNow reports whether a time limit exists and has run out.
func (s *Session) expiredNow() bool {
	remaining, has := s.RemainingSeconds()
	return has && remaining == 0
}

// Finalized reports whether the session has been closed.
func (s *Session) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized
}

// QuestionIndex returns the current (monotonic) question position.
func (s *Session) QuestionIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questionIdx
}

// advance moves the question pointer forward. Regressions are rejected; there is
// no back navigation.
func (s *Session) advance(to int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return s.questionIdx, domain.ErrSessionFinalized
	}
	if to < s.questionIdx {
		return s.questionIdx, domain.ErrBackwardNavigation
	}
	s.questionIdx = to
	return s.questionIdx, nil
}

// saveChoice persists a choice answer immediately, fire-and-forget.
func (s *Session) saveChoice(questionID, alternativeID string) error {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return domain.ErrSessionFinalized
	}
	s.mu.Unlock()

	alt := alternativeID
	s.persist(domain.Answer{ResultID: s.resultID, QuestionID: questionID, AlternativeID: &alt})
	return nil
}

// saveEssay schedules a debounced write of free text. Each keystroke cancels the
// pending timer before scheduling, so a later keystroke can never be overtaken by
// an earlier stale save.
func (s *Session) saveEssay(questionID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return domain.ErrSessionFinalized
	}
	s.pending[questionID] = text
	if t, ok := s.debouncers[questionID]; ok {
		t.Stop()
	}
	s.debouncers[questionID] = time.AfterFunc(s.debounce, func() {
		s.flushEssay(questionID)
	})
	return nil
}

// flushEssay writes the latest pending text for a question, if any remains.
func (s *Session) flushEssay(questionID string) {
	s.mu.Lock()
	text, ok := s.pending[questionID]
	if ok {
		delete(s.pending, questionID)
		delete(s.debouncers, questionID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	body := text
	s.persist(domain.Answer{ResultID: s.resultID, QuestionID: questionID, Text: &body})
}

// reportHidden counts a visibility-hidden event and returns the new total.
func (s *Session) reportHidden() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return s.tabSwitches, domain.ErrSessionFinalized
	}
	s.tabSwitches++
	return s.tabSwitches, nil
}

// markFinalized flips the terminal flag, cancels all scheduled tasks, and hands
// back any pending essay text so the caller can flush it synchronously. The second
// call reports alreadyDone and changes nothing.
func (s *Session) markFinalized(reason domain.FinalizeReason) (pending map[string]string, alreadyDone bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return nil, true
	}
	s.finalized = true
	s.reason = reason
	for _, t := range s.debouncers {
		t.Stop()
	}
	s.debouncers = make(map[string]*time.Timer)
	pending = s.pending
	s.pending = make(map[string]string)
	select {
	case <-s.stopTick:
	default:
		close(s.stopTick)
	}
	return pending, false
}

// teardown cancels scheduled tasks without finalizing, for transport detach. A
// stale debounce write must not land after the candidate has left the view.
func (s *Session) teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.debouncers {
		t.Stop()
	}
	s.debouncers = make(map[string]*time.Timer)
	s.pending = make(map[string]string)
	select {
	case <-s.stopTick:
	default:
		close(s.stopTick)
	}
}

// Subscribe returns a channel receiving session events. The caller must invoke
// the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcast(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked(ev)
}

func (s *Session) broadcastLocked(ev Event) {
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Drop the oldest update so a slow client cannot block the tick loop.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
