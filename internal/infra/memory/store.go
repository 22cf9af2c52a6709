package memory

import (
	"context"
	"sync"

	"github.com/gabzinnn/av-continua-sub000/internal/domain"
)

// Store is the in-memory implementation of app.Store, used in dev mode and tests.
type Store struct {
	mu         sync.RWMutex
	candidates map[string]domain.Candidate
	results    map[string]domain.ExamResult
	answers    map[string]map[string]domain.Answer // resultID -> questionID
	dynamics   map[string]domain.DynamicGrade
	interviews map[string]domain.InterviewGrade
	trainings  map[string]domain.TrainingGrade
}

func NewStore() *Store {
	return &Store{
		candidates: make(map[string]domain.Candidate),
		results:    make(map[string]domain.ExamResult),
		answers:    make(map[string]map[string]domain.Answer),
		dynamics:   make(map[string]domain.DynamicGrade),
		interviews: make(map[string]domain.InterviewGrade),
		trainings:  make(map[string]domain.TrainingGrade),
	}
}

func (s *Store) CreateCandidate(_ context.Context, c *domain.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates[c.ID] = *c
	return nil
}

func (s *Store) GetCandidate(_ context.Context, id string) (domain.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[id]
	if !ok {
		return domain.Candidate{}, domain.ErrCandidateNotFound
	}
	return c, nil
}

func (s *Store) UpdateCandidate(_ context.Context, c domain.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.candidates[c.ID]; !ok {
		return domain.ErrCandidateNotFound
	}
	s.candidates[c.ID] = c
	return nil
}

func (s *Store) DeleteCandidate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.candidates[id]; !ok {
		return domain.ErrCandidateNotFound
	}
	delete(s.candidates, id)
	for resultID, r := range s.results {
		if r.CandidateID == id {
			delete(s.results, resultID)
			delete(s.answers, resultID)
		}
	}
	delete(s.dynamics, id)
	delete(s.interviews, id)
	delete(s.trainings, id)
	return nil
}

func (s *Store) CreateResult(_ context.Context, r *domain.ExamResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[r.ID] = *r
	return nil
}

func (s *Store) GetResult(_ context.Context, id string) (domain.ExamResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	if !ok {
		return domain.ExamResult{}, domain.ErrResultNotFound
	}
	return r, nil
}

func (s *Store) UpdateResult(_ context.Context, r domain.ExamResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.results[r.ID]; !ok {
		return domain.ErrResultNotFound
	}
	s.results[r.ID] = r
	return nil
}

func (s *Store) ResultByCandidate(_ context.Context, candidateID string) (domain.ExamResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.results {
		if r.CandidateID == candidateID {
			return r, nil
		}
	}
	return domain.ExamResult{}, domain.ErrResultNotFound
}

func (s *Store) UpsertAnswer(_ context.Context, a domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byQuestion, ok := s.answers[a.ResultID]
	if !ok {
		byQuestion = make(map[string]domain.Answer)
		s.answers[a.ResultID] = byQuestion
	}
	byQuestion[a.QuestionID] = a
	return nil
}

func (s *Store) ListAnswers(_ context.Context, resultID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Answer, 0, len(s.answers[resultID]))
	for _, a := range s.answers[resultID] {
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) StageRecords(_ context.Context, candidateID string) (domain.StageRecords, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := domain.StageRecords{}
	if g, ok := s.dynamics[candidateID]; ok {
		records.Dynamic = &g
	}
	if g, ok := s.interviews[candidateID]; ok {
		records.Interview = &g
	}
	if g, ok := s.trainings[candidateID]; ok {
		records.Training = &g
	}
	return records, nil
}

func (s *Store) PutDynamicGrade(_ context.Context, g domain.DynamicGrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dynamics[g.CandidateID] = g
	return nil
}

func (s *Store) PutInterviewGrade(_ context.Context, g domain.InterviewGrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interviews[g.CandidateID] = g
	return nil
}

func (s *Store) PutTrainingGrade(_ context.Context, g domain.TrainingGrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trainings[g.CandidateID] = g
	return nil
}
