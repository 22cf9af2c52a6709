package domain

import "time"

// SessionHandle is the server-issued token a candidate's browser holds so a page
// reload within the same tab can resume the session. Issued at registration,
// TTL-bound, and cleared when the session finalizes.
type SessionHandle struct {
	Token       string    `json:"token"`
	CandidateID string    `json:"candidate_id"`
	ResultID    string    `json:"result_id"`
	ExamID      string    `json:"exam_id"`
	IssuedAt    time.Time `json:"issued_at"`
}
