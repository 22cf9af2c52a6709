package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gabzinnn/av-continua-sub000/internal/app"
	"github.com/gabzinnn/av-continua-sub000/internal/domain"
)

// APIHandler exposes registration and the stage-pipeline actions as JSON
// endpoints. Every write returns an explicit success/error object; the caller
// leaves prior state untouched on failure.
type APIHandler struct {
	exams    *app.ExamService
	pipeline *app.PipelineService
}

func NewAPIHandler(exams *app.ExamService, pipeline *app.PipelineService) *APIHandler {
	return &APIHandler{exams: exams, pipeline: pipeline}
}

// Register mounts the API routes on the mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/candidates", h.registerCandidate)
	mux.HandleFunc("GET /api/candidates/{id}", h.candidateView)
	mux.HandleFunc("DELETE /api/candidates/{id}", h.deleteCandidate)
	mux.HandleFunc("POST /api/candidates/{id}/stages/{stage}/grade", h.assignGrade)
	mux.HandleFunc("POST /api/candidates/{id}/stages/{stage}/approval", h.decideApproval)
	mux.HandleFunc("POST /api/candidates/{id}/withdraw", h.markWithdrawn)
	mux.HandleFunc("PUT /api/candidates/{id}/observation", h.setObservation)
	mux.HandleFunc("POST /api/results/{id}/start", h.startExam)
	mux.HandleFunc("POST /api/results/{id}/finalize", h.finalizeExam)
	mux.HandleFunc("POST /api/results/{id}/grade", h.gradeResult)
	mux.HandleFunc("POST /api/results/{id}/essays/{question}", h.scoreEssay)
}

type apiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *APIHandler) registerCandidate(w http.ResponseWriter, r *http.Request) {
	var in app.RegistrationInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	reg, err := h.exams.Register(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, apiResponse{Success: true, Data: reg})
}

func (h *APIHandler) candidateView(w http.ResponseWriter, r *http.Request) {
	view, err := h.pipeline.View(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: view})
}

func (h *APIHandler) deleteCandidate(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

type gradeBody struct {
	Grade               string               `json:"grade,omitempty"`
	ArticleGrade        *float64             `json:"articleGrade,omitempty"`
	ArticlePresentation *float64             `json:"articlePresentation,omitempty"`
	CaseGrade           *domain.ConceptGrade `json:"caseGrade,omitempty"`
}

func (h *APIHandler) assignGrade(w http.ResponseWriter, r *http.Request) {
	stage, ok := parseStage(r.PathValue("stage"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid stage")
		return
	}
	var body gradeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	candidateID := r.PathValue("id")

	var err error
	if stage == domain.StageTraining {
		err = h.pipeline.SaveTrainingGrades(r.Context(), candidateID, app.TrainingInput{
			ArticleGrade:        body.ArticleGrade,
			ArticlePresentation: body.ArticlePresentation,
			CaseGrade:           body.CaseGrade,
		})
	} else {
		err = h.pipeline.AssignConceptGrade(r.Context(), candidateID, stage, domain.ConceptGrade(body.Grade))
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func (h *APIHandler) decideApproval(w http.ResponseWriter, r *http.Request) {
	stage, ok := parseStage(r.PathValue("stage"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid stage")
		return
	}
	var body struct {
		Approved *bool `json:"approved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Approved == nil {
		writeError(w, http.StatusBadRequest, "approved is required")
		return
	}
	if err := h.pipeline.DecideApproval(r.Context(), r.PathValue("id"), stage, *body.Approved); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func (h *APIHandler) markWithdrawn(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.MarkWithdrawn(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func (h *APIHandler) setObservation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.pipeline.SetObservation(r.Context(), r.PathValue("id"), body.Text); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func (h *APIHandler) startExam(w http.ResponseWriter, r *http.Request) {
	// Best-effort by contract: the candidate enters the exam regardless.
	if err := h.exams.Start(r.Context(), r.PathValue("id")); err != nil {
		log.Printf("record start for result %s: %v", r.PathValue("id"), err)
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func (h *APIHandler) finalizeExam(w http.ResponseWriter, r *http.Request) {
	if err := h.exams.Finalize(r.Context(), r.PathValue("id"), domain.ReasonManual); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func (h *APIHandler) gradeResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.exams.GradeResult(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: result})
}

func (h *APIHandler) scoreEssay(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Points *float64 `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Points == nil {
		writeError(w, http.StatusBadRequest, "points is required")
		return
	}
	if err := h.exams.ScoreEssay(r.Context(), r.PathValue("id"), r.PathValue("question"), *body.Points); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true})
}

func parseStage(raw string) (domain.Stage, bool) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	stage := domain.Stage(n)
	return stage, stage.Valid()
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrCandidateNotFound),
		errors.Is(err, domain.ErrResultNotFound),
		errors.Is(err, domain.ErrExamNotFound),
		errors.Is(err, domain.ErrNoActiveExam),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrHandleNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrStageLocked),
		errors.Is(err, domain.ErrCandidateTerminal),
		errors.Is(err, domain.ErrSessionFinalized),
		errors.Is(err, domain.ErrResultCorrected),
		errors.Is(err, domain.ErrExamNotPublished):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiResponse{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("write response: %v", err)
	}
}
