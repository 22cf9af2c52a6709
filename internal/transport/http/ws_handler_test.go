package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gabzinnn/av-continua-sub000/internal/app"
	"github.com/gabzinnn/av-continua-sub000/internal/domain"
	"github.com/gabzinnn/av-continua-sub000/internal/infra/memory"
	transport "github.com/gabzinnn/av-continua-sub000/internal/transport/http"
)

func testExam() domain.Exam {
	return domain.Exam{
		ID:           "prova-1",
		Title:        "Prova de selecao",
		TimeLimitMin: 30,
		Status:       domain.ExamPublished,
		Questions: []domain.Question{
			{ID: "q1", Type: domain.QuestionMultipleChoice, Statement: "Escolha", Alternatives: []domain.Alternative{
				{ID: "q1a", Text: "Errada"},
				{ID: "q1b", Text: "Certa", Correct: true},
			}},
			{ID: "q2", Type: domain.QuestionEssay, Statement: "Disserte", Points: 5},
		},
	}
}

func newWSFixture(t *testing.T) (*httptest.Server, *app.ExamService, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	exam := testExam()
	repo := memory.NewExamRepository(memory.NewStaticExamLoader(map[string]domain.Exam{exam.ID: exam}), time.Minute)
	handles := memory.NewHandleStore(time.Hour)
	svc := app.NewExamService(store, repo, handles, app.WithDebounce(10*time.Millisecond))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", transport.NewWSHandler(svc).ServeWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, svc, store
}

func dialWS(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wireMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readMessage(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wireMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

// waitFor reads until a message of the wanted type arrives, skipping ticks and
// other interleaved pushes.
func waitFor(t *testing.T, conn *websocket.Conn, wanted string) wireMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		msg := readMessage(t, conn)
		if msg.Type == wanted {
			return msg
		}
	}
	t.Fatalf("no %q message arrived", wanted)
	return wireMessage{}
}

func wsRegister(t *testing.T, svc *app.ExamService) app.Registration {
	t.Helper()
	reg, err := svc.Register(context.Background(), app.RegistrationInput{
		Name:     "Ana Costa",
		Email:    "ana@exemplo.com",
		Registry: "20250007",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := conn.WriteJSON(wireMessage{Type: msgType, Payload: raw}); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestServeWSRejectsBadToken(t *testing.T) {
	srv, _, _ := newWSFixture(t)

	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing token: got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/ws?token=nope")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unknown token: got %d", resp.StatusCode)
	}
}

func TestServeWSSessionFlow(t *testing.T) {
	srv, svc, store := newWSFixture(t)
	reg := wsRegister(t, svc)
	conn := dialWS(t, srv, reg.Token)

	msg := readMessage(t, conn)
	if msg.Type != "session" {
		t.Fatalf("first message: got %q, want session", msg.Type)
	}
	var snap app.Snapshot
	if err := json.Unmarshal(msg.Payload, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Exam.Questions) != 2 {
		t.Fatalf("snapshot exam wrong: %+v", snap.Exam)
	}
	for _, alt := range snap.Exam.Questions[0].Alternatives {
		if alt.Correct {
			t.Fatalf("answer key leaked over the wire")
		}
	}

	send(t, conn, "begin", struct{}{})
	send(t, conn, "answer", map[string]string{"questionId": "q1", "alternativeId": "q1b"})
	send(t, conn, "advance", map[string]int{"to": 1})
	waitFor(t, conn, "index")

	send(t, conn, "finalize", struct{}{})
	waitFor(t, conn, "finalized")

	result, err := store.ResultByCandidate(context.Background(), reg.Candidate.ID)
	if err != nil {
		t.Fatalf("load result: %v", err)
	}
	if !result.Finalized() || result.FinishReason != domain.ReasonManual {
		t.Fatalf("finalize not recorded: %+v", result)
	}
}

func TestServeWSTabSwitchFlow(t *testing.T) {
	srv, svc, store := newWSFixture(t)
	reg := wsRegister(t, svc)
	conn := dialWS(t, srv, reg.Token)

	readMessage(t, conn) // session
	send(t, conn, "begin", struct{}{})

	send(t, conn, "visibility", struct{}{})
	warning := waitFor(t, conn, "warning")
	var ev app.Event
	if err := json.Unmarshal(warning.Payload, &ev); err != nil {
		t.Fatalf("decode warning: %v", err)
	}
	if ev.TabSwitches != 1 {
		t.Fatalf("warning after %d switches", ev.TabSwitches)
	}

	send(t, conn, "visibility", struct{}{})
	waitFor(t, conn, "finalized")

	result, err := store.ResultByCandidate(context.Background(), reg.Candidate.ID)
	if err != nil {
		t.Fatalf("load result: %v", err)
	}
	if result.FinishReason != domain.ReasonTabSwitch {
		t.Fatalf("reason: got %s, want tabswitch", result.FinishReason)
	}
}

func TestServeWSResumeRestoresAnswers(t *testing.T) {
	srv, svc, _ := newWSFixture(t)
	reg := wsRegister(t, svc)

	conn := dialWS(t, srv, reg.Token)
	readMessage(t, conn) // session
	send(t, conn, "begin", struct{}{})
	send(t, conn, "answer", map[string]string{"questionId": "q1", "alternativeId": "q1b"})
	send(t, conn, "essay", map[string]string{"questionId": "q2", "text": "rascunho"})
	time.Sleep(50 * time.Millisecond) // let the debounce settle
	conn.Close()

	conn = dialWS(t, srv, reg.Token)
	msg := readMessage(t, conn)
	var snap app.Snapshot
	if err := json.Unmarshal(msg.Payload, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Answers) != 2 {
		t.Fatalf("expected both answers restored, got %+v", snap.Answers)
	}
	byQuestion := map[string]domain.Answer{}
	for _, a := range snap.Answers {
		byQuestion[a.QuestionID] = a
	}
	if a := byQuestion["q1"]; a.AlternativeID == nil || *a.AlternativeID != "q1b" {
		t.Fatalf("choice not restored: %+v", a)
	}
	if a := byQuestion["q2"]; a.Text == nil || *a.Text != "rascunho" {
		t.Fatalf("essay not restored: %+v", a)
	}
}
