package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/gabzinnn/av-continua-sub000/internal/app"
	"github.com/gabzinnn/av-continua-sub000/internal/domain"
)

// WSHandler drives one live exam sitting over a websocket: the client sends
// answers and visibility events, the server pushes countdown ticks, the
// tab-switch warning, and the terminal finalized notification.
type WSHandler struct {
	exams    *app.ExamService
	upgrader websocket.Upgrader
}

func NewWSHandler(exams *app.ExamService) *WSHandler {
	return &WSHandler{
		exams: exams,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID    string `json:"questionId"`
	AlternativeID string `json:"alternativeId"`
}

type essayPayload struct {
	QuestionID string `json:"questionId"`
	Text       string `json:"text"`
}

type advancePayload struct {
	To int `json:"to"`
}

type indexPayload struct {
	Index int `json:"index"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and wires the socket into the session engine. The
// session handle token identifies the sitting; a bad or expired token sends the
// candidate back to identification.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusBadRequest)
		return
	}
	handle, err := h.exams.Resume(r.Context(), token)
	if err != nil {
		http.Error(w, "unknown or expired session", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sess, snapshot, err := h.exams.Attach(r.Context(), handle.ResultID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer h.exams.Detach(handle.ResultID)

	events, cancel := sess.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: ev.Type, Payload: ev}:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
				if ev.Type == "finalized" {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	trySend(send, writerDone, outboundMessage[any]{Type: "session", Payload: snapshot})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if done := h.dispatch(r, handle.ResultID, inbound, send, writerDone); done {
			break
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

// dispatch handles one inbound message; it reports true once the session has
// reached a terminal state and the read loop should stop.
func (h *WSHandler) dispatch(r *http.Request, resultID string, inbound inboundMessage, send chan outboundMessage[any], writerDone <-chan struct{}) bool {
	ctx := r.Context()
	switch inbound.Type {
	case "begin":
		// Fire-and-forget: a failed start write must not block entering the exam.
		if err := h.exams.Start(ctx, resultID); err != nil {
			log.Printf("record start for result %s: %v", resultID, err)
		}
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			trySend(send, writerDone, errorMessage("invalid answer payload"))
			return false
		}
		if err := h.exams.SaveChoice(ctx, resultID, payload.QuestionID, payload.AlternativeID); err != nil {
			return h.reportError(err, send, writerDone)
		}
	case "essay":
		var payload essayPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			trySend(send, writerDone, errorMessage("invalid essay payload"))
			return false
		}
		if err := h.exams.SaveEssay(ctx, resultID, payload.QuestionID, payload.Text); err != nil {
			return h.reportError(err, send, writerDone)
		}
	case "advance":
		var payload advancePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			trySend(send, writerDone, errorMessage("invalid advance payload"))
			return false
		}
		index, err := h.exams.Advance(ctx, resultID, payload.To)
		if err != nil {
			return h.reportError(err, send, writerDone)
		}
		trySend(send, writerDone, outboundMessage[any]{Type: "index", Payload: indexPayload{Index: index}})
	case "visibility":
		ev, err := h.exams.ReportHidden(ctx, resultID)
		if err != nil {
			return h.reportError(err, send, writerDone)
		}
		if ev.Type == "finalized" {
			// Sent directly as well: the subscription pump may already be
			// tearing down when the terminal event lands.
			trySend(send, writerDone, outboundMessage[any]{Type: ev.Type, Payload: ev})
			return true
		}
	case "finalize":
		if err := h.exams.Finalize(ctx, resultID, domain.ReasonManual); err != nil {
			return h.reportError(err, send, writerDone)
		}
		trySend(send, writerDone, outboundMessage[any]{Type: "finalized", Payload: app.Event{Type: "finalized", Reason: domain.ReasonManual}})
		return true
	default:
		trySend(send, writerDone, errorMessage("unsupported message type"))
	}
	return false
}

// reportError forwards the error to the client; a finalized session also ends the
// read loop, everything else keeps the sitting alive.
func (h *WSHandler) reportError(err error, send chan outboundMessage[any], writerDone <-chan struct{}) bool {
	trySend(send, writerDone, errorMessage(err.Error()))
	return errors.Is(err, domain.ErrSessionFinalized)
}

// trySend queues an outbound message unless the writer has already exited on a
// broken connection. Dropping is safe there: reads fail right after and the
// handler tears down.
func trySend(send chan outboundMessage[any], writerDone <-chan struct{}, msg outboundMessage[any]) {
	select {
	case send <- msg:
	case <-writerDone:
	}
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}
