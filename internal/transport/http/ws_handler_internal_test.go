package http

import (
	"testing"
	"time"
)

func TestTrySendDeliversWhileWriterLives(t *testing.T) {
	send := make(chan outboundMessage[any], 1)
	writerDone := make(chan struct{})

	trySend(send, writerDone, errorMessage("queued"))
	select {
	case msg := <-send:
		if msg.Type != "error" {
			t.Fatalf("unexpected message %+v", msg)
		}
	default:
		t.Fatalf("message not queued")
	}
}

func TestTrySendDoesNotBlockOnDeadWriter(t *testing.T) {
	send := make(chan outboundMessage[any], 1)
	writerDone := make(chan struct{})
	send <- errorMessage("fills the buffer")
	close(writerDone)

	done := make(chan struct{})
	go func() {
		trySend(send, writerDone, errorMessage("dropped"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("send blocked with the writer gone")
	}
}
