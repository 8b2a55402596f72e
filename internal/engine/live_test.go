package engine

import (
	"testing"
	"time"

	"google.golang.org/genai"
)

func TestClientContentInput(t *testing.T) {
	t.Parallel()

	input := clientContentInput("hello there")

	if input.TurnComplete == nil || !*input.TurnComplete {
		t.Error("client content must mark the turn complete")
	}
	if len(input.Turns) != 1 {
		t.Fatalf("turns = %d, want 1", len(input.Turns))
	}
	turn := input.Turns[0]
	if turn.Role != string(genai.RoleUser) {
		t.Errorf("role = %q, want user", turn.Role)
	}
	if len(turn.Parts) != 1 || turn.Parts[0].Text != "hello there" {
		t.Errorf("parts = %+v", turn.Parts)
	}
}

func TestLiveStream_SendStopsOnClose(t *testing.T) {
	t.Parallel()

	s := &liveStream{
		events: make(chan Event, 1),
		done:   make(chan struct{}),
	}
	s.events <- Event{TurnComplete: true} // fill the buffer

	delivered := make(chan bool, 1)
	go func() {
		delivered <- s.send(Event{Interrupted: true})
	}()

	select {
	case ok := <-delivered:
		t.Fatalf("send returned %v before close with a full buffer", ok)
	case <-time.After(50 * time.Millisecond):
	}

	close(s.done)

	select {
	case ok := <-delivered:
		if ok {
			t.Error("send after close should report failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send stayed blocked after close")
	}
}
