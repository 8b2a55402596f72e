package engine

import (
	"errors"
	"io"
	"sync"

	"google.golang.org/genai"
)

// liveStream adapts a genai live session to the LiveSession interface.
// A single read loop translates server messages into typed events.
type liveStream struct {
	session *genai.Session
	events  chan Event
	done    chan struct{}

	mu     sync.Mutex
	err    error
	closed bool
}

func newLiveStream(session *genai.Session) *liveStream {
	s := &liveStream{
		session: session,
		events:  make(chan Event, 32),
		done:    make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *liveStream) Events() <-chan Event {
	return s.events
}

func (s *liveStream) SendText(text string) error {
	return s.session.SendClientContent(clientContentInput(text))
}

func clientContentInput(text string) genai.LiveClientContentInput {
	return genai.LiveClientContentInput{
		Turns:        []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		TurnComplete: genai.Ptr(true),
	}
}

func (s *liveStream) SendAudio(data []byte, mimeType string) error {
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: data, MIMEType: mimeType},
	})
}

func (s *liveStream) SendToolResults(results []ToolResult) error {
	responses := make([]*genai.FunctionResponse, 0, len(results))
	for _, r := range results {
		responses = append(responses, &genai.FunctionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: r.Response,
		})
	}
	return s.session.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: responses,
	})
}

// send delivers an event unless the stream has been closed. Without the
// done case a closed consumer would leave readLoop parked on a full
// events buffer forever.
func (s *liveStream) send(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// readLoop drains server messages until the session ends, fanning each
// message out as one or more typed events.
func (s *liveStream) readLoop() {
	defer close(s.events)

	for {
		msg, err := s.session.Receive()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.setErr(err)
			}
			return
		}
		if msg == nil {
			continue
		}

		if msg.ToolCall != nil && len(msg.ToolCall.FunctionCalls) > 0 {
			calls := make([]ToolCall, 0, len(msg.ToolCall.FunctionCalls))
			for _, fc := range msg.ToolCall.FunctionCalls {
				calls = append(calls, ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
			}
			if !s.send(Event{ToolCalls: calls}) {
				return
			}
		}

		if sc := msg.ServerContent; sc != nil {
			if sc.ModelTurn != nil {
				for _, part := range sc.ModelTurn.Parts {
					if part.InlineData != nil && len(part.InlineData.Data) > 0 {
						ev := Event{Audio: &AudioChunk{
							Data:     part.InlineData.Data,
							MIMEType: part.InlineData.MIMEType,
						}}
						if !s.send(ev) {
							return
						}
					}
				}
			}
			if sc.Interrupted {
				if !s.send(Event{Interrupted: true}) {
					return
				}
			}
			if sc.TurnComplete {
				if !s.send(Event{TurnComplete: true}) {
					return
				}
			}
		}
	}
}

func (s *liveStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil && !s.closed {
		s.err = err
	}
}

func (s *liveStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *liveStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	return s.session.Close()
}
