package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/kido-tutor/internal/domain"
	"github.com/ashureev/kido-tutor/internal/engine"
	"github.com/ashureev/kido-tutor/internal/lesson"
	"github.com/ashureev/kido-tutor/internal/persist"
	"github.com/ashureev/kido-tutor/internal/store"
	"github.com/ashureev/kido-tutor/internal/tutor"
)

// fakeRepo is an in-memory store.Repository.
type fakeRepo struct {
	mu        sync.Mutex
	lessons   map[string]*store.LessonDocument
	sessions  map[string]*store.SessionDocument
	completed map[string]*domain.CompletedLesson
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		lessons:   make(map[string]*store.LessonDocument),
		sessions:  make(map[string]*store.SessionDocument),
		completed: make(map[string]*domain.CompletedLesson),
	}
}

func (f *fakeRepo) GetLessonState(_ context.Context, userID string) (*store.LessonDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lessons[userID], nil
}

func (f *fakeRepo) SaveLessonState(_ context.Context, userID string, doc *store.LessonDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lessons[userID] = doc
	return nil
}

func (f *fakeRepo) GetSessionState(_ context.Context, docID string) (*store.SessionDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[docID], nil
}

func (f *fakeRepo) SaveSessionState(_ context.Context, docID string, doc *store.SessionDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[docID] = doc
	return nil
}

func (f *fakeRepo) SaveCompletedLesson(_ context.Context, l *domain.CompletedLesson) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[l.DocID()] = l
	return nil
}

func (f *fakeRepo) ListCompletedLessons(_ context.Context, userID string) ([]*domain.CompletedLesson, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.CompletedLesson
	for _, l := range f.completed {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeRepo) Ping(context.Context) error { return nil }
func (f *fakeRepo) Close() error               { return nil }

// fakeLive is a scripted live session driven by the test.
type fakeLive struct {
	events      chan engine.Event
	toolResults chan []engine.ToolResult
	closeOnce   sync.Once

	mu    sync.Mutex
	texts []string
	audio [][]byte
}

func newFakeLive() *fakeLive {
	return &fakeLive{
		events:      make(chan engine.Event, 16),
		toolResults: make(chan []engine.ToolResult, 16),
	}
}

func (f *fakeLive) Events() <-chan engine.Event { return f.events }

func (f *fakeLive) SendText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeLive) SendAudio(data []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, data)
	return nil
}

func (f *fakeLive) SendToolResults(results []engine.ToolResult) error {
	f.toolResults <- results
	return nil
}

func (f *fakeLive) Err() error { return nil }

func (f *fakeLive) Close() error {
	f.closeOnce.Do(func() { close(f.events) })
	return nil
}

// fakeEngine scripts the model collaborators. Each live connection
// takes the next queued fakeLive, so reconnect tests can hand every
// handler its own scripted session.
type fakeEngine struct {
	mu           sync.Mutex
	queue        []*fakeLive
	planJSON     string
	presentation string
}

func (f *fakeEngine) pushLive(live *fakeLive) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, live)
}

func (f *fakeEngine) ConnectLive(context.Context, engine.LiveConfig) (engine.LiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return newFakeLive(), nil
	}
	live := f.queue[0]
	f.queue = f.queue[1:]
	return live, nil
}

func (f *fakeEngine) GeneratePlanJSON(context.Context, string) (string, error) {
	return f.planJSON, nil
}

func (f *fakeEngine) GenerateText(context.Context, string) (string, error) {
	return f.presentation, nil
}

func (f *fakeEngine) GenerateImage(context.Context, string) ([]byte, string, error) {
	return []byte("png"), "image/png", nil
}

type fakeImages struct{}

func (fakeImages) Save(context.Context, []byte, string) (string, error) {
	return "/images/test.png", nil
}

func planetsPlanJSON(t *testing.T) string {
	t.Helper()
	plan := domain.LessonPlan{
		Topic:           "Planets",
		DurationMinutes: 20,
		GradeLevel:      "Ages 6-10",
		Sections: []domain.Section{
			{Title: "Introduction", DurationMinutes: 5},
			{Title: "Inner Planets", DurationMinutes: 5},
			{Title: "Outer Planets", DurationMinutes: 5},
		},
		WrapUp: domain.Section{Title: "Wrap Up", DurationMinutes: 5},
	}
	data, err := json.Marshal(plan)
	if err != nil {
		t.Fatalf("marshal plan: %v", err)
	}
	return string(data)
}

type wsRig struct {
	repo     *fakeRepo
	live     *fakeLive
	eng      *fakeEngine
	sessions *tutor.Manager
	handler  *Handler
	srv      *httptest.Server
}

func newWSRig(t *testing.T) *wsRig {
	t.Helper()

	repo := newFakeRepo()
	gateway := persist.NewGateway(repo, "kido-app-462308", 64, nil)
	go persist.DrainResults(gateway.Results(), nil)
	t.Cleanup(func() { _ = gateway.Close() })

	live := newFakeLive()
	eng := &fakeEngine{
		queue:        []*fakeLive{live},
		planJSON:     planetsPlanJSON(t),
		presentation: "## Intro\n---\n## Inner\n---\n## Outer\n---\n## Wrap Up",
	}

	pipeline := lesson.NewPipeline(eng, nil, nil)
	sessions := tutor.NewManager(gateway, nil)
	handler := NewHandler(eng, sessions, pipeline, gateway, fakeImages{}, NewRegistry(), "", true)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &wsRig{repo: repo, live: live, eng: eng, sessions: sessions, handler: handler, srv: srv}
}

func (r *wsRig) dial(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(r.srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func sendJSON(t *testing.T, ctx context.Context, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame map[string]json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal frame %s: %v", data, err)
	}
	return frame
}

func awaitToolResults(t *testing.T, live *fakeLive) []engine.ToolResult {
	t.Helper()
	select {
	case results := <-live.toolResults:
		return results
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tool results")
		return nil
	}
}

func TestHandler_RejectsMissingSetup(t *testing.T) {
	t.Parallel()

	rig := newWSRig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := rig.dial(t, ctx)
	sendJSON(t, ctx, conn, map[string]any{"clientContent": "hello"})

	_, _, err := conn.Read(ctx)
	if err == nil {
		t.Fatal("expected close after missing setup frame")
	}
	if status := websocket.CloseStatus(err); status != StatusMissingSetup {
		t.Errorf("close status = %d, want %d", status, StatusMissingSetup)
	}
}

func TestHandler_RejectsInvalidUserID(t *testing.T) {
	t.Parallel()

	rig := newWSRig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := rig.dial(t, ctx)
	sendJSON(t, ctx, conn, map[string]any{"setup": map[string]any{"user_id": "../etc/passwd"}})

	_, _, err := conn.Read(ctx)
	if status := websocket.CloseStatus(err); status != StatusMissingSetup {
		t.Errorf("close status = %d, want %d", status, StatusMissingSetup)
	}
}

func TestHandler_LessonScenario(t *testing.T) {
	t.Parallel()

	rig := newWSRig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn := rig.dial(t, ctx)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "done") }()

	sendJSON(t, ctx, conn, map[string]any{"setup": map[string]any{"user_id": "user-1", "run_id": "run-1"}})

	// The model asks for a lesson on Planets.
	rig.live.events <- engine.Event{ToolCalls: []engine.ToolCall{{
		ID:   "call-1",
		Name: "lesson_creation_workflow",
		Args: map[string]any{"topic": "Planets"},
	}}}

	frame := readFrame(t, ctx, conn)
	if _, ok := frame["ui_feedback"]; !ok {
		t.Fatalf("first frame = %v, want ui_feedback", frame)
	}
	frame = readFrame(t, ctx, conn)
	if _, ok := frame["toolResponse"]; !ok {
		t.Fatalf("second frame = %v, want toolResponse", frame)
	}

	results := awaitToolResults(t, rig.live)
	if len(results) != 1 || results[0].Response["status"] != "success" {
		t.Fatalf("tool results = %+v", results)
	}

	// Section 0 is delivered.
	rig.live.events <- engine.Event{ToolCalls: []engine.ToolCall{{
		ID:   "call-2",
		Name: "send_current_section_markdown_func",
		Args: map[string]any{"section_index": 0, "markdown_content": "ignored"},
	}}}

	frame = readFrame(t, ctx, conn)
	var md struct {
		SectionIndex int    `json:"sectionIndex"`
		Content      string `json:"content"`
	}
	raw, ok := frame["markdown"]
	if !ok {
		t.Fatalf("frame = %v, want markdown", frame)
	}
	if err := json.Unmarshal(raw, &md); err != nil {
		t.Fatalf("unmarshal markdown: %v", err)
	}
	if md.SectionIndex != 0 || md.Content != "## Intro" {
		t.Errorf("markdown = %+v", md)
	}
	awaitToolResults(t, rig.live)

	// The model advances to section 1.
	rig.live.events <- engine.Event{ToolCalls: []engine.ToolCall{{
		ID:   "call-3",
		Name: "send_current_section_markdown_func",
		Args: map[string]any{"section_index": 1},
	}}}

	frame = readFrame(t, ctx, conn)
	if err := json.Unmarshal(frame["markdown"], &md); err != nil {
		t.Fatalf("unmarshal markdown: %v", err)
	}
	if md.SectionIndex != 1 || md.Content != "## Inner" {
		t.Errorf("markdown = %+v", md)
	}
	awaitToolResults(t, rig.live)

	// Audio passes straight through.
	rig.live.events <- engine.Event{Audio: &engine.AudioChunk{Data: []byte{1}, MIMEType: "audio/pcm"}}
	frame = readFrame(t, ctx, conn)
	if _, ok := frame["serverContent"]; !ok {
		t.Fatalf("frame = %v, want serverContent", frame)
	}

	// The model completes the lesson.
	rig.live.events <- engine.Event{ToolCalls: []engine.ToolCall{{
		ID:   "call-4",
		Name: "complete_lesson_func",
	}}}

	frame = readFrame(t, ctx, conn)
	if _, ok := frame["toolResponse"]; !ok {
		t.Fatalf("frame = %v, want toolResponse", frame)
	}
	results = awaitToolResults(t, rig.live)
	if results[0].Response["message"] != "Lesson state has been cleared." {
		t.Errorf("completion response = %+v", results[0].Response)
	}

	// The session no longer carries a lesson; the archive recorded it.
	sess, err := rig.sessions.ResolveOrCreate(ctx, "user-1")
	if err != nil {
		t.Fatalf("resolve session: %v", err)
	}
	if sess.HasLesson() {
		t.Error("completion must clear the lesson")
	}
	if sess.State.LastCompletedTopic != "Planets" {
		t.Errorf("last completed topic = %q", sess.State.LastCompletedTopic)
	}
}

func TestHandler_SetupHandshakeTimesOut(t *testing.T) {
	t.Parallel()

	rig := newWSRig(t)
	rig.handler.setupTimeout = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Connect and never send a setup frame.
	conn := rig.dial(t, ctx)
	_, _, err := conn.Read(ctx)
	if err == nil {
		t.Fatal("expected close after the setup handshake deadline")
	}
	if status := websocket.CloseStatus(err); status != StatusMissingSetup {
		t.Errorf("close status = %d, want %d", status, StatusMissingSetup)
	}
}

func TestHandler_ReconnectTakesOverSession(t *testing.T) {
	t.Parallel()

	rig := newWSRig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn1 := rig.dial(t, ctx)
	sendJSON(t, ctx, conn1, map[string]any{"setup": map[string]any{"user_id": "user-1"}})

	// Drive one tool call through the first connection so its loops are
	// provably running before the reconnect.
	rig.live.events <- engine.Event{ToolCalls: []engine.ToolCall{{
		ID:   "call-1",
		Name: "signal_ui_feedback_func",
		Args: map[string]any{"status": "thinking", "message": "warming up"},
	}}}
	readFrame(t, ctx, conn1) // ui_feedback
	readFrame(t, ctx, conn1) // toolResponse
	awaitToolResults(t, rig.live)

	second := newFakeLive()
	rig.eng.pushLive(second)

	conn2 := rig.dial(t, ctx)
	defer func() { _ = conn2.Close(websocket.StatusNormalClosure, "done") }()
	sendJSON(t, ctx, conn2, map[string]any{"setup": map[string]any{"user_id": "user-1"}})

	// The replaced connection is closed by the server.
	for {
		_, _, err := conn1.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure {
				t.Errorf("first connection close status = %d", status)
			}
			break
		}
	}

	// The new connection owns the session and serves tool calls.
	second.events <- engine.Event{ToolCalls: []engine.ToolCall{{
		ID:   "call-2",
		Name: "get_my_learning_history_func",
	}}}
	frame := readFrame(t, ctx, conn2)
	if _, ok := frame["toolResponse"]; !ok {
		t.Fatalf("frame = %v, want toolResponse", frame)
	}
	results := awaitToolResults(t, second)
	if len(results) != 1 || results[0].Response["summary"] == "" {
		t.Fatalf("tool results = %+v", results)
	}
}

func TestHandler_ForwardsClientInput(t *testing.T) {
	t.Parallel()

	rig := newWSRig(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := rig.dial(t, ctx)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "done") }()

	sendJSON(t, ctx, conn, map[string]any{"setup": map[string]any{"user_id": "user-1"}})
	sendJSON(t, ctx, conn, map[string]any{"clientContent": "teach me about planets"})
	sendJSON(t, ctx, conn, map[string]any{"realtimeInput": map[string]any{
		"mediaChunks": []map[string]any{{"data": "QUJD"}},
	}})

	deadline := time.After(2 * time.Second)
	for {
		rig.live.mu.Lock()
		texts, audio := len(rig.live.texts), len(rig.live.audio)
		rig.live.mu.Unlock()
		if texts == 1 && audio == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("forwarded input not observed: texts=%d audio=%d", texts, audio)
		case <-time.After(10 * time.Millisecond):
		}
	}

	rig.live.mu.Lock()
	defer rig.live.mu.Unlock()
	if rig.live.texts[0] != "teach me about planets" {
		t.Errorf("text = %q", rig.live.texts[0])
	}
	if string(rig.live.audio[0]) != "ABC" {
		t.Errorf("audio = %q", rig.live.audio[0])
	}
}
