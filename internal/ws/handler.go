package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/kido-tutor/internal/engine"
	"github.com/ashureev/kido-tutor/internal/identity"
	"github.com/ashureev/kido-tutor/internal/lesson"
	"github.com/ashureev/kido-tutor/internal/persist"
	"github.com/ashureev/kido-tutor/internal/tutor"
)

// StatusMissingSetup closes a connection whose handshake had no usable
// setup frame.
const StatusMissingSetup websocket.StatusCode = 4000

// Handler upgrades connections and runs one duplex session per client.
type Handler struct {
	eng           engine.Engine
	sessions      *tutor.Manager
	pipeline      *lesson.Pipeline
	gateway       *persist.Gateway
	images        tutor.ImageStore
	registry      *Registry
	allowedOrigin string
	isDev         bool
	setupTimeout  time.Duration
}

// NewHandler creates the WebSocket session handler.
func NewHandler(eng engine.Engine, sessions *tutor.Manager, pipeline *lesson.Pipeline, gateway *persist.Gateway, images tutor.ImageStore, registry *Registry, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		eng:           eng,
		sessions:      sessions,
		pipeline:      pipeline,
		gateway:       gateway,
		images:        images,
		registry:      registry,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		setupTimeout:  10 * time.Second,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.Info("WebSocket connection request", "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := conn.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	setup, err := h.readSetup(ctx, conn)
	if err != nil {
		slog.Warn("Setup handshake failed", "error", err)
		_ = conn.Close(StatusMissingSetup, err.Error())
		return
	}
	userID := setup.UserID
	slog.Info("Client connected", "user_id", userID, "run_id", setup.RunID)

	// The session state bag has a single owner at a time. Registering
	// closes any previous connection, but its loops may still be inside
	// a tool call, so take over only after its done signal.
	done := make(chan struct{})
	defer close(done)
	prevDone := h.registry.Register(userID, conn, done)
	defer h.registry.Unregister(userID, conn)
	if prevDone != nil {
		select {
		case <-prevDone:
		case <-ctx.Done():
			return
		}
	}

	sess, err := h.sessions.ResolveOrCreate(ctx, userID)
	if err != nil {
		slog.Error("Session resolution failed", "error", err, "user_id", userID)
		return
	}

	orch := tutor.NewOrchestrator(sess, h.pipeline, h.gateway, h.images, h.eng, nil)

	live, err := h.eng.ConnectLive(ctx, engine.LiveConfig{
		SystemInstruction: tutor.SystemInstruction(sess),
		Tools:             tutor.ToolSpecs(),
	})
	if err != nil {
		slog.Error("Failed to connect live session", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := live.Close(); closeErr != nil {
			slog.Debug("Failed to close live session", "error", closeErr, "user_id", userID)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)

	// Input loop: client frames -> live session.
	go func() {
		defer wg.Done()
		defer cancel()
		h.inputLoop(ctx, conn, live, userID)
	}()

	// Output loop: live events -> mediation -> client frames.
	go func() {
		defer wg.Done()
		defer cancel()
		h.outputLoop(ctx, conn, live, orch, userID)
	}()

	wg.Wait()

	// Best-effort checkpoint so a reconnect can offer to resume.
	h.gateway.SaveSessionState(sess.ID, sess.State)

	slog.Info("Tutoring session ended",
		"user_id", userID,
		"state", orch.State().String())
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// readSetup consumes the mandatory first frame. The read is bounded so
// a client that connects and never speaks cannot pin the handler.
func (h *Handler) readSetup(ctx context.Context, conn *websocket.Conn) (*SetupPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, h.setupTimeout)
	defer cancel()

	_, message, err := conn.Read(ctx)
	if err != nil {
		return nil, errSetupRead
	}

	var frame ClientFrame
	if err := json.Unmarshal(message, &frame); err != nil || frame.Setup == nil {
		return nil, errNoSetup
	}

	userID := identity.SanitizeUserID(frame.Setup.UserID)
	if userID == "" {
		return nil, errNoUserID
	}

	return &SetupPayload{
		UserID: userID,
		RunID:  identity.SanitizeRunID(frame.Setup.RunID),
	}, nil
}

func (h *Handler) inputLoop(ctx context.Context, conn *websocket.Conn, live engine.LiveSession, userID string) {
	slog.Debug("Starting input loop", "user_id", userID)
	for {
		_, message, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			slog.Warn("Unparseable client frame", "user_id", userID, "error", err)
			continue
		}

		switch {
		case frame.RealtimeInput != nil:
			if len(frame.RealtimeInput.MediaChunks) == 0 {
				slog.Warn("realtimeInput without media chunks", "user_id", userID)
				continue
			}
			// Only the first chunk per frame is consumed.
			chunk := frame.RealtimeInput.MediaChunks[0]
			data, err := base64.StdEncoding.DecodeString(chunk.Data)
			if err != nil {
				slog.Warn("Invalid media chunk encoding", "user_id", userID, "error", err)
				continue
			}
			mimeType := chunk.MIMEType
			if mimeType == "" {
				mimeType = "audio/pcm"
			}
			if err := live.SendAudio(data, mimeType); err != nil {
				slog.Warn("Failed to forward audio", "error", err, "user_id", userID)
				return
			}

		case frame.ClientContent != "":
			if err := live.SendText(frame.ClientContent); err != nil {
				slog.Warn("Failed to forward text", "error", err, "user_id", userID)
				return
			}

		default:
			slog.Debug("Ignoring unexpected client frame", "user_id", userID)
		}
	}
}

func (h *Handler) outputLoop(ctx context.Context, conn *websocket.Conn, live engine.LiveSession, orch *tutor.Orchestrator, userID string) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-live.Events():
			if !ok {
				if err := live.Err(); err != nil {
					slog.Warn("Live session ended with error", "error", err, "user_id", userID)
				}
				return
			}
			if err := h.handleEvent(ctx, conn, live, orch, event); err != nil {
				if ctx.Err() == nil {
					slog.Warn("Failed to handle live event", "error", err, "user_id", userID)
				}
				return
			}
		}
	}
}

func (h *Handler) handleEvent(ctx context.Context, conn *websocket.Conn, live engine.LiveSession, orch *tutor.Orchestrator, event engine.Event) error {
	switch {
	case event.Audio != nil:
		return h.writeFrame(ctx, conn, audioFrame(event.Audio))

	case len(event.ToolCalls) > 0:
		results, effects := orch.HandleToolCalls(ctx, event.ToolCalls)
		for _, effect := range effects {
			frame := effectFrame(effect)
			if frame == nil {
				continue
			}
			if err := h.writeFrame(ctx, conn, frame); err != nil {
				return err
			}
		}
		return live.SendToolResults(results)

	case event.Interrupted:
		return h.writeFrame(ctx, conn, interruptedFrame())

	case event.TurnComplete:
		return h.writeFrame(ctx, conn, turnCompleteFrame())

	default:
		return nil
	}
}

func (h *Handler) writeFrame(ctx context.Context, conn *websocket.Conn, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
