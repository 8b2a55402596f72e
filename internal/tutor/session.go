package tutor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ashureev/kido-tutor/internal/domain"
	"github.com/ashureev/kido-tutor/internal/persist"
)

// Manager resolves sessions by user. Resolution is idempotent: the
// same user always gets the same live session back, and a fresh
// session is seeded from the durable store before use.
type Manager struct {
	gateway *persist.Gateway
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*domain.Session
}

// NewManager creates a session manager.
func NewManager(gateway *persist.Gateway, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		gateway:  gateway,
		logger:   logger,
		sessions: make(map[string]*domain.Session),
	}
}

// ResolveOrCreate looks up the user's session, creating and restoring
// one on miss. Lookup or restore failures fall back to a fresh
// session; identity is forced authoritative after any restore.
func (m *Manager) ResolveOrCreate(ctx context.Context, userID string) (*domain.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.sessions[userID]; ok {
		return sess, nil
	}

	sess := domain.NewSession(uuid.NewString(), userID)
	m.restore(ctx, sess)

	// Restored data must never override identity.
	sess.UserID = userID
	sess.State.UserID = userID

	m.sessions[userID] = sess
	return sess, nil
}

// Drop removes a session from the registry. Durable state survives for
// the next resolve.
func (m *Manager) Drop(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

// restore performs the read-through: the session snapshot first, then
// the lesson document on top of it, then the welcome-back offer.
func (m *Manager) restore(ctx context.Context, sess *domain.Session) {
	userID := sess.UserID

	sessionDoc, err := m.gateway.LoadSessionState(ctx, userID)
	if err != nil {
		m.logger.Warn("session state load failed, starting fresh",
			"user_id", userID,
			"error", err)
	} else if sessionDoc != nil {
		sess.State = sessionDoc.State
		m.logger.Info("restored session state", "user_id", userID)
	}

	lessonDoc, err := m.gateway.LoadLessonState(ctx, userID)
	if err != nil {
		m.logger.Warn("lesson state load failed, starting fresh",
			"user_id", userID,
			"error", err)
		lessonDoc = nil
	}

	var lastTopic string
	var lastProgress *domain.ResumeCheckpoint

	if lessonDoc != nil && lessonDoc.Plan != nil {
		// An actual lesson in progress wins over any stale snapshot.
		sess.State.Plan = lessonDoc.Plan
		sess.State.Sections = lessonDoc.Sections
		sess.State.SectionIndex = lessonDoc.SectionIndex

		idx := 0
		if lessonDoc.SectionIndex != nil {
			idx = *lessonDoc.SectionIndex
		}
		lastTopic = lessonDoc.Plan.Topic
		lastProgress = &domain.ResumeCheckpoint{
			Plan:         lessonDoc.Plan,
			Sections:     lessonDoc.Sections,
			SectionIndex: idx,
		}
		m.logger.Info("restored lesson state",
			"user_id", userID,
			"topic", lastTopic,
			"section_index", idx)
	} else if cp := sess.State.LastProgress; cp != nil && cp.Plan != nil {
		lastTopic = cp.Plan.Topic
		lastProgress = cp
	}

	if lastTopic != "" {
		sess.State.WelcomeBackMessage = fmt.Sprintf(
			"Hey, you were learning %s last time. Would you like to continue?", lastTopic)
		sess.State.ResumeProgress = lastProgress
	}
}
