// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/kido-tutor/internal/domain"
)

// LessonDocument is the persisted lesson progress for a user.
// Keyed by user_id; last-write-wins.
type LessonDocument struct {
	Plan         *domain.LessonPlan
	Sections     []domain.SectionMarkdown
	SectionIndex *int
	LastUpdated  int64
}

// SessionDocument is the persisted full-session snapshot.
// Keyed by app_name + "__" + user_id.
type SessionDocument struct {
	SessionID string
	State     domain.SessionState
}

// Repository defines the interface for persisting lesson and session state.
type Repository interface {
	// GetLessonState retrieves the persisted lesson document for a user.
	// Returns (nil, nil) when none exists.
	GetLessonState(ctx context.Context, userID string) (*LessonDocument, error)

	// SaveLessonState creates or replaces the lesson document for a user.
	SaveLessonState(ctx context.Context, userID string, doc *LessonDocument) error

	// GetSessionState retrieves the persisted session snapshot by its
	// document key. Returns (nil, nil) when none exists.
	GetSessionState(ctx context.Context, docID string) (*SessionDocument, error)

	// SaveSessionState creates or replaces the session snapshot.
	SaveSessionState(ctx context.Context, docID string, doc *SessionDocument) error

	// SaveCompletedLesson archives a completed lesson. Re-archiving the
	// same (user, topic) replaces the existing entry instead of adding one.
	SaveCompletedLesson(ctx context.Context, lesson *domain.CompletedLesson) error

	// ListCompletedLessons retrieves all history entries for a user.
	ListCompletedLessons(ctx context.Context, userID string) ([]*domain.CompletedLesson, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
