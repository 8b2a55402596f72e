package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/kido-tutor/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	sessionMu sync.Mutex // serializes session snapshot writes to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS lessons (
		user_id TEXT PRIMARY KEY,
		plan_json TEXT,
		sections_json TEXT,
		section_index INTEGER,
		last_updated INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		doc_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		state_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS completed_lessons (
		doc_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		topic TEXT NOT NULL,
		grade_level TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL,
		objectives_json TEXT NOT NULL,
		completion_date INTEGER NOT NULL,
		sections_count INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_completed_user ON completed_lessons(user_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetLessonState retrieves the persisted lesson document for a user.
func (s *SQLiteStore) GetLessonState(ctx context.Context, userID string) (*LessonDocument, error) {
	query := `
		SELECT plan_json, sections_json, section_index, last_updated
		FROM lessons WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var doc LessonDocument
	var planJSON, sectionsJSON sql.NullString
	var sectionIndex sql.NullInt64

	err := row.Scan(&planJSON, &sectionsJSON, &sectionIndex, &doc.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan lesson row: %w", err)
	}

	if planJSON.Valid && planJSON.String != "" {
		var plan domain.LessonPlan
		if err := json.Unmarshal([]byte(planJSON.String), &plan); err != nil {
			return nil, fmt.Errorf("decode lesson plan: %w", err)
		}
		doc.Plan = &plan
	}
	if sectionsJSON.Valid && sectionsJSON.String != "" {
		if err := json.Unmarshal([]byte(sectionsJSON.String), &doc.Sections); err != nil {
			return nil, fmt.Errorf("decode section table: %w", err)
		}
	}
	if sectionIndex.Valid {
		idx := int(sectionIndex.Int64)
		doc.SectionIndex = &idx
	}

	return &doc, nil
}

// SaveLessonState creates or replaces the lesson document for a user.
func (s *SQLiteStore) SaveLessonState(ctx context.Context, userID string, doc *LessonDocument) error {
	query := `
	INSERT INTO lessons (user_id, plan_json, sections_json, section_index, last_updated)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		plan_json = excluded.plan_json,
		sections_json = excluded.sections_json,
		section_index = excluded.section_index,
		last_updated = excluded.last_updated`

	var planJSON, sectionsJSON, sectionIndex interface{}
	if doc.Plan != nil {
		b, err := json.Marshal(doc.Plan)
		if err != nil {
			return fmt.Errorf("encode lesson plan: %w", err)
		}
		planJSON = string(b)
	}
	if doc.Sections != nil {
		b, err := json.Marshal(doc.Sections)
		if err != nil {
			return fmt.Errorf("encode section table: %w", err)
		}
		sectionsJSON = string(b)
	}
	if doc.SectionIndex != nil {
		sectionIndex = *doc.SectionIndex
	}

	lastUpdated := doc.LastUpdated
	if lastUpdated == 0 {
		lastUpdated = time.Now().Unix()
	}

	return s.withRetry(ctx, "save lesson state", userID, func() error {
		_, err := s.db.ExecContext(ctx, query, userID, planJSON, sectionsJSON, sectionIndex, lastUpdated)
		if err != nil {
			return fmt.Errorf("upsert lesson: %w", err)
		}
		return nil
	})
}

// GetSessionState retrieves the persisted session snapshot by document key.
func (s *SQLiteStore) GetSessionState(ctx context.Context, docID string) (*SessionDocument, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	query := `SELECT session_id, state_json FROM sessions WHERE doc_id = ?`
	row := s.db.QueryRowContext(ctx, query, docID)

	var doc SessionDocument
	var stateJSON string

	err := row.Scan(&doc.SessionID, &stateJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &doc.State); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}

	return &doc, nil
}

// SaveSessionState creates or replaces the session snapshot.
func (s *SQLiteStore) SaveSessionState(ctx context.Context, docID string, doc *SessionDocument) error {
	stateJSON, err := json.Marshal(doc.State)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}

	query := `
	INSERT INTO sessions (doc_id, session_id, state_json, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(doc_id) DO UPDATE SET
		session_id = excluded.session_id,
		state_json = excluded.state_json,
		updated_at = excluded.updated_at`

	return s.withRetry(ctx, "save session state", docID, func() error {
		s.sessionMu.Lock()
		defer s.sessionMu.Unlock()
		_, err := s.db.ExecContext(ctx, query, docID, doc.SessionID, string(stateJSON), time.Now().Unix())
		if err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}
		return nil
	})
}

// SaveCompletedLesson archives a completed lesson, replacing any
// existing entry for the same (user, topic) key.
func (s *SQLiteStore) SaveCompletedLesson(ctx context.Context, lesson *domain.CompletedLesson) error {
	objectivesJSON, err := json.Marshal(lesson.LearningObjectives)
	if err != nil {
		return fmt.Errorf("encode objectives: %w", err)
	}

	query := `
	INSERT INTO completed_lessons (
		doc_id, user_id, topic, grade_level, duration_minutes,
		objectives_json, completion_date, sections_count
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(doc_id) DO UPDATE SET
		grade_level = excluded.grade_level,
		duration_minutes = excluded.duration_minutes,
		objectives_json = excluded.objectives_json,
		completion_date = excluded.completion_date,
		sections_count = excluded.sections_count`

	return s.withRetry(ctx, "save completed lesson", lesson.UserID, func() error {
		_, err := s.db.ExecContext(ctx, query,
			lesson.DocID(), lesson.UserID, lesson.Topic, lesson.GradeLevel,
			lesson.DurationMinutes, string(objectivesJSON),
			lesson.CompletionDate.Unix(), lesson.SectionsCount,
		)
		if err != nil {
			return fmt.Errorf("upsert completed lesson: %w", err)
		}
		return nil
	})
}

// ListCompletedLessons retrieves all history entries for a user, most
// recent first.
func (s *SQLiteStore) ListCompletedLessons(ctx context.Context, userID string) ([]*domain.CompletedLesson, error) {
	query := `
		SELECT user_id, topic, grade_level, duration_minutes,
		       objectives_json, completion_date, sections_count
		FROM completed_lessons WHERE user_id = ?
		ORDER BY completion_date DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query completed lessons: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close completed lessons rows", "error", closeErr)
		}
	}()

	var lessons []*domain.CompletedLesson
	for rows.Next() {
		var lesson domain.CompletedLesson
		var objectivesJSON string
		var completionDate int64

		if err := rows.Scan(
			&lesson.UserID, &lesson.Topic, &lesson.GradeLevel,
			&lesson.DurationMinutes, &objectivesJSON,
			&completionDate, &lesson.SectionsCount,
		); err != nil {
			return nil, fmt.Errorf("scan completed lesson row: %w", err)
		}

		if err := json.Unmarshal([]byte(objectivesJSON), &lesson.LearningObjectives); err != nil {
			return nil, fmt.Errorf("decode objectives: %w", err)
		}
		lesson.CompletionDate = time.Unix(completionDate, 0).UTC()
		lessons = append(lessons, &lesson)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completed lessons: %w", err)
	}

	return lessons, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// withRetry runs a write with exponential backoff on SQLITE_BUSY.
func (s *SQLiteStore) withRetry(ctx context.Context, op, key string, fn func() error) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if !isBusyError(err) {
			return err
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
			slog.Debug("sqlite busy, retrying",
				"op", op,
				"key", key,
				"attempt", i+1,
				"delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("%s for %s after %d attempts: %w", op, key, maxRetries, err)
}

// isBusyError reports whether the error is a SQLite concurrency error
// worth retrying.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY") ||
		strings.Contains(err.Error(), "database is locked")
}
