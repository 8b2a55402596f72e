package domain

import (
	"time"
)

// GeneratedImage records one image produced during a session.
type GeneratedImage struct {
	URL       string    `json:"url"`
	Timestamp time.Time `json:"timestamp"`
	Prompt    string    `json:"prompt"`
}

// ResumeCheckpoint snapshots lesson progress so an interrupted lesson
// can be offered for resumption on the next connect.
type ResumeCheckpoint struct {
	Plan         *LessonPlan       `json:"current_lesson_plan"`
	Sections     []SectionMarkdown `json:"parsed_section_markdowns"`
	SectionIndex int               `json:"current_lesson_section_index"`
}

// SessionState is the per-session working state. Every field has a
// typed accessor on Session; components never share ad-hoc keys.
type SessionState struct {
	UserID             string            `json:"user_id"`
	Plan               *LessonPlan       `json:"current_lesson_plan,omitempty"`
	Sections           []SectionMarkdown `json:"parsed_section_markdowns,omitempty"`
	SectionIndex       *int              `json:"current_lesson_section_index,omitempty"`
	LessonContext      string            `json:"lesson_context,omitempty"`
	WelcomeBackMessage string            `json:"welcome_back_message,omitempty"`
	ResumeProgress     *ResumeCheckpoint `json:"resume_lesson_progress,omitempty"`
	LastProgress       *ResumeCheckpoint `json:"user:last_lesson_progress,omitempty"`
	GeneratedImages    []GeneratedImage  `json:"generated_image_urls,omitempty"`
	LastCompletedTopic string            `json:"last_completed_topic,omitempty"`
}

// Session is one live tutoring session. Exactly one session is active
// per connection; its state is mutated only from that connection's
// event loop, so no locking is needed.
type Session struct {
	ID     string
	UserID string
	State  SessionState
}

// NewSession creates an empty session for a user.
func NewSession(id, userID string) *Session {
	return &Session{
		ID:     id,
		UserID: userID,
		State:  SessionState{UserID: userID},
	}
}

// HasLesson reports whether a lesson is currently in progress.
func (s *Session) HasLesson() bool {
	return s.State.Plan != nil
}

// Cursor returns the current section index and whether one is set.
func (s *Session) Cursor() (int, bool) {
	if s.State.SectionIndex == nil {
		return 0, false
	}
	return *s.State.SectionIndex, true
}

// SetCursor sets the section index. The cursor moves only through this
// method, always to an explicitly supplied index.
func (s *Session) SetCursor(index int) {
	s.State.SectionIndex = &index
}

// SectionAt returns the rendered markdown entry for an index.
func (s *Session) SectionAt(index int) (SectionMarkdown, bool) {
	for _, sm := range s.State.Sections {
		if sm.Index == index {
			return sm, true
		}
	}
	return SectionMarkdown{}, false
}

// Checkpoint captures the current lesson progress, or nil when no
// lesson is active.
func (s *Session) Checkpoint() *ResumeCheckpoint {
	if s.State.Plan == nil {
		return nil
	}
	idx := 0
	if s.State.SectionIndex != nil {
		idx = *s.State.SectionIndex
	}
	return &ResumeCheckpoint{
		Plan:         s.State.Plan,
		Sections:     s.State.Sections,
		SectionIndex: idx,
	}
}

// RestoreCheckpoint loads a checkpoint back into the active lesson
// fields and discards the pending welcome-back offer.
func (s *Session) RestoreCheckpoint(cp *ResumeCheckpoint) {
	s.State.Plan = cp.Plan
	s.State.Sections = cp.Sections
	s.SetCursor(cp.SectionIndex)
	s.State.WelcomeBackMessage = ""
	s.State.ResumeProgress = nil
}

// ClearLesson removes every lesson-scoped field. It is the single
// cleanup path for completion and is safe to call when no lesson is
// active.
func (s *Session) ClearLesson() {
	s.State.Plan = nil
	s.State.Sections = nil
	s.State.SectionIndex = nil
	s.State.LessonContext = ""
	s.State.WelcomeBackMessage = ""
	s.State.ResumeProgress = nil
	s.State.LastProgress = nil
}

// AppendImage records a generated image in session state.
func (s *Session) AppendImage(img GeneratedImage) {
	s.State.GeneratedImages = append(s.State.GeneratedImages, img)
}
