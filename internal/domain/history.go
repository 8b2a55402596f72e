package domain

import (
	"time"
)

// CompletedLesson is one learning-history entry. Entries are keyed by
// (user_id, normalized topic) so repeating a topic never produces a
// duplicate record.
type CompletedLesson struct {
	UserID             string    `json:"user_id"`
	Topic              string    `json:"topic"`
	GradeLevel         string    `json:"grade_level"`
	DurationMinutes    int       `json:"duration_minutes"`
	LearningObjectives []string  `json:"learning_objectives"`
	CompletionDate     time.Time `json:"completion_date"`
	SectionsCount      int       `json:"sections_count"`
}

// DocID returns the dedupe key for storage.
func (c *CompletedLesson) DocID() string {
	return c.UserID + "_" + NormalizeTopic(c.Topic)
}

// NewCompletedLesson snapshots a plan into a history entry.
func NewCompletedLesson(userID string, plan *LessonPlan) *CompletedLesson {
	return &CompletedLesson{
		UserID:             userID,
		Topic:              plan.Topic,
		GradeLevel:         plan.GradeLevel,
		DurationMinutes:    plan.DurationMinutes,
		LearningObjectives: plan.LearningObjectives,
		CompletionDate:     time.Now().UTC(),
		SectionsCount:      len(plan.Sections),
	}
}

// LearningProfile is a synthesis of a user's completed lessons, used
// to plan repeated topics at elevated difficulty.
type LearningProfile struct {
	CompletedTopics []string
	GradeLevel      string
	TotalLessons    int
}

// HasCompleted reports whether the profile already contains a topic,
// compared under topic normalization.
func (p *LearningProfile) HasCompleted(topic string) bool {
	want := NormalizeTopic(topic)
	for _, t := range p.CompletedTopics {
		if NormalizeTopic(t) == want {
			return true
		}
	}
	return false
}
