// Package domain defines the core types for lessons, sessions, and
// learning history.
package domain

import (
	"fmt"
	"strings"
)

// Section is one teachable unit of a lesson plan.
type Section struct {
	Title           string `json:"title"`
	DurationMinutes int    `json:"duration_minutes"`
	Content         string `json:"content"`
	Activity        string `json:"activity"`
	ImagePrompt     string `json:"image_prompt,omitempty"`
}

// LessonPlan is the structured output of the planning stage.
type LessonPlan struct {
	Topic              string    `json:"topic"`
	DurationMinutes    int       `json:"duration_minutes"`
	GradeLevel         string    `json:"grade_level"`
	LearningObjectives []string  `json:"learning_objectives"`
	Sections           []Section `json:"sections"`
	WrapUp             Section   `json:"wrap_up"`
}

// Validate checks the structural bounds of a plan. A plan that fails
// validation is rejected whole; no partial plan is ever committed.
func (p *LessonPlan) Validate() error {
	if strings.TrimSpace(p.Topic) == "" {
		return fmt.Errorf("lesson plan: topic is required")
	}
	if len(p.Sections) < 2 {
		return fmt.Errorf("lesson plan: need at least 2 sections, got %d", len(p.Sections))
	}
	if p.DurationMinutes < 5 || p.DurationMinutes > 120 {
		return fmt.Errorf("lesson plan: total duration %d outside [5,120] minutes", p.DurationMinutes)
	}
	for i, sec := range p.Sections {
		if strings.TrimSpace(sec.Title) == "" {
			return fmt.Errorf("lesson plan: section %d has no title", i)
		}
		if sec.DurationMinutes < 1 || sec.DurationMinutes > 60 {
			return fmt.Errorf("lesson plan: section %d duration %d outside [1,60] minutes", i, sec.DurationMinutes)
		}
	}
	if p.WrapUp.DurationMinutes < 1 || p.WrapUp.DurationMinutes > 30 {
		return fmt.Errorf("lesson plan: wrap-up duration %d outside [1,30] minutes", p.WrapUp.DurationMinutes)
	}
	return nil
}

// SectionMarkdown is one entry of the rendered section table. Index is
// the canonical addressing key shared by the cursor, the delivery tool,
// and persisted state.
type SectionMarkdown struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

// NormalizeTopic lowercases a topic and replaces spaces with
// underscores, producing the dedupe key suffix for completed lessons.
func NormalizeTopic(topic string) string {
	return strings.ToLower(strings.ReplaceAll(topic, " ", "_"))
}
