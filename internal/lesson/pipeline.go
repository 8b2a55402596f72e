// Package lesson implements the two-stage plan-and-present pipeline.
package lesson

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/kido-tutor/internal/domain"
)

// Generator produces the two pipeline stages.
type Generator interface {
	// GeneratePlanJSON returns a lesson plan as a JSON document.
	GeneratePlanJSON(ctx context.Context, prompt string) (string, error)

	// GenerateText returns free-form text.
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// ProfileSource supplies the learning profile consulted before
// planning. Absence of a profile is the default new-topic path.
type ProfileSource interface {
	LearningProfile(ctx context.Context, userID string) (*domain.LearningProfile, error)
}

// SchemaError reports a plan that failed structural validation. The
// pipeline fails closed; no partial plan is ever returned.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string {
	return "lesson plan schema validation failed: " + e.Reason
}

// SegmentCountError reports a presentation whose segment count does
// not line up with the plan's sections, which would mis-address every
// downstream cursor operation.
type SegmentCountError struct {
	Want int
	Got  int
}

func (e *SegmentCountError) Error() string {
	return fmt.Sprintf("presentation produced %d segments, plan requires %d", e.Got, e.Want)
}

// Request identifies one pipeline run.
type Request struct {
	UserID string
	Topic  string
}

// Result is a fully validated lesson ready for delivery.
type Result struct {
	Plan         *domain.LessonPlan
	Presentation string
	Sections     []domain.SectionMarkdown
}

// Pipeline runs planning, presentation, and segmentation as one
// atomic unit.
type Pipeline struct {
	gen      Generator
	profiles ProfileSource
	logger   *slog.Logger
}

// NewPipeline creates a pipeline. profiles may be nil, in which case
// every run takes the new-topic path.
func NewPipeline(gen Generator, profiles ProfileSource, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{gen: gen, profiles: profiles, logger: logger}
}

// Run executes both stages and segments the result.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	profile := p.lookupProfile(ctx, req.UserID)

	planJSON, err := p.gen.GeneratePlanJSON(ctx, plannerPrompt(req.Topic, profile))
	if err != nil {
		return nil, fmt.Errorf("plan generation: %w", err)
	}

	var plan domain.LessonPlan
	if err := json.Unmarshal([]byte(planJSON), &plan); err != nil {
		return nil, &SchemaError{Reason: err.Error()}
	}
	if err := plan.Validate(); err != nil {
		return nil, &SchemaError{Reason: err.Error()}
	}

	presentation, err := p.gen.GenerateText(ctx, presentationPrompt(planJSON, len(plan.Sections)))
	if err != nil {
		return nil, fmt.Errorf("presentation generation: %w", err)
	}

	sections := Segment(presentation)
	if want := len(plan.Sections) + 1; len(sections) != want {
		return nil, &SegmentCountError{Want: want, Got: len(sections)}
	}

	p.logger.Info("lesson pipeline completed",
		"user_id", req.UserID,
		"topic", plan.Topic,
		"sections", len(plan.Sections))

	return &Result{Plan: &plan, Presentation: presentation, Sections: sections}, nil
}

// lookupProfile loads the learning profile, tolerating absence and
// lookup failures.
func (p *Pipeline) lookupProfile(ctx context.Context, userID string) *domain.LearningProfile {
	if p.profiles == nil || userID == "" {
		return nil
	}
	profile, err := p.profiles.LearningProfile(ctx, userID)
	if err != nil {
		p.logger.Warn("learning profile lookup failed, planning without it",
			"user_id", userID,
			"error", err)
		return nil
	}
	return profile
}

// Segment splits a presentation on "---" delimiters into the section
// table. Empty segments are dropped; surviving segments get sequential
// indices from 0.
func Segment(presentation string) []domain.SectionMarkdown {
	parts := strings.Split(presentation, "---")
	sections := make([]domain.SectionMarkdown, 0, len(parts))
	for _, part := range parts {
		content := strings.TrimSpace(part)
		if content == "" {
			continue
		}
		sections = append(sections, domain.SectionMarkdown{
			Index:    len(sections),
			Markdown: content,
		})
	}
	return sections
}
