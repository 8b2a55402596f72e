package tutor

import (
	"context"

	"github.com/ashureev/kido-tutor/internal/domain"
	"github.com/ashureev/kido-tutor/internal/persist"
)

// ProfileSource synthesizes a learning profile from completed lessons.
// It satisfies the lesson pipeline's profile lookup.
type ProfileSource struct {
	gateway *persist.Gateway
}

// NewProfileSource creates a profile source over the gateway.
func NewProfileSource(gateway *persist.Gateway) *ProfileSource {
	return &ProfileSource{gateway: gateway}
}

// LearningProfile aggregates a user's history: their topics, the grade
// level they appear at most often, and the lesson count. An empty
// history yields a default profile, not an error.
func (p *ProfileSource) LearningProfile(ctx context.Context, userID string) (*domain.LearningProfile, error) {
	lessons, err := p.gateway.ListCompletedLessons(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile := &domain.LearningProfile{
		GradeLevel:   "Ages 6-10",
		TotalLessons: len(lessons),
	}
	if len(lessons) == 0 {
		return profile, nil
	}

	gradeCounts := make(map[string]int)
	for _, l := range lessons {
		profile.CompletedTopics = append(profile.CompletedTopics, l.Topic)
		if l.GradeLevel != "" {
			gradeCounts[l.GradeLevel]++
		}
	}

	best := 0
	for grade, count := range gradeCounts {
		if count > best {
			best = count
			profile.GradeLevel = grade
		}
	}

	return profile, nil
}
