package lesson

import (
	"fmt"
	"strings"

	"github.com/ashureev/kido-tutor/internal/domain"
)

const plannerInstruction = `You are an expert educational content creator specializing in lessons for kids aged 6-10.

Create an engaging, age-appropriate 15-30 minute lesson plan for the requested topic.

Guidance:
- Topic: extract the core subject from the request.
- Duration: provide a realistic total duration and one per section.
- Learning objectives: concise, measurable goals.
- Sections: distinct parts like Introduction, Main Content, and Practice.
- Activity: an interactive task for each section.
- Image prompt: a creative, child-friendly image prompt for each section and the wrap-up.
- Wrap-up: summarize the lesson and suggest a concluding activity.`

const plannerAdvancedNote = `The student has already completed a lesson on this topic. Create a more
advanced lesson: do not repeat the basic concepts, introduce new and more
complex ideas, and begin the first section's content by acknowledging the
student's progress.`

const presentationInstruction = `You are a presentation assistant. Convert the lesson plan JSON below into
a clear, engaging Markdown presentation for students.

Requirements:
- Output ONLY the Markdown text.
- Educational content only: never include image prompts or technical details.
- Use ## headings for sections and bullet points for key concepts.
- Open the first section with the lesson title and objectives, then
  separate each section and the wrap-up with a line containing only "---".
- Produce exactly one segment per section plus one for the wrap-up.
- After each section heading add <span data-section-index="N"></span>,
  numbering sections from 0 and giving the wrap-up the section count.`

// plannerPrompt renders the stage-1 prompt. A learning profile with the
// requested topic already completed elevates the plan difficulty.
func plannerPrompt(topic string, profile *domain.LearningProfile) string {
	var b strings.Builder
	b.WriteString(plannerInstruction)
	b.WriteString("\n\nRequested topic: ")
	b.WriteString(topic)

	if profile != nil && profile.TotalLessons > 0 {
		fmt.Fprintf(&b, "\n\nStudent profile: grade level %q, %d lessons completed, prior topics: %s.",
			profile.GradeLevel, profile.TotalLessons, strings.Join(profile.CompletedTopics, ", "))
		if profile.HasCompleted(topic) {
			b.WriteString("\n\n")
			b.WriteString(plannerAdvancedNote)
		}
	}

	return b.String()
}

// presentationPrompt renders the stage-2 prompt from the validated plan.
func presentationPrompt(planJSON string, sectionCount int) string {
	var b strings.Builder
	b.WriteString(presentationInstruction)
	fmt.Fprintf(&b, "\n\nThe plan has %d sections; the wrap-up is section index %d.", sectionCount, sectionCount)
	b.WriteString("\n\nLesson plan JSON:\n")
	b.WriteString(planJSON)
	return b.String()
}
