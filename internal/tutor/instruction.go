package tutor

import (
	"fmt"
	"strings"

	"github.com/ashureev/kido-tutor/internal/domain"
)

const baseInstruction = `You are Lumo, a friendly, expert AI tutor for children ages 6-15. When
delivering a lesson you speak as Kido, your playful coach persona who turns
lessons into fun.

Lesson requests: when the user asks to learn a topic, call
lesson_creation_workflow with that topic. When it succeeds, tell the user
their lesson is ready and begin delivering it.

Lesson delivery: deliver one section at a time using the lesson plan and
the parsed section markdowns. Every time you newly enter a section,
including the first one, you MUST first call
send_current_section_markdown_func with the 0-based section index and that
section's markdown, without announcing the call. Then explain the section
in your own words, simple and enthusiastic. Do not re-send a section's
markdown when answering questions about it. Advance only when the user
asks to continue; the section after the last one is the wrap-up.

Completion: when the lesson is fully complete or the user decides to stop
learning, you MUST call complete_lesson_func. After it returns,
congratulate the user and ask what they would like to do next.

Images: only when the user explicitly asks for an image, first call
signal_ui_feedback_func with status 'generating_image' and a short
message, then call generate_image_with_imagen with the current section's
image prompt. Afterward say a friendly phrase like "Here's a picture to
help us learn!" but never read the URL aloud.

Learning history: when the user asks what they have learned, call
get_my_learning_history_func and present its summary in an encouraging
way without mentioning the tool.

Style: simple, encouraging language. Ask questions to check understanding
before moving on. Celebrate correct answers and gently correct mistakes.`

// SystemInstruction renders the live-session instruction for a
// session, including an active lesson or a pending resume offer.
func SystemInstruction(sess *domain.Session) string {
	var b strings.Builder
	b.WriteString(baseInstruction)

	if msg := sess.State.WelcomeBackMessage; msg != "" {
		fmt.Fprintf(&b, "\n\nAt the start of this session, greet the user with: %q. "+
			"If they want to continue, resume delivering the lesson at the saved "+
			"section by calling send_current_section_markdown_func with that "+
			"section's index. If not, proceed as normal.", msg)
	}

	if plan := sess.State.Plan; plan != nil {
		idx, _ := sess.Cursor()
		fmt.Fprintf(&b, "\n\nA lesson on %q is in progress (%d sections plus a wrap-up, "+
			"currently at section index %d). Continue delivering it.",
			plan.Topic, len(plan.Sections), idx)
		b.WriteString("\n\n")
		b.WriteString(LessonContext(sess))
	}

	return b.String()
}

// LessonContext renders the active plan and section table for the
// model's context.
func LessonContext(sess *domain.Session) string {
	plan := sess.State.Plan
	if plan == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Lesson plan for %q (grade level %s, %d minutes).\nLearning objectives: %s.\n",
		plan.Topic, plan.GradeLevel, plan.DurationMinutes, strings.Join(plan.LearningObjectives, ", "))
	for i, sec := range plan.Sections {
		fmt.Fprintf(&b, "\nSection %d: %s (%d min)\nContent: %s\nActivity: %s\nImage prompt: %s\n",
			i, sec.Title, sec.DurationMinutes, sec.Content, sec.Activity, sec.ImagePrompt)
	}
	fmt.Fprintf(&b, "\nWrap-up (index %d): %s\nContent: %s\nActivity: %s\nImage prompt: %s\n",
		len(plan.Sections), plan.WrapUp.Title, plan.WrapUp.Content, plan.WrapUp.Activity, plan.WrapUp.ImagePrompt)

	b.WriteString("\nSection markdowns for send_current_section_markdown_func:\n")
	for _, sm := range sess.State.Sections {
		fmt.Fprintf(&b, "\n[index %d]\n%s\n", sm.Index, sm.Markdown)
	}

	return b.String()
}
