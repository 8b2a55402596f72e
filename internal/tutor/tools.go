// Package tutor implements the orchestration core: the tool mediation
// layer, the delivery cursor, the orchestrator state machine, and the
// session manager.
package tutor

import (
	"github.com/ashureev/kido-tutor/internal/engine"
)

// ToolKind is the closed set of tools the mediation layer understands.
// Dispatch goes through ParseToolKind so an unrecognized name can only
// ever take the pass-through path.
type ToolKind int

const (
	ToolUnknown ToolKind = iota
	ToolCreateLesson
	ToolCompleteLesson
	ToolLearningHistory
	ToolSendSection
	ToolGenerateImage
	ToolSignalUIFeedback
)

// Wire names of the tools as declared to the model.
const (
	toolNameCreateLesson     = "lesson_creation_workflow"
	toolNameCompleteLesson   = "complete_lesson_func"
	toolNameLearningHistory  = "get_my_learning_history_func"
	toolNameSendSection      = "send_current_section_markdown_func"
	toolNameGenerateImage    = "generate_image_with_imagen"
	toolNameSignalUIFeedback = "signal_ui_feedback_func"
)

// ParseToolKind maps a wire name to its ToolKind. ok is false for
// names outside the closed set.
func ParseToolKind(name string) (ToolKind, bool) {
	switch name {
	case toolNameCreateLesson:
		return ToolCreateLesson, true
	case toolNameCompleteLesson:
		return ToolCompleteLesson, true
	case toolNameLearningHistory:
		return ToolLearningHistory, true
	case toolNameSendSection:
		return ToolSendSection, true
	case toolNameGenerateImage:
		return ToolGenerateImage, true
	case toolNameSignalUIFeedback:
		return ToolSignalUIFeedback, true
	default:
		return ToolUnknown, false
	}
}

// String returns the wire name of the tool kind.
func (k ToolKind) String() string {
	switch k {
	case ToolCreateLesson:
		return toolNameCreateLesson
	case ToolCompleteLesson:
		return toolNameCompleteLesson
	case ToolLearningHistory:
		return toolNameLearningHistory
	case ToolSendSection:
		return toolNameSendSection
	case ToolGenerateImage:
		return toolNameGenerateImage
	case ToolSignalUIFeedback:
		return toolNameSignalUIFeedback
	default:
		return "unknown"
	}
}

// ToolSpecs declares the tool surface exposed to the live model.
func ToolSpecs() []engine.ToolSpec {
	return []engine.ToolSpec{
		{
			Name:        toolNameCreateLesson,
			Description: "Plans a lesson on a topic and prepares its presentation in one step. Call this when the user asks to learn something.",
			Parameters: map[string]engine.ParamSpec{
				"topic": {Type: "string", Description: "The subject the user wants to learn about."},
			},
			Required: []string{"topic"},
		},
		{
			Name:        toolNameCompleteLesson,
			Description: "Archives the finished lesson and clears lesson state. Call this without arguments when the lesson is fully completed or the user decides to stop learning.",
		},
		{
			Name:        toolNameLearningHistory,
			Description: "Retrieves the user's completed lesson history. Call this when the user asks what they have learned.",
		},
		{
			Name:        toolNameSendSection,
			Description: "Sends the current section's presentation markdown to the student's screen. Call this exactly once each time a section is newly entered.",
			Parameters: map[string]engine.ParamSpec{
				"section_index":    {Type: "integer", Description: "The 0-based index of the section being delivered."},
				"markdown_content": {Type: "string", Description: "The section's markdown from the presentation table."},
			},
			Required: []string{"section_index", "markdown_content"},
		},
		{
			Name:        toolNameGenerateImage,
			Description: "Generates an illustrative image from a descriptive prompt. Use the current section's image prompt.",
			Parameters: map[string]engine.ParamSpec{
				"prompt": {Type: "string", Description: "A descriptive text prompt for the image."},
			},
			Required: []string{"prompt"},
		},
		{
			Name:        toolNameSignalUIFeedback,
			Description: "Signals a UI feedback state to the frontend, for example status 'generating_image' before generating an image.",
			Parameters: map[string]engine.ParamSpec{
				"status":  {Type: "string", Description: "The UI state to show, such as 'generating_image' or 'thinking'."},
				"message": {Type: "string", Description: "A short message to display while waiting."},
			},
			Required: []string{"status", "message"},
		},
	}
}

// UIFeedback is a frontend state signal surfaced to the client.
type UIFeedback struct {
	Status  string
	Message string
}

// ImageNotice announces a completed image generation.
type ImageNotice struct {
	URL string
	Alt string
}

// SectionNotice carries a newly delivered section to the client.
type SectionNotice struct {
	Index    int
	Markdown string
}

// Effect is one client-visible outcome of mediating a tool call.
// Exactly one field is set per effect.
type Effect struct {
	UIFeedback   *UIFeedback
	Image        *ImageNotice
	Markdown     *SectionNotice
	ToolResponse *engine.ToolResult
}
