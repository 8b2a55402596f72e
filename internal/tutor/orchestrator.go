package tutor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/kido-tutor/internal/domain"
	"github.com/ashureev/kido-tutor/internal/engine"
	"github.com/ashureev/kido-tutor/internal/lesson"
	"github.com/ashureev/kido-tutor/internal/persist"
	"github.com/ashureev/kido-tutor/internal/store"
)

// State is the orchestrator's top-level position in a conversation.
type State int

const (
	StateIdle State = iota
	StateWelcomeCheck
	StatePlanning
	StateDelegated
	StateCompleting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWelcomeCheck:
		return "welcome_check"
	case StatePlanning:
		return "planning"
	case StateDelegated:
		return "delegated"
	case StateCompleting:
		return "completing"
	default:
		return "unknown"
	}
}

// ImageStore persists generated image bytes and returns a client URL.
type ImageStore interface {
	Save(ctx context.Context, data []byte, mimeType string) (string, error)
}

// ImageGenerator produces image bytes from a prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, string, error)
}

const imageFailureMessage = "I had trouble creating that image. Let me try to explain with words instead!"

// Orchestrator owns one session's conversation flow: it routes tool
// calls to the lesson pipeline, the delivery cursor, and the history
// side channel, and turns their outcomes into state mutations,
// persistence writes, and client effects.
type Orchestrator struct {
	session  *domain.Session
	delivery *Delivery
	state    State
	pipeline *lesson.Pipeline
	gateway  *persist.Gateway
	images   ImageStore
	imageGen ImageGenerator
	logger   *slog.Logger
}

// NewOrchestrator creates the orchestrator for a resolved session. A
// pending welcome-back offer starts the machine in WelcomeCheck.
func NewOrchestrator(sess *domain.Session, pipeline *lesson.Pipeline, gateway *persist.Gateway, images ImageStore, imageGen ImageGenerator, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	state := StateIdle
	delivery := NewDelivery()
	if sess.State.WelcomeBackMessage != "" {
		state = StateWelcomeCheck
	} else if sess.HasLesson() {
		state = StateDelegated
	}

	return &Orchestrator{
		session:  sess,
		delivery: delivery,
		state:    state,
		pipeline: pipeline,
		gateway:  gateway,
		images:   images,
		imageGen: imageGen,
		logger:   logger,
	}
}

// State returns the current orchestrator state.
func (o *Orchestrator) State() State {
	return o.state
}

// Session returns the session this orchestrator drives.
func (o *Orchestrator) Session() *domain.Session {
	return o.session
}

// DeliveryPhase returns the delivery cursor's phase.
func (o *Orchestrator) DeliveryPhase() Phase {
	return o.delivery.Phase()
}

// HandleToolCalls mediates a batch of tool calls from one model turn.
// It returns the results to send back to the model and the effects to
// surface to the client, in call order.
func (o *Orchestrator) HandleToolCalls(ctx context.Context, calls []engine.ToolCall) ([]engine.ToolResult, []Effect) {
	results := make([]engine.ToolResult, 0, len(calls))
	var effects []Effect

	for _, call := range calls {
		result, callEffects := o.handleToolCall(ctx, call)
		results = append(results, result)
		effects = append(effects, callEffects...)
	}

	return results, effects
}

func (o *Orchestrator) handleToolCall(ctx context.Context, call engine.ToolCall) (engine.ToolResult, []Effect) {
	kind, ok := ParseToolKind(call.Name)
	if !ok {
		// Outside the closed set: pass through untouched.
		o.logger.Debug("unrecognized tool, passing through", "tool", call.Name)
		result := engine.ToolResult{ID: call.ID, Name: call.Name, Response: map[string]any{}}
		return result, []Effect{{ToolResponse: &result}}
	}

	switch kind {
	case ToolCreateLesson:
		return o.handleCreateLesson(ctx, call)
	case ToolCompleteLesson:
		return o.handleCompleteLesson(call)
	case ToolLearningHistory:
		return o.handleLearningHistory(ctx, call)
	case ToolSendSection:
		return o.handleSendSection(call)
	case ToolGenerateImage:
		return o.handleGenerateImage(ctx, call)
	case ToolSignalUIFeedback:
		return o.handleSignalUIFeedback(call)
	default:
		result := engine.ToolResult{ID: call.ID, Name: call.Name, Response: map[string]any{}}
		return result, []Effect{{ToolResponse: &result}}
	}
}

// handleCreateLesson runs the pipeline as one atomic tool call.
func (o *Orchestrator) handleCreateLesson(ctx context.Context, call engine.ToolCall) (engine.ToolResult, []Effect) {
	topic, _ := call.Args["topic"].(string)

	effects := []Effect{{UIFeedback: &UIFeedback{
		Status:  "thinking",
		Message: "I'm planning a new lesson for you...",
	}}}

	// A lesson request while a resume offer is pending discards the offer.
	if o.state == StateWelcomeCheck {
		o.session.State.WelcomeBackMessage = ""
		o.session.State.ResumeProgress = nil
	}
	o.state = StatePlanning

	result, err := o.pipeline.Run(ctx, lesson.Request{UserID: o.session.UserID, Topic: topic})
	if err != nil {
		o.logger.Warn("lesson pipeline failed",
			"user_id", o.session.UserID,
			"topic", topic,
			"error", err)
		o.state = StateIdle
		res := engine.ToolResult{ID: call.ID, Name: call.Name, Response: map[string]any{
			"status":  "error",
			"message": "I couldn't put that lesson together. Let's try a different topic or try again.",
		}}
		return res, append(effects, Effect{ToolResponse: &res})
	}

	o.session.State.Plan = result.Plan
	o.session.State.Sections = result.Sections
	o.session.SetCursor(0)
	o.delivery.Reset()
	o.state = StateDelegated

	idx := 0
	o.gateway.SaveLessonState(o.session.UserID, &store.LessonDocument{
		Plan:         result.Plan,
		Sections:     result.Sections,
		SectionIndex: &idx,
		LastUpdated:  time.Now().Unix(),
	})

	res := engine.ToolResult{ID: call.ID, Name: call.Name, Response: map[string]any{
		"status":             "success",
		"message":            "Lesson plan and presentation are ready.",
		"ready_for_delivery": true,
		"lesson_context":     LessonContext(o.session),
	}}
	return res, append(effects, Effect{ToolResponse: &res})
}

// handleCompleteLesson is the structural completion signal: archiving,
// state clearing, and the transition back to Idle all happen here and
// nowhere else.
func (o *Orchestrator) handleCompleteLesson(call engine.ToolCall) (engine.ToolResult, []Effect) {
	o.state = StateCompleting

	if plan := o.session.State.Plan; plan != nil {
		o.session.State.LastCompletedTopic = plan.Topic
		o.gateway.SaveCompletedLesson(domain.NewCompletedLesson(o.session.UserID, plan))
		o.logger.Info("lesson archived",
			"user_id", o.session.UserID,
			"topic", plan.Topic)
	}

	// Same key set cleared whether or not a plan was present.
	o.session.ClearLesson()
	o.delivery.Complete()

	o.gateway.SaveLessonState(o.session.UserID, &store.LessonDocument{
		LastUpdated: time.Now().Unix(),
	})
	o.gateway.SaveSessionState(o.session.ID, o.session.State)

	o.state = StateIdle

	res := engine.ToolResult{ID: call.ID, Name: call.Name, Response: map[string]any{
		"status":  "success",
		"message": "Lesson state has been cleared.",
	}}
	return res, []Effect{{ToolResponse: &res}}
}

// handleLearningHistory is a side-channel read; it never touches the
// cursor or the plan.
func (o *Orchestrator) handleLearningHistory(ctx context.Context, call engine.ToolCall) (engine.ToolResult, []Effect) {
	summary := o.historySummary(ctx)
	res := engine.ToolResult{ID: call.ID, Name: call.Name, Response: map[string]any{
		"summary": summary,
	}}
	return res, []Effect{{ToolResponse: &res}}
}

func (o *Orchestrator) historySummary(ctx context.Context) string {
	if o.session.UserID == "" {
		return "I can't seem to find your user profile to check your history."
	}

	lessons, err := o.gateway.ListCompletedLessons(ctx, o.session.UserID)
	if err != nil {
		o.logger.Warn("history lookup failed", "user_id", o.session.UserID, "error", err)
		return "I couldn't reach your learning history right now. Let's try again in a moment."
	}
	if len(lessons) == 0 {
		return "You haven't completed any lessons yet. What would you like to learn about first?"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You have completed %d lesson(s) so far! Great job!\n\nHere are the topics you've mastered:\n", len(lessons))
	for _, l := range lessons {
		fmt.Fprintf(&b, "- %s (on %s)\n", l.Topic, l.CompletionDate.Format("2006-01-02"))
	}
	return strings.TrimRight(b.String(), "\n")
}

// handleSendSection moves the delivery cursor to the tool-supplied
// index, records the resume checkpoint, and enqueues both lesson and
// full-session persistence.
func (o *Orchestrator) handleSendSection(call engine.ToolCall) (engine.ToolResult, []Effect) {
	index, ok := intArg(call.Args, "section_index")
	markdown, _ := call.Args["markdown_content"].(string)

	if !ok {
		o.logger.Warn("section delivery without index", "user_id", o.session.UserID)
		res := engine.ToolResult{ID: call.ID, Name: call.Name, Response: map[string]any{
			"status":  "error",
			"message": "section_index is required",
		}}
		return res, []Effect{{ToolResponse: &res}}
	}

	// A delivery call while a resume offer is pending means the user
	// chose to continue.
	if o.state == StateWelcomeCheck {
		if cp := o.session.State.ResumeProgress; cp != nil && !o.session.HasLesson() {
			o.session.RestoreCheckpoint(cp)
		}
		o.session.State.WelcomeBackMessage = ""
		o.state = StateDelegated
	}

	// Prefer the canonical table content when the index is in range.
	if sm, found := o.session.SectionAt(index); found {
		markdown = sm.Markdown
	}

	// Checkpoint mirrors the pre-advance plan and cursor.
	if cp := o.session.Checkpoint(); cp != nil {
		o.session.State.LastProgress = cp
	}

	newlyEntered := o.delivery.Advance(o.session, index)

	idx := index
	o.gateway.SaveLessonState(o.session.UserID, &store.LessonDocument{
		Plan:         o.session.State.Plan,
		Sections:     o.session.State.Sections,
		SectionIndex: &idx,
		LastUpdated:  time.Now().Unix(),
	})
	o.gateway.SaveSessionState(o.session.ID, o.session.State)

	res := engine.ToolResult{ID: call.ID, Name: call.Name, Response: map[string]any{
		"status":           "success",
		"section_index":    index,
		"markdown_content": markdown,
	}}

	if !newlyEntered {
		return res, nil
	}
	return res, []Effect{{Markdown: &SectionNotice{Index: index, Markdown: markdown}}}
}

// handleGenerateImage runs image generation end to end. Failure is
// converted into an apology payload and never into a protocol error.
func (o *Orchestrator) handleGenerateImage(ctx context.Context, call engine.ToolCall) (engine.ToolResult, []Effect) {
	prompt, _ := call.Args["prompt"].(string)

	url, err := o.generateAndStoreImage(ctx, prompt)
	if err != nil {
		o.logger.Warn("image generation failed",
			"user_id", o.session.UserID,
			"error", err)
		res := engine.ToolResult{ID: call.ID, Name: call.Name, Response: map[string]any{
			"status":  "error",
			"message": imageFailureMessage,
		}}
		return res, []Effect{{ToolResponse: &res}}
	}

	o.session.AppendImage(domain.GeneratedImage{
		URL:       url,
		Timestamp: time.Now().UTC(),
		Prompt:    prompt,
	})

	res := engine.ToolResult{ID: call.ID, Name: call.Name, Response: map[string]any{
		"status":    "success",
		"message":   "Image generated successfully and is now visible to the student.",
		"image_url": url,
	}}
	return res, []Effect{{Image: &ImageNotice{URL: url, Alt: "Generated image"}}}
}

func (o *Orchestrator) generateAndStoreImage(ctx context.Context, prompt string) (string, error) {
	if o.imageGen == nil || o.images == nil {
		return "", fmt.Errorf("image generation is not configured")
	}
	data, mimeType, err := o.imageGen.GenerateImage(ctx, prompt)
	if err != nil {
		return "", err
	}
	url, err := o.images.Save(ctx, data, mimeType)
	if err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return url, nil
}

func (o *Orchestrator) handleSignalUIFeedback(call engine.ToolCall) (engine.ToolResult, []Effect) {
	status, _ := call.Args["status"].(string)
	message, _ := call.Args["message"].(string)
	if status == "" {
		status = "thinking"
	}
	if message == "" {
		message = "Please wait..."
	}

	res := engine.ToolResult{ID: call.ID, Name: call.Name, Response: map[string]any{
		"status": "signal_received",
	}}
	return res, []Effect{{UIFeedback: &UIFeedback{Status: status, Message: message}}}
}

// intArg reads an integer tool argument, tolerating the float64 shape
// JSON decoding produces.
func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
