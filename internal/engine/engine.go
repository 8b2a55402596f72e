// Package engine abstracts the model collaborators: the live duplex
// conversation, structured text generation, and image generation.
package engine

import (
	"context"
)

// AudioChunk is one piece of model audio output.
type AudioChunk struct {
	Data     []byte
	MIMEType string
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult is the mediated outcome of a tool call, sent back to the
// model and mirrored to the client.
type ToolResult struct {
	ID       string
	Name     string
	Response map[string]any
}

// Event is one unit of live-session output. Exactly one field group is
// populated per event: audio, tool calls, or a turn-boundary flag.
type Event struct {
	Audio        *AudioChunk
	ToolCalls    []ToolCall
	TurnComplete bool
	Interrupted  bool
}

// LiveSession is a connected duplex conversation with the model.
type LiveSession interface {
	// Events returns the output stream. The channel closes when the
	// session ends; Err reports why.
	Events() <-chan Event

	// SendText submits a user text turn.
	SendText(text string) error

	// SendAudio submits one chunk of realtime user audio.
	SendAudio(data []byte, mimeType string) error

	// SendToolResults returns mediated tool outcomes to the model so it
	// can continue the turn.
	SendToolResults(results []ToolResult) error

	// Err returns the terminal error after Events closes, nil on a
	// clean shutdown.
	Err() error

	// Close tears the session down.
	Close() error
}

// LiveConfig carries the per-connection conversation setup.
type LiveConfig struct {
	SystemInstruction string
	Tools             []ToolSpec
}

// ToolSpec declares one callable function to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]ParamSpec
	Required    []string
}

// ParamSpec describes one tool parameter.
type ParamSpec struct {
	Type        string // "string" or "integer"
	Description string
}

// Engine is the full model-collaborator surface.
type Engine interface {
	// ConnectLive opens a duplex conversation.
	ConnectLive(ctx context.Context, cfg LiveConfig) (LiveSession, error)

	// GeneratePlanJSON produces a schema-constrained lesson plan as a
	// JSON document.
	GeneratePlanJSON(ctx context.Context, prompt string) (string, error)

	// GenerateText produces free-form text from a prompt.
	GenerateText(ctx context.Context, prompt string) (string, error)

	// GenerateImage produces raw image bytes and their MIME type.
	GenerateImage(ctx context.Context, prompt string) ([]byte, string, error)
}
