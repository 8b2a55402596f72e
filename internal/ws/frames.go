// Package ws implements the duplex streaming transport: JSON frames
// over one WebSocket per session.
package ws

import (
	"encoding/base64"

	"github.com/ashureev/kido-tutor/internal/engine"
	"github.com/ashureev/kido-tutor/internal/tutor"
)

// SetupPayload is the required first frame's body.
type SetupPayload struct {
	UserID string `json:"user_id"`
	RunID  string `json:"run_id"`
}

// MediaChunk is one inbound realtime media chunk.
type MediaChunk struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

// RealtimeInput carries inbound media. Only the first chunk is
// consumed per frame.
type RealtimeInput struct {
	MediaChunks []MediaChunk `json:"mediaChunks"`
}

// ClientFrame is any client-to-server frame. Exactly one field is set.
type ClientFrame struct {
	Setup         *SetupPayload  `json:"setup,omitempty"`
	RealtimeInput *RealtimeInput `json:"realtimeInput,omitempty"`
	ClientContent string         `json:"clientContent,omitempty"`
}

// Server-to-client frame shapes. Each frame is a top-level object with
// a single kind.

type inlineData struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

type modelTurnPart struct {
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type modelTurn struct {
	Parts []modelTurnPart `json:"parts"`
}

type serverContent struct {
	ModelTurn    *modelTurn `json:"modelTurn,omitempty"`
	TurnComplete bool       `json:"turnComplete,omitempty"`
	Interrupted  bool       `json:"interrupted,omitempty"`
}

type serverContentFrame struct {
	ServerContent serverContent `json:"serverContent"`
}

type uiFeedbackFrame struct {
	UIFeedback uiFeedbackBody `json:"ui_feedback"`
}

type uiFeedbackBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type imageFrame struct {
	Image imageBody `json:"image"`
}

type imageBody struct {
	URL string `json:"url"`
	Alt string `json:"alt"`
}

type markdownFrame struct {
	Markdown markdownBody `json:"markdown"`
}

type markdownBody struct {
	SectionIndex int    `json:"sectionIndex"`
	Content      string `json:"content"`
}

type toolResponseFrame struct {
	ToolResponse toolResponseBody `json:"toolResponse"`
}

type toolResponseBody struct {
	FunctionResponses []functionResponse `json:"functionResponses"`
}

type functionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
	ID       string         `json:"id,omitempty"`
}

// audioFrame wraps one model audio chunk.
func audioFrame(chunk *engine.AudioChunk) serverContentFrame {
	return serverContentFrame{ServerContent: serverContent{
		ModelTurn: &modelTurn{Parts: []modelTurnPart{{
			InlineData: &inlineData{
				Data:     base64.StdEncoding.EncodeToString(chunk.Data),
				MIMEType: chunk.MIMEType,
			},
		}}},
	}}
}

// turnCompleteFrame is the turn-boundary control marker.
func turnCompleteFrame() serverContentFrame {
	return serverContentFrame{ServerContent: serverContent{
		TurnComplete: true,
		ModelTurn:    &modelTurn{Parts: []modelTurnPart{}},
	}}
}

// interruptedFrame signals a barge-in.
func interruptedFrame() serverContentFrame {
	return serverContentFrame{ServerContent: serverContent{
		Interrupted: true,
		ModelTurn:   &modelTurn{Parts: []modelTurnPart{}},
	}}
}

// effectFrame maps a mediation effect to its frame, or nil for effects
// with no client representation.
func effectFrame(effect tutor.Effect) any {
	switch {
	case effect.UIFeedback != nil:
		return uiFeedbackFrame{UIFeedback: uiFeedbackBody{
			Status:  effect.UIFeedback.Status,
			Message: effect.UIFeedback.Message,
		}}
	case effect.Image != nil:
		return imageFrame{Image: imageBody{
			URL: effect.Image.URL,
			Alt: effect.Image.Alt,
		}}
	case effect.Markdown != nil:
		return markdownFrame{Markdown: markdownBody{
			SectionIndex: effect.Markdown.Index,
			Content:      effect.Markdown.Markdown,
		}}
	case effect.ToolResponse != nil:
		return toolResponseFrame{ToolResponse: toolResponseBody{
			FunctionResponses: []functionResponse{{
				Name:     effect.ToolResponse.Name,
				Response: effect.ToolResponse.Response,
				ID:       effect.ToolResponse.ID,
			}},
		}}
	default:
		return nil
	}
}
