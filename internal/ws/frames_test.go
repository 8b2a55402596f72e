package ws

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/ashureev/kido-tutor/internal/engine"
	"github.com/ashureev/kido-tutor/internal/tutor"
)

func TestClientFrameClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		raw   string
		check func(t *testing.T, f ClientFrame)
	}{
		{
			name: "setup frame",
			raw:  `{"setup":{"user_id":"user-1","run_id":"run-1"}}`,
			check: func(t *testing.T, f ClientFrame) {
				if f.Setup == nil || f.Setup.UserID != "user-1" || f.Setup.RunID != "run-1" {
					t.Errorf("setup = %+v", f.Setup)
				}
			},
		},
		{
			name: "realtime input frame",
			raw:  `{"realtimeInput":{"mediaChunks":[{"data":"QUJD","mimeType":"audio/pcm"}]}}`,
			check: func(t *testing.T, f ClientFrame) {
				if f.RealtimeInput == nil || len(f.RealtimeInput.MediaChunks) != 1 {
					t.Fatalf("realtimeInput = %+v", f.RealtimeInput)
				}
				chunk := f.RealtimeInput.MediaChunks[0]
				if chunk.Data != "QUJD" || chunk.MIMEType != "audio/pcm" {
					t.Errorf("chunk = %+v", chunk)
				}
			},
		},
		{
			name: "client content frame",
			raw:  `{"clientContent":"teach me about planets"}`,
			check: func(t *testing.T, f ClientFrame) {
				if f.ClientContent != "teach me about planets" {
					t.Errorf("clientContent = %q", f.ClientContent)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var frame ClientFrame
			if err := json.Unmarshal([]byte(tt.raw), &frame); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			tt.check(t, frame)
		})
	}
}

func TestAudioFrame(t *testing.T) {
	t.Parallel()

	frame := audioFrame(&engine.AudioChunk{Data: []byte{1, 2, 3}, MIMEType: "audio/pcm"})
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	sc, ok := decoded["serverContent"].(map[string]any)
	if !ok {
		t.Fatalf("frame = %s", data)
	}
	mt := sc["modelTurn"].(map[string]any)
	parts := mt["parts"].([]any)
	inline := parts[0].(map[string]any)["inlineData"].(map[string]any)
	if inline["data"] != base64.StdEncoding.EncodeToString([]byte{1, 2, 3}) {
		t.Errorf("audio payload = %v", inline["data"])
	}
	if inline["mimeType"] != "audio/pcm" {
		t.Errorf("mimeType = %v", inline["mimeType"])
	}
}

func TestControlFrames(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(turnCompleteFrame())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"serverContent":{"modelTurn":{"parts":[]},"turnComplete":true}}` {
		t.Errorf("turnComplete frame = %s", data)
	}

	data, err = json.Marshal(interruptedFrame())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"serverContent":{"modelTurn":{"parts":[]},"interrupted":true}}` {
		t.Errorf("interrupted frame = %s", data)
	}
}

func TestEffectFrame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		effect tutor.Effect
		want   string
	}{
		{
			name:   "ui feedback",
			effect: tutor.Effect{UIFeedback: &tutor.UIFeedback{Status: "thinking", Message: "Please wait..."}},
			want:   `{"ui_feedback":{"status":"thinking","message":"Please wait..."}}`,
		},
		{
			name:   "image",
			effect: tutor.Effect{Image: &tutor.ImageNotice{URL: "/images/a.png", Alt: "Generated image"}},
			want:   `{"image":{"url":"/images/a.png","alt":"Generated image"}}`,
		},
		{
			name:   "markdown",
			effect: tutor.Effect{Markdown: &tutor.SectionNotice{Index: 2, Markdown: "## Wrap Up"}},
			want:   `{"markdown":{"sectionIndex":2,"content":"## Wrap Up"}}`,
		},
		{
			name: "tool response",
			effect: tutor.Effect{ToolResponse: &engine.ToolResult{
				ID:       "call-1",
				Name:     "complete_lesson_func",
				Response: map[string]any{"status": "success"},
			}},
			want: `{"toolResponse":{"functionResponses":[{"name":"complete_lesson_func","response":{"status":"success"},"id":"call-1"}]}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			frame := effectFrame(tt.effect)
			if frame == nil {
				t.Fatal("effectFrame returned nil for populated effect")
			}
			data, err := json.Marshal(frame)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("frame = %s, want %s", data, tt.want)
			}
		})
	}

	if frame := effectFrame(tutor.Effect{}); frame != nil {
		t.Errorf("empty effect should map to nil, got %v", frame)
	}
}
