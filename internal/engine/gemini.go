package engine

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiConfig selects the models behind each Engine operation.
type GeminiConfig struct {
	APIKey      string
	LiveModel   string
	LessonModel string
	ImageModel  string
	VoiceName   string
}

// GeminiEngine implements Engine on the Gemini API.
type GeminiEngine struct {
	client *genai.Client
	cfg    GeminiConfig
}

// NewGemini creates a Gemini-backed engine.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*GeminiEngine, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiEngine{client: client, cfg: cfg}, nil
}

// ConnectLive opens a duplex audio conversation with tool declarations.
func (e *GeminiEngine) ConnectLive(ctx context.Context, cfg LiveConfig) (LiveSession, error) {
	connectCfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
	}

	if cfg.SystemInstruction != "" {
		connectCfg.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}
	if e.cfg.VoiceName != "" {
		connectCfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: e.cfg.VoiceName},
			},
		}
	}
	if len(cfg.Tools) > 0 {
		connectCfg.Tools = []*genai.Tool{{FunctionDeclarations: toolDeclarations(cfg.Tools)}}
	}

	session, err := e.client.Live.Connect(ctx, e.cfg.LiveModel, connectCfg)
	if err != nil {
		return nil, fmt.Errorf("connect live session: %w", err)
	}

	return newLiveStream(session), nil
}

func toolDeclarations(specs []ToolSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		props := make(map[string]*genai.Schema, len(spec.Parameters))
		for name, p := range spec.Parameters {
			t := genai.TypeString
			if p.Type == "integer" {
				t = genai.TypeInteger
			}
			props[name] = &genai.Schema{Type: t, Description: p.Description}
		}
		decl := &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
		}
		if len(props) > 0 {
			decl.Parameters = &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   spec.Required,
			}
		}
		decls = append(decls, decl)
	}
	return decls
}

// planSchema constrains plan generation to the shape the pipeline
// decodes. Bounds are still checked after decoding.
func planSchema() *genai.Schema {
	section := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":            {Type: genai.TypeString},
			"duration_minutes": {Type: genai.TypeInteger},
			"content":          {Type: genai.TypeString},
			"activity":         {Type: genai.TypeString},
			"image_prompt":     {Type: genai.TypeString},
		},
		Required: []string{"title", "duration_minutes", "content", "activity"},
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"topic":               {Type: genai.TypeString},
			"duration_minutes":    {Type: genai.TypeInteger},
			"grade_level":         {Type: genai.TypeString},
			"learning_objectives": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"sections":            {Type: genai.TypeArray, Items: section},
			"wrap_up":             section,
		},
		Required: []string{"topic", "duration_minutes", "grade_level", "learning_objectives", "sections", "wrap_up"},
	}
}

// GeneratePlanJSON produces a schema-constrained lesson plan document.
func (e *GeminiEngine) GeneratePlanJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := e.client.Models.GenerateContent(ctx,
		e.cfg.LessonModel,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   planSchema(),
		},
	)
	if err != nil {
		return "", fmt.Errorf("generate plan: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("generate plan: empty response")
	}
	return text, nil
}

// GenerateText produces free-form text from a prompt.
func (e *GeminiEngine) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := e.client.Models.GenerateContent(ctx,
		e.cfg.LessonModel,
		genai.Text(prompt),
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("generate text: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("generate text: empty response")
	}
	return text, nil
}

// GenerateImage produces raw image bytes from a prompt.
func (e *GeminiEngine) GenerateImage(ctx context.Context, prompt string) ([]byte, string, error) {
	resp, err := e.client.Models.GenerateImages(ctx,
		e.cfg.ImageModel,
		prompt,
		&genai.GenerateImagesConfig{NumberOfImages: 1},
	)
	if err != nil {
		return nil, "", fmt.Errorf("generate image: %w", err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, "", fmt.Errorf("generate image: no image returned")
	}

	img := resp.GeneratedImages[0].Image
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return img.ImageBytes, mime, nil
}
