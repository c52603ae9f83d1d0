package llm

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/pavelanni/examgen/internal/imaging"
	"github.com/pavelanni/examgen/internal/llm/prompts"
	"github.com/pavelanni/examgen/internal/model"
)

// GeminiClient talks to the Gemini API directly. Unlike the OpenAI-compatible
// client it can send PDF material inline.
type GeminiClient struct {
	client     *genai.Client
	model      string
	imageModel string
	lang       string
}

// NewGemini creates a Gemini client. Close it when done.
func NewGemini(ctx context.Context, cfg Config) (*GeminiClient, error) {
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(cfg.BaseURL))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{
		client:     client,
		model:      cmp.Or(cfg.Model, DefaultGeminiModel),
		imageModel: cmp.Or(cfg.ImageModel, DefaultGeminiImageModel),
		lang:       cmp.Or(cfg.Lang, prompts.DefaultLang),
	}, nil
}

// Close releases the underlying connection.
func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// Ping checks that the configured model exists.
func (c *GeminiClient) Ping(ctx context.Context) error {
	if _, err := c.client.GenerativeModel(c.model).Info(ctx); err != nil {
		return fmt.Errorf("model info: %w", err)
	}
	return nil
}

// geminiQuestionSchema mirrors generatedQuestion for the Gemini response schema.
func geminiQuestionSchema() *genai.Schema {
	str := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"questions": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"id":            {Type: genai.TypeInteger},
						"type":          str(""),
						"taxonomy":      str(""),
						"difficulty":    str(""),
						"question_text": str(""),
						"options": {
							Type:        genai.TypeArray,
							Items:       str(""),
							Description: "Options for MCQ (a-e), or True/False choices, or Matching pairs if applicable.",
						},
						"correct_answer": str(""),
						"explanation":    str(""),
						"image_description": str("A detailed visual description for an image to accompany this question, " +
							"ONLY if necessary. Leave empty if no image needed."),
					},
					Required: []string{"id", "type", "question_text", "correct_answer", "explanation", "taxonomy", "difficulty"},
				},
			},
		},
	}
}

// parts builds the request: prompt, then either the inline document followed by
// an instruction, or the pasted material.
func (c *GeminiClient) parts(ctx context.Context, cfg model.ExamConfig) ([]genai.Part, error) {
	prompt, err := prompts.BuildGenerate(c.lang, prompts.NewGenerateData(ctx, cfg))
	if err != nil {
		return nil, err
	}
	parts := []genai.Part{genai.Text(prompt)}
	switch {
	case cfg.File != nil:
		doc, err := prompts.BuildDocument(c.lang)
		if err != nil {
			return nil, err
		}
		parts = append(parts, genai.Blob{MIMEType: cfg.File.MIMEType, Data: cfg.File.Data}, genai.Text(doc))
	case strings.TrimSpace(cfg.ContextText) != "":
		mat, err := prompts.BuildMaterial(c.lang, cfg.ContextText)
		if err != nil {
			return nil, err
		}
		parts = append(parts, genai.Text(mat))
	}
	return parts, nil
}

// GenerateQuestions asks the model for the whole question set as JSON.
func (c *GeminiClient) GenerateQuestions(ctx context.Context, cfg model.ExamConfig) ([]model.Question, error) {
	ctx = withLang(ctx, c.lang)
	system, err := prompts.BuildSystem(c.lang)
	if err != nil {
		return nil, err
	}
	parts, err := c.parts(ctx, cfg)
	if err != nil {
		return nil, err
	}

	m := c.client.GenerativeModel(c.model)
	m.ResponseMIMEType = "application/json"
	m.ResponseSchema = geminiQuestionSchema()
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("generate questions: %w", err)
	}
	raw := responseText(resp)
	slog.Debug("LLM response", "raw", raw)
	return parseQuestions(raw)
}

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		break
	}
	return sb.String()
}

// responseImage returns the first inline image of the first candidate.
func responseImage(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if b, ok := p.(genai.Blob); ok && len(b.Data) > 0 {
			return imaging.DataURL(b.MIMEType, b.Data)
		}
	}
	return ""
}

// GenerateImage creates an illustration. Failures are logged and reported as
// no image.
func (c *GeminiClient) GenerateImage(ctx context.Context, description string) (string, error) {
	resp, err := c.client.GenerativeModel(c.imageModel).GenerateContent(ctx, genai.Text(prompts.BuildImage(description)))
	if err != nil {
		slog.Error("image generation failed", "model", c.imageModel, "error", err)
		return "", nil
	}
	return responseImage(resp), nil
}

// EditImage sends the current image with an edit instruction.
func (c *GeminiClient) EditImage(ctx context.Context, dataURL, instruction string) (string, error) {
	mimeType, data, err := imaging.ParseDataURL(dataURL)
	if err != nil {
		return "", err
	}
	resp, err := c.client.GenerativeModel(c.imageModel).GenerateContent(ctx,
		genai.Blob{MIMEType: mimeType, Data: data},
		genai.Text(prompts.BuildImageEdit(instruction)),
	)
	if err != nil {
		return "", fmt.Errorf("edit image: %w", err)
	}
	return responseImage(resp), nil
}
