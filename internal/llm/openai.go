package llm

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/examgen/internal/imaging"
	"github.com/pavelanni/examgen/internal/llm/prompts"
	"github.com/pavelanni/examgen/internal/material"
	"github.com/pavelanni/examgen/internal/model"
)

// OpenAIClient talks to any OpenAI-compatible API.
type OpenAIClient struct {
	api        *openai.Client
	model      string
	imageModel string
	lang       string
}

// NewOpenAI creates a client for an OpenAI-compatible endpoint.
func NewOpenAI(cfg Config) *OpenAIClient {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{
		api:        openai.NewClientWithConfig(config),
		model:      cmp.Or(cfg.Model, DefaultOpenAIModel),
		imageModel: cmp.Or(cfg.ImageModel, DefaultOpenAIImageModel),
		lang:       cmp.Or(cfg.Lang, prompts.DefaultLang),
	}
}

// Ping checks that the endpoint answers.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// userPrompt joins the generation prompt and the material. PDFs are sent as
// extracted text since chat endpoints do not take inline documents.
func (c *OpenAIClient) userPrompt(ctx context.Context, cfg model.ExamConfig) (string, error) {
	prompt, err := prompts.BuildGenerate(c.lang, prompts.NewGenerateData(ctx, cfg))
	if err != nil {
		return "", err
	}
	text := cfg.ContextText
	if cfg.File != nil {
		text, err = material.ExtractText(cfg.File.Data)
		if err != nil {
			return "", fmt.Errorf("extract %s: %w", cfg.File.Name, err)
		}
	}
	if strings.TrimSpace(text) == "" {
		return prompt, nil
	}
	mat, err := prompts.BuildMaterial(c.lang, text)
	if err != nil {
		return "", err
	}
	return prompt + "\n\n" + mat, nil
}

// GenerateQuestions asks the model for the whole question set using a JSON
// schema response format.
func (c *OpenAIClient) GenerateQuestions(ctx context.Context, cfg model.ExamConfig) ([]model.Question, error) {
	ctx = withLang(ctx, c.lang)
	system, err := prompts.BuildSystem(c.lang)
	if err != nil {
		return nil, err
	}
	user, err := c.userPrompt(ctx, cfg)
	if err != nil {
		return nil, err
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:        "exam_questions",
				Description: "Generated exam questions",
				Schema:      questionSchema(),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generate questions: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoData
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return parseQuestions(raw)
}

func (c *OpenAIClient) imageFormat() string {
	// gpt-image models always answer with base64 and reject response_format.
	if strings.HasPrefix(c.imageModel, "gpt-image") {
		return ""
	}
	return openai.CreateImageResponseFormatB64JSON
}

// GenerateImage creates an illustration. Failures are logged and reported as
// no image.
func (c *OpenAIClient) GenerateImage(ctx context.Context, description string) (string, error) {
	resp, err := c.api.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompts.BuildImage(description),
		Model:          c.imageModel,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: c.imageFormat(),
	})
	if err != nil {
		slog.Error("image generation failed", "model", c.imageModel, "error", err)
		return "", nil
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		slog.Warn("image generation returned no data", "model", c.imageModel)
		return "", nil
	}
	url, err := b64DataURL(resp.Data[0].B64JSON, "")
	if err != nil {
		slog.Error("image generation failed", "model", c.imageModel, "error", err)
		return "", nil
	}
	return url, nil
}

// EditImage sends the current image with an edit instruction. The edits
// endpoint picks its own model, so the response format is always requested.
func (c *OpenAIClient) EditImage(ctx context.Context, dataURL, instruction string) (string, error) {
	mimeType, data, err := imaging.ParseDataURL(dataURL)
	if err != nil {
		return "", err
	}
	resp, err := c.api.CreateEditImage(ctx, openai.ImageEditRequest{
		Image:          openai.WrapReader(bytes.NewReader(data), "image"+imaging.Extension(mimeType), mimeType),
		Prompt:         prompts.BuildImageEdit(instruction),
		Model:          c.imageModel,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return "", fmt.Errorf("edit image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return "", ErrNoData
	}
	return b64DataURL(resp.Data[0].B64JSON, "")
}
