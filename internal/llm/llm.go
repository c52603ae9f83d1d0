package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/samber/lo"
	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/examgen/internal/exam"
	"github.com/pavelanni/examgen/internal/i18n"
	"github.com/pavelanni/examgen/internal/imaging"
	"github.com/pavelanni/examgen/internal/llm/prompts"
	"github.com/pavelanni/examgen/internal/model"
)

// Generator produces exam questions and question illustrations.
type Generator interface {
	// GenerateQuestions makes a single structured-output call for the whole exam.
	GenerateQuestions(ctx context.Context, cfg model.ExamConfig) ([]model.Question, error)
	// GenerateImage returns a data URL, or "" when no image could be produced.
	GenerateImage(ctx context.Context, description string) (string, error)
	// EditImage returns the edited image as a data URL.
	EditImage(ctx context.Context, dataURL, instruction string) (string, error)
	Ping(ctx context.Context) error
}

// ErrNoData is returned when the model answers without usable content.
var ErrNoData = errors.New("no data returned")

// Supported providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Default models per provider, used when Config leaves them empty.
const (
	DefaultOpenAIModel      = "gpt-4o-mini"
	DefaultOpenAIImageModel = openai.CreateImageModelGptImage1
	DefaultGeminiModel      = "gemini-2.5-flash"
	DefaultGeminiImageModel = "gemini-2.5-flash-image"
)

// Config selects and configures a backend.
type Config struct {
	Provider   string
	BaseURL    string
	APIKey     string
	Model      string
	ImageModel string
	Lang       string
}

// New creates the generator for cfg.Provider.
func New(ctx context.Context, cfg Config) (Generator, error) {
	if err := prompts.Load(prompts.Files); err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case "", ProviderGemini:
		return NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// generatedQuestion is the item schema the model must follow.
type generatedQuestion struct {
	ID               int      `json:"id"`
	Type             string   `json:"type"`
	Taxonomy         string   `json:"taxonomy"`
	Difficulty       string   `json:"difficulty"`
	QuestionText     string   `json:"question_text"`
	Options          []string `json:"options,omitempty" jsonschema_description:"Options for MCQ (a-e), or True/False choices, or Matching pairs if applicable."`
	CorrectAnswer    string   `json:"correct_answer"`
	Explanation      string   `json:"explanation"`
	ImageDescription string   `json:"image_description,omitempty" jsonschema_description:"A detailed visual description for an image to accompany this question, ONLY if necessary. Leave empty if no image needed."`
}

type questionSet struct {
	Questions []generatedQuestion `json:"questions,omitempty"`
}

// questionSchema reflects the response schema from questionSet.
func questionSchema() *jsonschema.Schema {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	s := r.Reflect(&questionSet{})
	s.Version = ""
	s.ID = ""
	return s
}

// parseQuestions decodes a model response into normalized questions.
// A response without a questions array yields an empty list.
func parseQuestions(raw string) ([]model.Question, error) {
	raw = stripFence(raw)
	if raw == "" {
		return nil, ErrNoData
	}
	var set questionSet
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		slog.Debug("unparseable LLM response", "raw", raw)
		return nil, fmt.Errorf("parse LLM response: %w", err)
	}
	qs := lo.Map(set.Questions, func(g generatedQuestion, _ int) model.Question {
		return model.Question{
			ID:               g.ID,
			Type:             g.Type,
			Taxonomy:         g.Taxonomy,
			Difficulty:       g.Difficulty,
			QuestionText:     g.QuestionText,
			Options:          g.Options,
			CorrectAnswer:    g.CorrectAnswer,
			Explanation:      g.Explanation,
			ImageDescription: g.ImageDescription,
		}
	})
	return exam.Normalize(qs), nil
}

// stripFence removes a markdown code fence some OpenAI-compatible servers wrap
// around JSON output.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// CallContext bounds a single model call. A timeout of zero or less means no
// limit beyond ctx itself.
func CallContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// withLang makes prompt labels follow the generator language.
func withLang(ctx context.Context, lang string) context.Context {
	return i18n.WithLocalizer(ctx, i18n.NewLocalizer(lang))
}

// b64DataURL turns base64 image bytes from an API response into a data URL.
func b64DataURL(b64, mimeType string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
		if !strings.HasPrefix(mimeType, "image/") {
			mimeType = imaging.DefaultMIMEType
		}
	}
	return imaging.DataURL(mimeType, data), nil
}
