package prompts

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"text/template"

	"github.com/samber/lo"

	"github.com/pavelanni/examgen/internal/exam"
	"github.com/pavelanni/examgen/internal/i18n"
	"github.com/pavelanni/examgen/internal/model"
)

// Files holds the built-in generation templates, one per language.
//
//go:embed templates/*.txt
var Files embed.FS

// DefaultLang is used when a language has no template of its own.
const DefaultLang = "id"

// Languages with a generation template.
var Languages = []string{"id", "en"}

const imageStyle = "Style: Flat minimal illustration, muted earth tones, thin outlines, simple shading, " +
	"calm mood, minimalistic composition. Negative prompt: No realism, no 3D look, no dramatic lighting, " +
	"no heavy shadows, no saturated colors, no complex background, no detailed textures, no comic style, " +
	"no anime, no harsh outlines, no clutter, NO Text."

const editStyle = "Return the edited image with style: Flat minimal illustration, muted earth tones, " +
	"thin outlines, simple shading, calm mood, minimalistic composition. NO Text."

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[string]*template.Template
)

// GenerateData holds template data for the question generation prompt.
// Difficulty, ExamType and BloomLevels are display labels, not codes.
type GenerateData struct {
	Subject       string
	GradeLevel    string
	Count         int
	Difficulty    string
	ExamType      string
	BloomLevels   string
	CP            string
	TP            string
	IncludeImages bool
}

// Load parses the generation templates from fsys.
// It uses sync.Once to ensure templates are loaded only once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		templates = make(map[string]*template.Template)
		for _, lang := range Languages {
			name := "templates/generate_" + lang + ".txt"
			content, err := fs.ReadFile(fsys, name)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + name + ": " + err.Error())
				return
			}
			tmpl, err := template.New(lang).Parse(string(content))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + name + ": " + err.Error())
				return
			}
			templates[lang] = tmpl
		}
	})
	return loadErr
}

func lookup(lang string) (*template.Template, error) {
	if templates == nil {
		return nil, errors.New("templates not initialized: call Load first")
	}
	if tmpl, ok := templates[lang]; ok {
		return tmpl, nil
	}
	if loadErr != nil {
		return nil, fmt.Errorf("templates load failed: %w", loadErr)
	}
	return templates[DefaultLang], nil
}

func execute(lang, name string, data any) (string, error) {
	tmpl, err := lookup(lang)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("execute %s prompt: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// NewGenerateData resolves the display labels of a configuration using the
// localizer stored in ctx.
func NewGenerateData(ctx context.Context, cfg model.ExamConfig) GenerateData {
	blooms := lo.Map(cfg.BloomLevels, func(b model.BloomLevel, _ int) string {
		return i18n.BloomLabel(ctx, b)
	})
	return GenerateData{
		Subject:       cfg.Subject,
		GradeLevel:    cfg.GradeLevel,
		Count:         cfg.Count,
		Difficulty:    i18n.DifficultyLabel(ctx, cfg.Difficulty),
		ExamType:      i18n.ExamTypeLabel(ctx, cfg.ExamType),
		BloomLevels:   strings.Join(blooms, ", "),
		CP:            strings.TrimSpace(cfg.CP),
		TP:            strings.TrimSpace(cfg.TP),
		IncludeImages: cfg.IncludeImages,
	}
}

// BuildSystem returns the system instruction for the given language.
func BuildSystem(lang string) (string, error) {
	return execute(lang, "system", nil)
}

// BuildGenerate returns the question generation prompt.
func BuildGenerate(lang string, data GenerateData) (string, error) {
	return execute(lang, "generate", data)
}

// BuildMaterial wraps pasted material, clipped to exam.MaxContextRunes.
func BuildMaterial(lang, text string) (string, error) {
	return execute(lang, "material", exam.TruncateContext(text))
}

// BuildDocument returns the instruction that follows an inline document.
func BuildDocument(lang string) (string, error) {
	return execute(lang, "document", nil)
}

// BuildImage returns the prompt for a new question illustration.
func BuildImage(description string) string {
	return "Generate an educational illustration: " + strings.TrimSpace(description) + ". " + imageStyle
}

// BuildImageEdit returns the prompt for editing an existing illustration.
func BuildImageEdit(instruction string) string {
	return "Edit this image: " + strings.TrimSpace(instruction) + ". " + editStyle
}
