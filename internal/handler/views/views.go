// Package views renders the HTML pages. Pages are html/template files wrapped as
// templ components so handlers render everything the same way.
package views

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"sync"

	"github.com/a-h/templ"
	"github.com/samber/lo"

	"github.com/pavelanni/examgen/internal/exam"
	"github.com/pavelanni/examgen/internal/i18n"
	"github.com/pavelanni/examgen/internal/imaging"
	"github.com/pavelanni/examgen/internal/material"
	"github.com/pavelanni/examgen/internal/model"
)

//go:embed templates/*.html
var files embed.FS

// Card modes.
const (
	ModeView  = ""
	ModeEdit  = "edit"
	ModeImage = "image"
)

// SetupData feeds the configuration form.
type SetupData struct {
	Config   model.ExamConfig
	Recent   []model.ExamSummary
	Total    int
	Error    string
	Provider string
}

// CardData is one question on the review page.
type CardData struct {
	ExamID      string
	Number      int
	Question    model.Question
	ShowAnswers bool
	Mode        string
	Error       string
}

// ReviewData feeds the review page.
type ReviewData struct {
	Exam        model.Exam
	Instruction string
	ShowAnswers bool
	Cards       []CardData
	Provider    string
}

// FormsData feeds the Google Forms export page.
type FormsData struct {
	Exam     model.Exam
	Script   string
	Provider string
}

var pageFiles = map[string][]string{
	"setup":  {"templates/layout.html", "templates/setup.html"},
	"review": {"templates/layout.html", "templates/review.html", "templates/question.html"},
	"forms":  {"templates/layout.html", "templates/forms.html"},
	"card":   {"templates/question.html"},
}

var (
	parseOnce sync.Once
	parsed    map[string]*template.Template
	parseErr  error
)

// funcs returns the template helpers bound to a request context. The same names
// are registered with nil context at parse time.
func funcs(ctx context.Context) template.FuncMap {
	return template.FuncMap{
		"t":  func(id string) string { return i18n.T(ctx, id) },
		"tp": func(id string, n int) string { return i18n.Tp(ctx, id, n) },
		"td": func(id string, kv ...any) string {
			data := make(map[string]any, len(kv)/2)
			for i := 0; i+1 < len(kv); i += 2 {
				data[fmt.Sprint(kv[i])] = kv[i+1]
			}
			return i18n.Td(ctx, id, data)
		},
		"path":            func(p string) string { return model.BasePathFromContext(ctx) + p },
		"csrf":            func() string { return model.CSRFTokenFromContext(ctx) },
		"examTypeLabel":   func(t model.ExamType) string { return i18n.ExamTypeLabel(ctx, t) },
		"difficultyLabel": func(d model.Difficulty) string { return i18n.DifficultyLabel(ctx, d) },
		"bloomLabel":      func(b model.BloomLevel) string { return i18n.BloomLabel(ctx, b) },
		"optionLabel":     exam.OptionLabel,
		"isCorrect":       exam.IsCorrectOption,
		"isMCQ":           exam.IsMultipleChoice,
		"imageSrc":        imageSrc,
		"hasBloom":        func(levels []model.BloomLevel, b model.BloomLevel) bool { return lo.Contains(levels, b) },
		"inc":             func(i int) int { return i + 1 },
		"examTypes":       func() []model.ExamType { return model.ExamTypes },
		"difficulties":    func() []model.Difficulty { return model.Difficulties },
		"bloomLevels":     func() []model.BloomLevel { return model.BloomLevels },
		"gradeGroups":     func() []model.GradeGroup { return model.GradeGroups },
		"maxCount":        func() int { return model.MaxCount },
		"languages":       i18n.Supported,
		"lang":            func() string { return i18n.Lang(ctx) },
		"accept":          acceptedFiles,
		"upper":           strings.ToUpper,
	}
}

// acceptedFiles is the accept attribute of the material upload input.
func acceptedFiles() string {
	return strings.Join(material.AcceptedExtensions, ",")
}

// imageSrc only lets inline images through; html/template would otherwise
// replace data URLs with a placeholder.
func imageSrc(s string) template.URL {
	if _, _, err := imaging.ParseDataURL(s); err != nil {
		return ""
	}
	return template.URL(s)
}

func templates() (map[string]*template.Template, error) {
	parseOnce.Do(func() {
		parsed = make(map[string]*template.Template, len(pageFiles))
		for name, paths := range pageFiles {
			t, err := template.New(name).Funcs(funcs(context.Background())).ParseFS(files, paths...)
			if err != nil {
				parseErr = fmt.Errorf("parse %s: %w", name, err)
				return
			}
			parsed[name] = t
		}
	})
	return parsed, parseErr
}

// render executes template entry of set with helpers bound to the render context.
func render(set, entry string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		all, err := templates()
		if err != nil {
			return err
		}
		t, err := all[set].Clone()
		if err != nil {
			return fmt.Errorf("clone %s: %w", set, err)
		}
		t = t.Funcs(funcs(ctx)).Lookup(entry)
		if t == nil {
			return fmt.Errorf("template %s not found in %s", entry, set)
		}
		return templ.FromGoHTML(t, data).Render(ctx, w)
	})
}

// SetupPage renders the configuration form.
func SetupPage(d SetupData) templ.Component { return render("setup", "layout", d) }

// ReviewPage renders the generated exam.
func ReviewPage(d ReviewData) templ.Component { return render("review", "layout", d) }

// FormsPage renders the Apps Script with the steps to run it.
func FormsPage(d FormsData) templ.Component { return render("forms", "layout", d) }

// QuestionCard renders a single question for htmx swaps.
func QuestionCard(d CardData) templ.Component { return render("card", "question", d) }
