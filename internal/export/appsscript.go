package export

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/template"

	"github.com/pavelanni/examgen/internal/exam"
)

type choiceView struct {
	Text    string
	Correct bool
}

type formItemView struct {
	Index       int
	Number      int
	Type        string
	Kind        exam.FormItemKind
	Title       string
	Choices     []choiceView
	Explanation string
}

// IsChoice reports whether the item takes choices and per-answer feedback.
func (f formItemView) IsChoice() bool {
	return f.Kind == exam.FormMultipleChoice
}

type formView struct {
	Title       string
	Description string
	Items       []formItemView
}

// quote renders s as a single-quoted Apps Script string literal.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", "")
	return "'" + r.Replace(s) + "'"
}

var (
	gasOnce sync.Once
	gasTmpl *template.Template
	gasErr  error
)

func gasTemplate() (*template.Template, error) {
	gasOnce.Do(func() {
		gasTmpl, gasErr = template.New("createQuiz.gs.tmpl").
			Funcs(template.FuncMap{"quote": quote, "oneLine": oneLine}).
			ParseFS(templateFS, "templates/createQuiz.gs.tmpl")
	})
	return gasTmpl, gasErr
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func newFormView(d Document) formView {
	v := newView(d)
	fv := formView{
		Title:       v.Subject + " - " + v.GradeLevel,
		Description: "Tipe: " + v.ExamType + ".\nInstruksi: " + v.Instruction,
	}
	for i, q := range d.Exam.Questions {
		item := formItemView{
			Index:       i,
			Number:      i + 1,
			Type:        q.Type,
			Kind:        exam.FormItem(q),
			Title:       q.QuestionText,
			Explanation: q.Explanation,
		}
		if item.Kind == exam.FormMultipleChoice {
			if len(q.Options) == 0 {
				// A choice item without choices cannot be answered.
				item.Kind = exam.FormParagraph
			}
			for j, opt := range q.Options {
				item.Choices = append(item.Choices, choiceView{
					Text:    opt,
					Correct: exam.IsCorrectChoice(opt, j, q.CorrectAnswer),
				})
			}
		}
		fv.Items = append(fv.Items, item)
	}
	return fv
}

// AppsScript writes a Google Apps Script function that creates the exam as a
// Google Forms quiz worth 10 points per question.
func AppsScript(w io.Writer, d Document) error {
	if len(d.Exam.Questions) == 0 {
		return ErrNoQuestions
	}
	t, err := gasTemplate()
	if err != nil {
		return fmt.Errorf("parse script template: %w", err)
	}
	if err := t.Execute(w, newFormView(d)); err != nil {
		return fmt.Errorf("render script: %w", err)
	}
	return nil
}
