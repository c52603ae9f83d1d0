package export

import (
	"fmt"
	"html/template"
	"io"
	"sync"
)

// utf8BOM makes Word pick up the encoding of the HTML document.
const utf8BOM = "\ufeff"

var (
	htmlOnce sync.Once
	htmlTmpl *template.Template
	htmlErr  error
)

func htmlTemplates() (*template.Template, error) {
	htmlOnce.Do(func() {
		htmlTmpl, htmlErr = template.ParseFS(templateFS, "templates/*.html.tmpl")
	})
	return htmlTmpl, htmlErr
}

func executeHTML(w io.Writer, name string, d Document) error {
	if len(d.Exam.Questions) == 0 {
		return ErrNoQuestions
	}
	t, err := htmlTemplates()
	if err != nil {
		return fmt.Errorf("parse export templates: %w", err)
	}
	if err := t.ExecuteTemplate(w, name, newView(d)); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	return nil
}

// Word writes an HTML document that Word opens as a .doc file. The answer
// key starts on a new page.
func Word(w io.Writer, d Document) error {
	if len(d.Exam.Questions) == 0 {
		return ErrNoQuestions
	}
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return executeHTML(w, "word.html.tmpl", d)
}

// ClipboardHTML writes a compact HTML fragment for pasting into Google Docs.
func ClipboardHTML(w io.Writer, d Document) error {
	return executeHTML(w, "clipboard.html.tmpl", d)
}
