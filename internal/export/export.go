// Package export renders a generated exam as plain text, a Word document,
// clipboard HTML, a Google Apps Script that builds a quiz form, or JSON.
package export

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pavelanni/examgen/internal/exam"
	"github.com/pavelanni/examgen/internal/i18n"
	"github.com/pavelanni/examgen/internal/model"
)

//go:embed templates
var templateFS embed.FS

// ErrNoQuestions is returned when exporting an exam without questions.
var ErrNoQuestions = errors.New("exam has no questions")

// ErrUnknownFormat is returned by Lookup for unsupported formats.
var ErrUnknownFormat = errors.New("unknown export format")

// Format names an export format as used in URLs and on the command line.
type Format string

const (
	FormatText       Format = "txt"
	FormatWord       Format = "doc"
	FormatHTML       Format = "html"
	FormatAppsScript Format = "gas"
	FormatJSON       Format = "json"
)

// Formats lists every supported format.
var Formats = []Format{FormatText, FormatWord, FormatHTML, FormatAppsScript, FormatJSON}

// Document is an exam together with the localized strings its exports print.
type Document struct {
	Exam        model.Exam
	ExamType    string
	Instruction string
}

// NewDocument resolves the exam type label and instruction using the
// localizer stored in ctx.
func NewDocument(ctx context.Context, e model.Exam) Document {
	return Document{
		Exam:        e,
		ExamType:    i18n.ExamTypeLabel(ctx, e.Config.ExamType),
		Instruction: i18n.T(ctx, exam.InstructionKey(string(e.Config.ExamType))),
	}
}

// Exporter writes one format.
type Exporter struct {
	Format      Format
	ContentType string
	// Suffix is appended to the file stem derived from the subject.
	Suffix string
	Write  func(w io.Writer, d Document) error
}

var exporters = map[Format]Exporter{
	FormatText:       {FormatText, "text/plain; charset=utf-8", "_export.txt", Text},
	FormatWord:       {FormatWord, "application/msword", ".doc", Word},
	FormatHTML:       {FormatHTML, "text/html; charset=utf-8", ".html", ClipboardHTML},
	FormatAppsScript: {FormatAppsScript, "application/javascript; charset=utf-8", "_createQuiz.gs", AppsScript},
	FormatJSON:       {FormatJSON, "application/json", ".json", JSON},
}

// Lookup returns the exporter for a format name.
func Lookup(format string) (Exporter, error) {
	e, ok := exporters[Format(strings.ToLower(format))]
	if !ok {
		return Exporter{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return e, nil
}

// FileName returns the download name for a document in this format.
func (e Exporter) FileName(d Document) string {
	return exam.FileStem(d.Exam.Config.Subject) + e.Suffix
}

func newExamExport(d Document, at time.Time) model.ExamExport {
	cfg := d.Exam.Config
	return model.ExamExport{
		ExamID:       d.Exam.ID,
		Subject:      cfg.Subject,
		GradeLevel:   cfg.GradeLevel,
		ExamType:     cfg.ExamType,
		Difficulty:   cfg.Difficulty,
		Instruction:  d.Instruction,
		CP:           cfg.CP,
		TP:           cfg.TP,
		NumQuestions: len(d.Exam.Questions),
		ExportedAt:   at,
		Questions:    d.Exam.Questions,
	}
}

// JSON writes the exam as indented JSON.
func JSON(w io.Writer, d Document) error {
	if len(d.Exam.Questions) == 0 {
		return ErrNoQuestions
	}
	return writeJSON(w, newExamExport(d, time.Now().UTC()))
}

// JSONAll writes every document as one JSON array, including empty exams.
func JSONAll(w io.Writer, docs []Document) error {
	now := time.Now().UTC()
	out := make([]model.ExamExport, len(docs))
	for i, d := range docs {
		out[i] = newExamExport(d, now)
		if out[i].Questions == nil {
			out[i].Questions = []model.Question{}
		}
	}
	return writeJSON(w, out)
}
