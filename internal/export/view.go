package export

import (
	"cmp"
	"html/template"

	"github.com/pavelanni/examgen/internal/exam"
	"github.com/pavelanni/examgen/internal/imaging"
)

type optionView struct {
	Label string
	Text  string
}

type questionView struct {
	Number      int
	Type        string
	Text        string
	Options     []optionView
	Answer      string
	Explanation string
	Image       template.URL
}

type documentView struct {
	Subject     string
	GradeLevel  string
	ExamType    string
	Instruction string
	Questions   []questionView
}

// newView numbers questions by position. Images are shrunk to the export
// width; anything that is not an inline image is dropped.
func newView(d Document) documentView {
	v := documentView{
		Subject:     cmp.Or(d.Exam.Config.Subject, "Ujian"),
		GradeLevel:  d.Exam.Config.GradeLevel,
		ExamType:    d.ExamType,
		Instruction: d.Instruction,
	}
	for i, q := range d.Exam.Questions {
		qv := questionView{
			Number:      i + 1,
			Type:        q.Type,
			Text:        q.QuestionText,
			Answer:      q.CorrectAnswer,
			Explanation: q.Explanation,
		}
		for j, opt := range q.Options {
			qv.Options = append(qv.Options, optionView{Label: exam.OptionLabel(j), Text: opt})
		}
		if _, _, err := imaging.ParseDataURL(q.ImageURL); err == nil {
			qv.Image = template.URL(imaging.ThumbnailDataURL(q.ImageURL, imaging.ExportWidth))
		}
		v.Questions = append(v.Questions, qv)
	}
	return v
}
