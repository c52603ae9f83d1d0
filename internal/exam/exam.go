// Package exam holds the rules shared by the review page, the exporters and the CLI:
// configuration validation, per-type instructions, answer matching and question edits.
package exam

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/pavelanni/examgen/internal/model"
)

// MaxContextRunes is how much pasted material is sent to the model.
const MaxContextRunes = 30000

// ErrInvalidConfig is matched by every ValidationError.
var ErrInvalidConfig = errors.New("invalid exam configuration")

// ValidationError carries the i18n message ID describing what is wrong.
type ValidationError struct {
	Key string
}

func (e *ValidationError) Error() string {
	return "invalid exam configuration: " + e.Key
}

// Is makes errors.Is(err, ErrInvalidConfig) report true.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Validate checks a configuration before it is sent to the model.
func Validate(cfg model.ExamConfig) error {
	if strings.TrimSpace(cfg.Subject) == "" || (strings.TrimSpace(cfg.ContextText) == "" && cfg.File == nil) {
		return &ValidationError{Key: "ErrSubjectAndMaterial"}
	}
	if len(cfg.BloomLevels) == 0 {
		return &ValidationError{Key: "ErrNoBloomLevel"}
	}
	for _, b := range cfg.BloomLevels {
		if !lo.Contains(model.BloomLevels, b) {
			return &ValidationError{Key: "ErrUnknownBloomLevel"}
		}
	}
	if cfg.Count < model.MinCount || cfg.Count > model.MaxCount {
		return &ValidationError{Key: "ErrCountRange"}
	}
	if !lo.Contains(model.Difficulties, cfg.Difficulty) {
		return &ValidationError{Key: "ErrUnknownDifficulty"}
	}
	if !lo.Contains(model.ExamTypes, cfg.ExamType) {
		return &ValidationError{Key: "ErrUnknownExamType"}
	}
	return nil
}

// TruncateContext clips pasted material to MaxContextRunes and marks the cut.
func TruncateContext(text string) string {
	if utf8.RuneCountInString(text) > MaxContextRunes {
		text = string([]rune(text)[:MaxContextRunes])
	}
	return text + "..."
}

func containsAny(s string, needles ...string) bool {
	s = strings.ToLower(s)
	return lo.ContainsBy(needles, func(n string) bool {
		return strings.Contains(s, n)
	})
}

// InstructionKey returns the i18n message ID of the instruction printed above the
// questions. t may be an exam type code or a free-form label.
func InstructionKey(t string) string {
	switch {
	case containsAny(t, "pilihan ganda", "mcq", "multiple choice"):
		return "InstructionMCQ"
	case containsAny(t, "benar", "salah", "true", "false"):
		return "InstructionTrueFalse"
	case containsAny(t, "menjodohkan", "matching"):
		return "InstructionMatching"
	case containsAny(t, "isian", "short"):
		return "InstructionShortAnswer"
	case containsAny(t, "uraian", "essay", "esai"):
		return "InstructionEssay"
	case containsAny(t, "studi kasus", "case"):
		return "InstructionCaseStudy"
	case containsAny(t, "praktik", "practical"):
		return "InstructionPractical"
	case containsAny(t, "portofolio", "portfolio"):
		return "InstructionPortfolio"
	case containsAny(t, "project"):
		return "InstructionProject"
	case containsAny(t, "lisan", "oral"):
		return "InstructionOral"
	case containsAny(t, "hots"):
		return "InstructionHOTS"
	case containsAny(t, "multimedia"):
		return "InstructionMultimedia"
	case containsAny(t, "campuran", "mixed"):
		return "InstructionMixed"
	default:
		return "InstructionDefault"
	}
}

// IsMultipleChoice reports whether a question is rendered with lettered options.
func IsMultipleChoice(q model.Question) bool {
	return containsAny(q.Type, "mcq", "pilihan ganda", "multiple choice")
}

// FormItemKind is the online form item used for a question.
type FormItemKind string

const (
	FormMultipleChoice FormItemKind = "MultipleChoiceItem"
	FormText           FormItemKind = "TextItem"
	FormParagraph      FormItemKind = "ParagraphTextItem"
)

// FormItem maps a question type onto a form item. True/false questions are
// asked as multiple choice; everything that is not a choice or a short answer
// falls back to a paragraph.
func FormItem(q model.Question) FormItemKind {
	switch {
	case containsAny(q.Type, "pilihan ganda", "multiple choice", "mcq"):
		return FormMultipleChoice
	case containsAny(q.Type, "benar", "salah", "true"):
		return FormMultipleChoice
	case containsAny(q.Type, "isian", "short"):
		return FormText
	default:
		return FormParagraph
	}
}

// OptionLabel returns A, B, C... for a zero-based option index.
func OptionLabel(idx int) string {
	return string(rune('A' + idx))
}

// IsCorrectOption reports whether option idx is the answer shown as correct on
// the review page: the option starts with the answer text or its letter equals it.
func IsCorrectOption(q model.Question, idx int) bool {
	if idx < 0 || idx >= len(q.Options) || q.CorrectAnswer == "" {
		return false
	}
	return strings.HasPrefix(q.Options[idx], q.CorrectAnswer) || OptionLabel(idx) == q.CorrectAnswer
}

// IsCorrectChoice is the looser match used when building form choices: a single
// letter answer selects by position, otherwise the comparison ignores case.
func IsCorrectChoice(option string, idx int, correct string) bool {
	correct = strings.TrimSpace(correct)
	if correct == "" {
		return false
	}
	if utf8.RuneCountInString(correct) == 1 && idx == int(strings.ToUpper(correct)[0])-'A' {
		return true
	}
	opt := strings.ToLower(option)
	c := strings.ToLower(correct)
	return strings.HasPrefix(opt, c) || opt == c
}

// UpdateQuestion replaces the question with the same ID. Unknown IDs leave the
// slice untouched; the returned bool reports whether a replacement happened.
func UpdateQuestion(questions []model.Question, updated model.Question) ([]model.Question, bool) {
	found := false
	out := lo.Map(questions, func(q model.Question, _ int) model.Question {
		if q.ID == updated.ID {
			found = true
			return updated
		}
		return q
	})
	return out, found
}

// FindQuestion returns the question with the given ID and its position.
func FindQuestion(questions []model.Question, id int) (model.Question, int, bool) {
	q, idx, ok := lo.FindIndexOf(questions, func(q model.Question) bool { return q.ID == id })
	return q, idx, ok
}

// Normalize renumbers questions 1..n when the model returned missing or
// duplicate IDs, and trims whitespace from answer fields.
func Normalize(questions []model.Question) []model.Question {
	ids := lo.Map(questions, func(q model.Question, _ int) int { return q.ID })
	renumber := len(lo.Uniq(ids)) != len(ids) || lo.Contains(ids, 0) || lo.SomeBy(ids, func(id int) bool { return id < 0 })
	out := make([]model.Question, len(questions))
	for i, q := range questions {
		if renumber {
			q.ID = i + 1
		}
		q.CorrectAnswer = strings.TrimSpace(q.CorrectAnswer)
		q.ImageDescription = strings.TrimSpace(q.ImageDescription)
		out[i] = q
	}
	return out
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// FileStem turns a subject into a download file name stem.
func FileStem(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "soal"
	}
	return whitespaceRun.ReplaceAllString(subject, "_")
}
