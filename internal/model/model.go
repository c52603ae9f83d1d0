package model

import (
	"context"
	"time"
)

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// ExamType is the kind of assessment requested from the model.
type ExamType string

const (
	ExamMCQ         ExamType = "mcq"
	ExamTrueFalse   ExamType = "true_false"
	ExamMatching    ExamType = "matching"
	ExamShortAnswer ExamType = "short_answer"
	ExamEssay       ExamType = "essay"
	ExamCaseStudy   ExamType = "case_study"
	ExamPractical   ExamType = "practical"
	ExamPortfolio   ExamType = "portfolio"
	ExamProject     ExamType = "project"
	ExamOral        ExamType = "oral"
	ExamHOTS        ExamType = "hots"
	ExamMultimedia  ExamType = "multimedia"
	ExamMixed       ExamType = "mixed"
)

// ExamTypes lists every exam type in form order.
var ExamTypes = []ExamType{
	ExamMCQ, ExamTrueFalse, ExamMatching, ExamShortAnswer, ExamEssay,
	ExamCaseStudy, ExamPractical, ExamPortfolio, ExamProject, ExamOral,
	ExamHOTS, ExamMultimedia, ExamMixed,
}

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties lists every difficulty in form order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// BloomLevel is a cognitive level of Bloom's revised taxonomy.
type BloomLevel string

const (
	BloomRemember   BloomLevel = "C1"
	BloomUnderstand BloomLevel = "C2"
	BloomApply      BloomLevel = "C3"
	BloomAnalyze    BloomLevel = "C4"
	BloomEvaluate   BloomLevel = "C5"
	BloomCreate     BloomLevel = "C6"
)

// BloomLevels lists every level from C1 to C6.
var BloomLevels = []BloomLevel{
	BloomRemember, BloomUnderstand, BloomApply, BloomAnalyze, BloomEvaluate, BloomCreate,
}

// GradeGroup is a school stage with its grade levels.
type GradeGroup struct {
	Stage  string
	Levels []string
}

// GradeGroups lists the grade levels offered by the setup form.
var GradeGroups = []GradeGroup{
	{Stage: "SD", Levels: []string{"Kelas 1 SD", "Kelas 2 SD", "Kelas 3 SD", "Kelas 4 SD", "Kelas 5 SD", "Kelas 6 SD"}},
	{Stage: "SMP", Levels: []string{"Kelas 7 SMP", "Kelas 8 SMP", "Kelas 9 SMP"}},
	{Stage: "SMA", Levels: []string{"Kelas 10 SMA", "Kelas 11 SMA", "Kelas 12 SMA"}},
}

// Defaults used by the setup form.
const (
	DefaultGradeLevel = "Kelas 10 SMA"
	DefaultCount      = 10
	MinCount          = 1
	MaxCount          = 50
)

// Material is an uploaded binary document sent to the model as is.
type Material struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// ExamConfig holds everything the user chose on the setup form.
type ExamConfig struct {
	Subject       string       `json:"subject"`
	GradeLevel    string       `json:"grade_level"`
	Count         int          `json:"count"`
	Difficulty    Difficulty   `json:"difficulty"`
	ExamType      ExamType     `json:"exam_type"`
	BloomLevels   []BloomLevel `json:"bloom_levels"`
	IncludeImages bool         `json:"include_images"`
	ContextText   string       `json:"context_text,omitempty"`
	CP            string       `json:"cp,omitempty"` // Capaian Pembelajaran
	TP            string       `json:"tp,omitempty"` // Tujuan Pembelajaran
	File          *Material    `json:"file,omitempty"`
}

// DefaultExamConfig returns the initial state of the setup form.
func DefaultExamConfig() ExamConfig {
	return ExamConfig{
		GradeLevel:  DefaultGradeLevel,
		Count:       DefaultCount,
		Difficulty:  DifficultyMedium,
		ExamType:    ExamMCQ,
		BloomLevels: []BloomLevel{BloomRemember, BloomUnderstand, BloomApply},
	}
}

// Question is one generated exam item. Type is free-form: the model is asked
// for mcq, essay, true_false, matching or short_answer but may return others.
type Question struct {
	ID               int      `json:"id"`
	Type             string   `json:"type"`
	Taxonomy         string   `json:"taxonomy"`
	Difficulty       string   `json:"difficulty"`
	QuestionText     string   `json:"question_text"`
	Options          []string `json:"options,omitempty"`
	CorrectAnswer    string   `json:"correct_answer"`
	Explanation      string   `json:"explanation"`
	ImageDescription string   `json:"image_description,omitempty"`
	ImageURL         string   `json:"image_url,omitempty"`
}

// Exam is a generated question set together with the configuration that produced it.
type Exam struct {
	ID        string     `json:"id"`
	Config    ExamConfig `json:"config"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ExamSummary is a lightweight listing row.
type ExamSummary struct {
	ID           string
	Subject      string
	GradeLevel   string
	ExamType     ExamType
	NumQuestions int
	CreatedAt    time.Time
}

// GeneratorInfo describes the backend that produced the latest exam.
type GeneratorInfo struct {
	Provider   string
	Model      string
	ImageModel string
	UsedAt     time.Time
}
