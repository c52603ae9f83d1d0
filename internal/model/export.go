package model

import "time"

// ExamExport is the top-level JSON structure for exam export.
type ExamExport struct {
	ExamID       string     `json:"exam_id"`
	Subject      string     `json:"subject"`
	GradeLevel   string     `json:"grade_level"`
	ExamType     ExamType   `json:"exam_type"`
	Difficulty   Difficulty `json:"difficulty"`
	Instruction  string     `json:"instruction"`
	CP           string     `json:"cp,omitempty"`
	TP           string     `json:"tp,omitempty"`
	NumQuestions int        `json:"num_questions"`
	ExportedAt   time.Time  `json:"exported_at"`
	Questions    []Question `json:"questions"`
}
