package store

import (
	"fmt"

	"github.com/pavelanni/examgen/internal/model"
)

// ExportAllExams loads every stored exam, newest first.
func (s *Store) ExportAllExams() ([]model.Exam, error) {
	summaries, err := s.ListExams(0)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}

	exams := make([]model.Exam, 0, len(summaries))
	for _, es := range summaries {
		e, err := s.GetExam(es.ID)
		if err != nil {
			return nil, fmt.Errorf("get exam %s: %w", es.ID, err)
		}
		exams = append(exams, e)
	}
	return exams, nil
}
