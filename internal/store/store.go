package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examgen/internal/exam"
	"github.com/pavelanni/examgen/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when an exam or question does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exams (
		id TEXT PRIMARY KEY,
		subject TEXT NOT NULL,
		grade_level TEXT NOT NULL DEFAULT '',
		exam_type TEXT NOT NULL DEFAULT '',
		config TEXT NOT NULL,
		questions TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exams_created_at ON exams(created_at);

	CREATE TABLE IF NOT EXISTS exam_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateExam stores a new exam. A missing ID is filled with a random UUID.
func (s *Store) CreateExam(e model.Exam) (model.Exam, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Questions == nil {
		e.Questions = []model.Question{}
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now

	cfg, err := json.Marshal(e.Config)
	if err != nil {
		return e, fmt.Errorf("marshal config: %w", err)
	}
	qs, err := json.Marshal(e.Questions)
	if err != nil {
		return e, fmt.Errorf("marshal questions: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO exams (id, subject, grade_level, exam_type, config, questions, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Config.Subject, e.Config.GradeLevel, string(e.Config.ExamType), string(cfg), string(qs), e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return e, err
	}
	return e, nil
}

// GetExam returns an exam by ID, or ErrNotFound.
func (s *Store) GetExam(id string) (model.Exam, error) {
	var e model.Exam
	var cfg, qs string
	err := s.db.QueryRow(
		`SELECT id, config, questions, created_at, updated_at FROM exams WHERE id = ?`, id,
	).Scan(&e.ID, &cfg, &qs, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if err := json.Unmarshal([]byte(cfg), &e.Config); err != nil {
		return e, fmt.Errorf("decode config of exam %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(qs), &e.Questions); err != nil {
		return e, fmt.Errorf("decode questions of exam %s: %w", id, err)
	}
	return e, nil
}

// ListExams returns exam summaries, newest first. A limit of zero or less
// returns all of them.
func (s *Store) ListExams(limit int) ([]model.ExamSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT id, subject, grade_level, exam_type, json_array_length(questions), created_at
		 FROM exams ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []model.ExamSummary
	for rows.Next() {
		var es model.ExamSummary
		if err := rows.Scan(&es.ID, &es.Subject, &es.GradeLevel, &es.ExamType, &es.NumQuestions, &es.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, es)
	}
	return list, rows.Err()
}

// UpdateQuestion replaces one question, matched by its ID, inside a transaction.
// It returns ErrNotFound when either the exam or the question is missing.
func (s *Store) UpdateQuestion(examID string, q model.Question) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRow(`SELECT questions FROM exams WHERE id = ?`, examID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	var questions []model.Question
	if err := json.Unmarshal([]byte(raw), &questions); err != nil {
		return fmt.Errorf("decode questions of exam %s: %w", examID, err)
	}
	updated, ok := exam.UpdateQuestion(questions, q)
	if !ok {
		return ErrNotFound
	}
	qs, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	if _, err := tx.Exec(`UPDATE exams SET questions = ?, updated_at = ? WHERE id = ?`, string(qs), time.Now().UTC(), examID); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteExam removes an exam. Deleting a missing exam returns ErrNotFound.
func (s *Store) DeleteExam(id string) error {
	res, err := s.db.Exec(`DELETE FROM exams WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ExamCount returns the number of stored exams.
func (s *Store) ExamCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM exams`).Scan(&n)
	return n, err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
