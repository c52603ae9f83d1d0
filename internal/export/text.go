package export

import (
	"fmt"
	"io"
	"strings"
)

// Text writes the questions followed by the answer key as plain text.
func Text(w io.Writer, d Document) error {
	if len(d.Exam.Questions) == 0 {
		return ErrNoQuestions
	}
	v := newView(d)

	var sb strings.Builder
	fmt.Fprintf(&sb, "MATA PELAJARAN: %s\n", v.Subject)
	fmt.Fprintf(&sb, "JENJANG: %s\n", v.GradeLevel)
	fmt.Fprintf(&sb, "TIPE: %s\n", v.ExamType)
	fmt.Fprintf(&sb, "\nINSTRUKSI:\n%s\n", v.Instruction)
	sb.WriteString("\n--- SOAL ---\n\n")
	for _, q := range v.Questions {
		fmt.Fprintf(&sb, "%d. [%s] %s\n", q.Number, q.Type, q.Text)
		for _, opt := range q.Options {
			fmt.Fprintf(&sb, "   - %s\n", opt.Text)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n--- KUNCI JAWABAN & PEMBAHASAN ---\n\n")
	for _, q := range v.Questions {
		fmt.Fprintf(&sb, "%d. %s", q.Number, q.Answer)
		if q.Explanation != "" {
			fmt.Fprintf(&sb, "\n   Pembahasan/Rubrik: %s\n", q.Explanation)
		}
		sb.WriteString("\n")
	}

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
