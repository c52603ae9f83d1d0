package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/pavelanni/examgen/internal/i18n"
	"github.com/pavelanni/examgen/internal/imaging"
	"github.com/pavelanni/examgen/internal/model"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func testDocument(t *testing.T) Document {
	t.Helper()
	cfg := model.DefaultExamConfig()
	cfg.Subject = "Biologi Sel"
	return Document{
		Exam: model.Exam{
			ID:     "exam-1",
			Config: cfg,
			Questions: []model.Question{
				{
					ID: 1, Type: "mcq", QuestionText: "Organel penghasil energi?",
					Options:       []string{"Mitokondria", "Ribosom", "Lisosom"},
					CorrectAnswer: "A", Explanation: "Mitokondria menghasilkan ATP.",
					ImageURL: imaging.DataURL("image/png", testPNG(t, 40, 20)),
				},
				{
					ID: 2, Type: "essay", QuestionText: "Jelaskan fungsi <membran> sel.",
					CorrectAnswer: "Mengatur keluar masuk zat", Explanation: "Rubrik: 'lengkap'\nskor 10",
				},
			},
		},
		ExamType:    "Pilihan Ganda",
		Instruction: "Pilihlah satu jawaban yang paling tepat.",
	}
}

func render(t *testing.T, write func(w *bytes.Buffer) error) string {
	t.Helper()
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	return buf.String()
}

func TestText(t *testing.T) {
	d := testDocument(t)
	got := render(t, func(w *bytes.Buffer) error { return Text(w, d) })

	want := "MATA PELAJARAN: Biologi Sel\n" +
		"JENJANG: Kelas 10 SMA\n" +
		"TIPE: Pilihan Ganda\n" +
		"\nINSTRUKSI:\nPilihlah satu jawaban yang paling tepat.\n" +
		"\n--- SOAL ---\n\n" +
		"1. [mcq] Organel penghasil energi?\n" +
		"   - Mitokondria\n   - Ribosom\n   - Lisosom\n\n" +
		"2. [essay] Jelaskan fungsi <membran> sel.\n\n" +
		"\n--- KUNCI JAWABAN & PEMBAHASAN ---\n\n" +
		"1. A\n   Pembahasan/Rubrik: Mitokondria menghasilkan ATP.\n\n" +
		"2. Mengatur keluar masuk zat\n   Pembahasan/Rubrik: Rubrik: 'lengkap'\nskor 10\n\n"
	if got != want {
		t.Errorf("Text() =\n%s\nwant\n%s", got, want)
	}
}

func TestTextWithoutExplanation(t *testing.T) {
	d := testDocument(t)
	d.Exam.Questions[0].Explanation = ""
	got := render(t, func(w *bytes.Buffer) error { return Text(w, d) })

	want := "--- KUNCI JAWABAN & PEMBAHASAN ---\n\n" +
		"1. A\n" +
		"2. Mengatur keluar masuk zat\n   Pembahasan/Rubrik: Rubrik: 'lengkap'\nskor 10\n\n"
	if !strings.HasSuffix(got, want) {
		t.Errorf("answer key =\n%q\nwant suffix\n%q", got, want)
	}
}

func TestTextDefaultSubject(t *testing.T) {
	d := testDocument(t)
	d.Exam.Config.Subject = ""
	got := render(t, func(w *bytes.Buffer) error { return Text(w, d) })
	if !strings.HasPrefix(got, "MATA PELAJARAN: Ujian\n") {
		t.Errorf("expected fallback subject, got %q", got[:40])
	}
}

func TestEmptyExam(t *testing.T) {
	d := testDocument(t)
	d.Exam.Questions = nil
	for _, f := range Formats {
		exp, err := Lookup(string(f))
		if err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		if err := exp.Write(&buf, d); !errors.Is(err, ErrNoQuestions) {
			t.Errorf("%s: expected ErrNoQuestions, got %v", f, err)
		}
		if buf.Len() != 0 {
			t.Errorf("%s: wrote %d bytes for an empty exam", f, buf.Len())
		}
	}
}

func TestWord(t *testing.T) {
	d := testDocument(t)
	got := render(t, func(w *bytes.Buffer) error { return Word(w, d) })

	if !strings.HasPrefix(got, "\ufeff<html xmlns:o='urn:schemas-microsoft-com:office:office'") {
		t.Errorf("missing BOM or Office namespace: %q", got[:60])
	}
	for _, want := range []string{
		"<h1>Biologi Sel</h1>",
		"<strong>Tipe:</strong> Pilihan Ganda",
		"<strong>Instruksi:</strong> Pilihlah satu jawaban yang paling tepat.",
		"<h2>DAFTAR SOAL</h2>",
		"<td width='70%' valign='top'>",
		"<td width='100%' valign='top'>",
		"<p class='q-text'>1. Organel penghasil energi?</p>",
		"<p>B. Ribosom</p>",
		`width="180" alt="Soal 1"`,
		`src="data:image/png;base64,`,
		"2. Jelaskan fungsi &lt;membran&gt; sel.",
		"<h2>KUNCI JAWABAN</h2>",
		"<strong>1. A</strong><br/><em>Mitokondria menghasilkan ATP.</em>",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Word output missing %q", want)
		}
	}
	if strings.Contains(got, "ZgotmplZ") {
		t.Error("image URL was rejected by the template")
	}
	if strings.Count(got, "<img") != 1 {
		t.Errorf("expected one image, got %d", strings.Count(got, "<img"))
	}
}

func TestClipboardHTML(t *testing.T) {
	d := testDocument(t)
	got := render(t, func(w *bytes.Buffer) error { return ClipboardHTML(w, d) })

	for _, want := range []string{
		"<h2>Biologi Sel - Kelas 10 SMA</h2>",
		"<em>Pilihlah satu jawaban yang paling tepat.</em>",
		"<p><strong>1. Organel penghasil energi?</strong></p>",
		"<div>C. Lisosom</div>",
		"width:200px",
		"<h3>Kunci Jawaban</h3>",
		"<p>2. Mengatur keluar masuk zat</p>",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("clipboard HTML missing %q", want)
		}
	}
}

func TestImageThumbnail(t *testing.T) {
	d := testDocument(t)
	v := newView(d)
	_, data, err := imaging.ParseDataURL(string(v.Questions[0].Image))
	if err != nil {
		t.Fatalf("parse thumbnail: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if cfg.Width != imaging.ExportWidth || cfg.Height != imaging.ExportWidth/2 {
		t.Errorf("thumbnail is %dx%d, want %dx%d", cfg.Width, cfg.Height, imaging.ExportWidth, imaging.ExportWidth/2)
	}

	d.Exam.Questions[0].ImageURL = "https://example.com/cell.png"
	if v := newView(d); v.Questions[0].Image != "" {
		t.Errorf("remote image should be dropped, got %q", v.Questions[0].Image)
	}
}

func TestAppsScript(t *testing.T) {
	d := testDocument(t)
	got := render(t, func(w *bytes.Buffer) error { return AppsScript(w, d) })

	for _, want := range []string{
		"function createQuiz() {",
		"var form = FormApp.create('Biologi Sel - Kelas 10 SMA');",
		`form.setDescription('Tipe: Pilihan Ganda.\nInstruksi: Pilihlah satu jawaban yang paling tepat.');`,
		"form.setCollectEmail(true);",
		"nameItem.setTitle('Nama Lengkap');",
		"classItem.setTitle('Kelas');",
		"form.addPageBreakItem().setTitle('Soal Ujian');",
		"// Soal 1 (mcq)",
		"var item0 = form.addMultipleChoiceItem();",
		"item0.setPoints(10);",
		"item0.createChoice('Mitokondria', true)",
		"item0.createChoice('Ribosom', false)",
		"item0.setFeedbackForCorrect(feedback0);",
		"item0.setFeedbackForIncorrect(feedback0);",
		"var item1 = form.addParagraphTextItem();",
		`FormApp.createFeedback().setText('Rubrik: \'lengkap\'\nskor 10').build();`,
		"item1.setGeneralFeedback(feedback1);",
		"Logger.log('Form Published URL: ' + form.getPublishedUrl());",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("script missing %q", want)
		}
	}
	if strings.Contains(got, "item1.setChoices") {
		t.Error("paragraph items must not get choices")
	}
}

func TestAppsScriptChoiceWithoutOptions(t *testing.T) {
	d := testDocument(t)
	d.Exam.Questions = []model.Question{{ID: 1, Type: "true_false", QuestionText: "Sel itu hidup.", CorrectAnswer: "Benar"}}
	got := render(t, func(w *bytes.Buffer) error { return AppsScript(w, d) })
	if !strings.Contains(got, "form.addParagraphTextItem()") || strings.Contains(got, "setChoices") {
		t.Errorf("choice item without options should become a paragraph:\n%s", got)
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{`a\b`, `'a\\b'`},
		{"it's", `'it\'s'`},
		{"line1\r\nline2", `'line1\nline2'`},
		{"", "''"},
	}
	for _, tt := range tests {
		if got := quote(tt.in); got != tt.want {
			t.Errorf("quote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestJSON(t *testing.T) {
	d := testDocument(t)
	got := render(t, func(w *bytes.Buffer) error { return JSON(w, d) })

	var out model.ExamExport
	if err := json.Unmarshal([]byte(got), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.ExamID != "exam-1" || out.NumQuestions != 2 || out.Instruction != d.Instruction {
		t.Errorf("unexpected export: %+v", out)
	}
	if out.ExportedAt.IsZero() {
		t.Error("ExportedAt should be set")
	}
}

func TestLookupAndFileName(t *testing.T) {
	d := testDocument(t)
	tests := []struct {
		format      string
		fileName    string
		contentType string
	}{
		{"txt", "Biologi_Sel_export.txt", "text/plain; charset=utf-8"},
		{"DOC", "Biologi_Sel.doc", "application/msword"},
		{"html", "Biologi_Sel.html", "text/html; charset=utf-8"},
		{"gas", "Biologi_Sel_createQuiz.gs", "application/javascript; charset=utf-8"},
		{"json", "Biologi_Sel.json", "application/json"},
	}
	for _, tt := range tests {
		exp, err := Lookup(tt.format)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", tt.format, err)
		}
		if got := exp.FileName(d); got != tt.fileName {
			t.Errorf("FileName(%s) = %q, want %q", tt.format, got, tt.fileName)
		}
		if exp.ContentType != tt.contentType {
			t.Errorf("ContentType(%s) = %q, want %q", tt.format, exp.ContentType, tt.contentType)
		}
	}
	if _, err := Lookup("pdf"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestNewDocument(t *testing.T) {
	if err := i18n.Init("id"); err != nil {
		t.Fatal(err)
	}
	ctx := i18n.WithLocalizer(context.Background(), i18n.NewLocalizer("en"))
	cfg := model.DefaultExamConfig()
	cfg.ExamType = model.ExamEssay

	d := NewDocument(ctx, model.Exam{Config: cfg})
	if d.ExamType != "Essay" {
		t.Errorf("ExamType = %q, want Essay", d.ExamType)
	}
	if !strings.HasPrefix(d.Instruction, "Answer the following questions") {
		t.Errorf("Instruction = %q", d.Instruction)
	}
}

func TestJSONAll(t *testing.T) {
	d := testDocument(t)
	empty := Document{Exam: model.Exam{ID: "exam-2", Config: model.DefaultExamConfig()}}

	got := render(t, func(w *bytes.Buffer) error { return JSONAll(w, []Document{d, empty}) })
	var out []model.ExamExport
	if err := json.Unmarshal([]byte(got), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 2 || out[0].NumQuestions != 2 || out[1].ExamID != "exam-2" {
		t.Errorf("unexpected export: %+v", out)
	}
	if !strings.Contains(got, `"questions": []`) {
		t.Error("empty exams should export an empty questions array")
	}

	got = render(t, func(w *bytes.Buffer) error { return JSONAll(w, nil) })
	if strings.TrimSpace(got) != "[]" {
		t.Errorf("JSONAll(nil) = %q, want []", got)
	}
}
