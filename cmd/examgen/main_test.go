package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/viper"

	"github.com/pavelanni/examgen/internal/exam"
	"github.com/pavelanni/examgen/internal/llm"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/store"
)

func seedDB(t *testing.T) (string, model.Exam) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "examgen.db")
	s, err := store.New(path)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer s.Close()

	cfg := model.DefaultExamConfig()
	cfg.Subject = "Biologi - Sel"
	e, err := s.CreateExam(model.Exam{
		Config: cfg,
		Questions: []model.Question{
			{ID: 1, Type: "mcq", QuestionText: "Organel penghasil energi?", Options: []string{"A. Mitokondria", "B. Ribosom"}, CorrectAnswer: "A", Explanation: "Respirasi sel."},
		},
	})
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	if err := s.SetGeneratorInfo(model.GeneratorInfo{Provider: "gemini", Model: "gemini-2.5-flash"}); err != nil {
		t.Fatalf("SetGeneratorInfo: %v", err)
	}
	return path, e
}

func execute(stdin io.Reader, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(strings.NewReader(""), args...)
	if err != nil {
		t.Fatalf("examgen %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

// pngPixel is a 1x1 PNG.
var pngPixel, _ = base64.StdEncoding.DecodeString(
	"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg==")

const generatedJSON = `{"questions":[` +
	`{"id":1,"type":"mcq","taxonomy":"C1","difficulty":"Sedang","question_text":"Organel penghasil energi?","options":["A. Mitokondria","B. Ribosom"],"correct_answer":"A","explanation":"Respirasi sel.","image_description":"Diagram mitokondria"},` +
	`{"id":2,"type":"essay","taxonomy":"C2","difficulty":"Sedang","question_text":"Jelaskan fungsi membran sel.","correct_answer":"Mengatur zat","explanation":""}]}`

// promptLog records the user prompts a fake endpoint received.
type promptLog struct {
	mu      sync.Mutex
	prompts []string
}

func (l *promptLog) add(p string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prompts = append(l.prompts, p)
}

func (l *promptLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.prompts)
}

// fakeLLM serves the OpenAI chat and image endpoints.
func fakeLLM(t *testing.T) (string, *promptLog) {
	t.Helper()
	log := &promptLog{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, m := range req.Messages {
			if m.Role == "user" {
				log.add(m.Content)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "test",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": generatedJSON},
			}},
		})
	})
	mux.HandleFunc("/v1/images/generations", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"created": 1,
			"data":    []map[string]any{{"b64_json": base64.StdEncoding.EncodeToString(pngPixel)}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL + "/v1", log
}

func generateArgs(llmURL string, extra ...string) []string {
	return append([]string{
		"generate",
		"--llm-provider", "openai",
		"--llm-url", llmURL,
		"--llm-key", "test",
		"--lang", "id",
		"--subject", "Biologi - Sel",
		"--log-level", "error",
	}, extra...)
}

func TestGenerateFromStdin(t *testing.T) {
	for _, timeout := range []string{"0", "1m"} {
		t.Run("timeout="+timeout, func(t *testing.T) {
			llmURL, prompts := fakeLLM(t)
			outPath := filepath.Join(t.TempDir(), "soal.txt")

			out, err := execute(strings.NewReader("Mitokondria adalah pusat respirasi sel."),
				generateArgs(llmURL, "--material", "-", "--timeout", timeout, "--output", outPath)...)
			if err != nil {
				t.Fatalf("generate: %v\n%s", err, out)
			}

			data, err := os.ReadFile(outPath)
			if err != nil {
				t.Fatalf("read output: %v", err)
			}
			for _, want := range []string{
				"MATA PELAJARAN: Biologi - Sel",
				"1. [mcq] Organel penghasil energi?",
				"   - A. Mitokondria",
				"2. Mengatur zat\n",
			} {
				if !strings.Contains(string(data), want) {
					t.Errorf("export missing %q:\n%s", want, data)
				}
			}
			if got := prompts.all(); len(got) != 1 || !strings.Contains(got[0], "Mitokondria adalah pusat respirasi sel.") {
				t.Errorf("material from stdin not sent: %q", got)
			}
		})
	}
}

func TestGenerateWithImagesStoresExam(t *testing.T) {
	llmURL, _ := fakeLLM(t)
	dir := t.TempDir()
	materialPath := filepath.Join(dir, "bab1.txt")
	if err := os.WriteFile(materialPath, []byte("Sel hewan dan organelnya."), 0o644); err != nil {
		t.Fatal(err)
	}
	db := filepath.Join(dir, "examgen.db")
	outPath := filepath.Join(dir, "soal.json")

	run(t, generateArgs(llmURL,
		"--material", materialPath,
		"--images",
		"--format", "json",
		"--db", db,
		"--output", outPath)...)

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var got model.ExamExport
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, data)
	}
	if len(got.Questions) != 2 {
		t.Fatalf("got %d questions, want 2", len(got.Questions))
	}
	if !strings.HasPrefix(got.Questions[0].ImageURL, "data:image/png;base64,") {
		t.Errorf("described question should get an image, got %.40q", got.Questions[0].ImageURL)
	}
	if got.Questions[1].ImageURL != "" {
		t.Error("question without a description should stay without image")
	}

	s, err := store.New(db)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer s.Close()
	stored, err := s.GetExam(got.ExamID)
	if err != nil {
		t.Fatalf("GetExam(%s): %v", got.ExamID, err)
	}
	if stored.Config.ContextText != "Sel hewan dan organelnya." || stored.Questions[0].ImageURL == "" {
		t.Errorf("unexpected stored exam: %+v", stored.Config)
	}
	info, err := s.GetGeneratorInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.Provider != llm.ProviderOpenAI || info.Model != llm.DefaultOpenAIModel || info.UsedAt.IsZero() {
		t.Errorf("generator info = %+v", info)
	}
}

func TestGenerateInvalidConfig(t *testing.T) {
	llmURL, prompts := fakeLLM(t)

	_, err := execute(strings.NewReader("materi"), generateArgs(llmURL, "--material", "-", "--count", "99")...)
	if !errors.Is(err, exam.ErrInvalidConfig) {
		t.Fatalf("expected invalid config error, got %v", err)
	}
	if len(prompts.all()) != 0 {
		t.Error("model must not be called for an invalid config")
	}
}

func TestReadMaterial(t *testing.T) {
	u, err := readMaterial("-", strings.NewReader("\xef\xbb\xbfteks materi"))
	if err != nil {
		t.Fatalf("readMaterial(-): %v", err)
	}
	if u.Text != "teks materi" || u.File != nil {
		t.Errorf("stdin upload = %+v", u)
	}

	pdfPath := filepath.Join(t.TempDir(), "bab1.pdf")
	if err := os.WriteFile(pdfPath, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}
	u, err = readMaterial(pdfPath, nil)
	if err != nil {
		t.Fatalf("readMaterial(pdf): %v", err)
	}
	if u.File == nil || u.File.Name != "bab1.pdf" || u.File.MIMEType != "application/pdf" {
		t.Errorf("pdf upload = %+v", u)
	}

	if _, err := readMaterial(filepath.Join(t.TempDir(), "missing.txt"), nil); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestList(t *testing.T) {
	db, e := seedDB(t)

	out := run(t, "list", "--db", db, "--lang", "id", "--log-level", "error")
	for _, want := range []string{"SUBJECT", e.ID, "Biologi - Sel", "Pilihan Ganda", "1 set soal tersimpan", "last generator: gemini"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}
}

func TestExportOne(t *testing.T) {
	db, e := seedDB(t)
	outPath := filepath.Join(t.TempDir(), "soal.txt")

	run(t, "export", "--db", db, "--exam-id", e.ID, "--format", "txt", "--output", outPath, "--log-level", "error")

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	for _, want := range []string{"Biologi - Sel", "Organel penghasil energi?", "A. Mitokondria"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("export missing %q:\n%s", want, data)
		}
	}
}

func TestExportAll(t *testing.T) {
	db, _ := seedDB(t)
	outPath := filepath.Join(t.TempDir(), "all.json")

	run(t, "export", "--db", db, "--all", "--output", outPath, "--log-level", "error")

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var exams []model.ExamExport
	if err := json.Unmarshal(data, &exams); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, data)
	}
	if len(exams) != 1 || exams[0].Subject != "Biologi - Sel" || len(exams[0].Questions) != 1 {
		t.Errorf("unexpected export: %+v", exams)
	}
}

func TestExportUnknownExam(t *testing.T) {
	db, _ := seedDB(t)

	cmd := rootCmd()
	cmd.SetArgs([]string{"export", "--db", db, "--exam-id", "missing", "--log-level", "error"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Error("expected error for unknown exam")
	}
}

func TestNewGeneratorInfoDefaults(t *testing.T) {
	tests := []struct {
		provider  string
		model     string
		wantModel string
		wantImage string
	}{
		{llm.ProviderGemini, "", llm.DefaultGeminiModel, llm.DefaultGeminiImageModel},
		{llm.ProviderOpenAI, "", llm.DefaultOpenAIModel, llm.DefaultOpenAIImageModel},
		{llm.ProviderOpenAI, "llama3", "llama3", llm.DefaultOpenAIImageModel},
	}
	for _, tt := range tests {
		t.Run(tt.provider+"/"+tt.model, func(t *testing.T) {
			v := viper.New()
			v.Set("llm-provider", tt.provider)
			v.Set("llm-model", tt.model)
			v.Set("llm-key", "test")
			v.Set("lang", "id")

			_, info, release, err := newGenerator(context.Background(), v)
			if err != nil {
				t.Fatalf("newGenerator: %v", err)
			}
			t.Cleanup(release)
			if info.Provider != tt.provider || info.Model != tt.wantModel || info.ImageModel != tt.wantImage {
				t.Errorf("info = %+v", info)
			}
		})
	}
}
