package material

import (
	"errors"
	"testing"

	"github.com/pavelanni/examgen/internal/model"
)

func TestIsPDF(t *testing.T) {
	tests := []struct {
		name, ct string
		want     bool
	}{
		{"notes.pdf", "", true},
		{"NOTES.PDF", "application/octet-stream", true},
		{"blob", "application/pdf", true},
		{"notes.txt", "text/plain; charset=utf-8", false},
		{"notes.md", "", false},
	}
	for _, tt := range tests {
		if got := IsPDF(tt.name, tt.ct); got != tt.want {
			t.Errorf("IsPDF(%q, %q) = %v, want %v", tt.name, tt.ct, got, tt.want)
		}
	}
}

func TestLoad(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		u, err := Load("notes.md", "text/markdown", []byte("\xef\xbb\xbf# Sel\nisi"))
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if u.File != nil {
			t.Error("text upload should not carry a file")
		}
		if u.Text != "# Sel\nisi" {
			t.Errorf("Text = %q", u.Text)
		}
	})

	t.Run("pdf", func(t *testing.T) {
		u, err := Load("bab1.pdf", "application/pdf", []byte("%PDF-1.4"))
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if u.File == nil || u.File.MIMEType != PDFMIMEType || u.File.Name != "bab1.pdf" {
			t.Errorf("unexpected file: %+v", u.File)
		}
		if u.Text != "" {
			t.Error("pdf upload should not carry text")
		}
	})

	t.Run("invalid utf8", func(t *testing.T) {
		if _, err := Load("x.txt", "text/plain", []byte{0xff, 0xfe, 0x00}); err == nil {
			t.Error("expected error for invalid UTF-8")
		}
	})

	t.Run("too large", func(t *testing.T) {
		_, err := Load("big.txt", "text/plain", make([]byte, MaxUploadBytes+1))
		if !errors.Is(err, ErrTooLarge) {
			t.Errorf("expected ErrTooLarge, got %v", err)
		}
	})
}

func TestApply(t *testing.T) {
	cfg := model.DefaultExamConfig()
	cfg.ContextText = "old"

	Apply(&cfg, Upload{File: &model.Material{Name: "a.pdf"}})
	if cfg.File == nil || cfg.ContextText != "" {
		t.Errorf("pdf should replace text: %+v", cfg)
	}

	Apply(&cfg, Upload{Text: "new"})
	if cfg.File != nil || cfg.ContextText != "new" {
		t.Errorf("text should replace file: %+v", cfg)
	}
}

func TestExtractTextInvalid(t *testing.T) {
	if _, err := ExtractText([]byte("not a pdf")); err == nil {
		t.Error("expected error for non-PDF data")
	}
}
