// Package material turns uploaded study material into something the model can read.
package material

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/pavelanni/examgen/internal/model"
)

// MaxUploadBytes caps a single material upload.
const MaxUploadBytes = 20 << 20

// PDFMIMEType is the only binary type forwarded to the model as a document.
const PDFMIMEType = "application/pdf"

// AcceptedExtensions is advertised on the upload input.
var AcceptedExtensions = []string{".txt", ".md", ".csv", ".pdf"}

// ErrTooLarge is returned when an upload exceeds MaxUploadBytes.
var ErrTooLarge = errors.New("material too large")

// Upload is the result of reading one uploaded file. Exactly one of Text and
// File is set: PDFs stay binary, everything else is read as text.
type Upload struct {
	Text string
	File *model.Material
}

// IsPDF reports whether the upload should be treated as a PDF document.
func IsPDF(name, contentType string) bool {
	if ct, _, err := mime.ParseMediaType(contentType); err == nil && ct == PDFMIMEType {
		return true
	}
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// Load classifies an uploaded file.
func Load(name, contentType string, data []byte) (Upload, error) {
	if len(data) > MaxUploadBytes {
		return Upload{}, ErrTooLarge
	}
	if IsPDF(name, contentType) {
		return Upload{File: &model.Material{Name: name, MIMEType: PDFMIMEType, Data: data}}, nil
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return Upload{}, fmt.Errorf("read %s: not valid UTF-8 text", name)
	}
	return Upload{Text: string(data)}, nil
}

// Apply copies an upload into a configuration, clearing the other source.
func Apply(cfg *model.ExamConfig, u Upload) {
	if u.File != nil {
		cfg.File = u.File
		cfg.ContextText = ""
		return
	}
	cfg.File = nil
	cfg.ContextText = u.Text
}

// ExtractText returns the plain text of a PDF document. The pdf reader panics on
// some malformed files; those panics are returned as errors.
func ExtractText(data []byte) (text string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("read pdf text: %v", p)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	pt, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, pt); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
