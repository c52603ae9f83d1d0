package handler

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/pavelanni/examgen/internal/material"
	"github.com/pavelanni/examgen/internal/model"
)

// errUpload marks a material file that could not be read.
var errUpload = errors.New("upload failed")

// parseConfig reads the setup form. The returned config is always usable for
// re-rendering the form, even when err is set.
func parseConfig(r *http.Request) (model.ExamConfig, error) {
	cfg := model.DefaultExamConfig()
	cfg.Subject = strings.TrimSpace(r.FormValue("subject"))
	cfg.GradeLevel = cmp.Or(strings.TrimSpace(r.FormValue("grade_level")), cfg.GradeLevel)
	cfg.Difficulty = model.Difficulty(cmp.Or(r.FormValue("difficulty"), string(cfg.Difficulty)))
	cfg.ExamType = model.ExamType(cmp.Or(r.FormValue("exam_type"), string(cfg.ExamType)))
	cfg.IncludeImages = r.FormValue("include_images") != ""
	cfg.CP = strings.TrimSpace(r.FormValue("cp"))
	cfg.TP = strings.TrimSpace(r.FormValue("tp"))
	cfg.ContextText = r.FormValue("context_text")
	cfg.BloomLevels = lo.Map(r.Form["bloom"], func(s string, _ int) model.BloomLevel {
		return model.BloomLevel(s)
	})

	// An unparsable count fails validation like an out-of-range one.
	cfg.Count = 0
	if n, err := strconv.Atoi(strings.TrimSpace(r.FormValue("count"))); err == nil {
		cfg.Count = n
	}

	file, header, err := r.FormFile("material")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("%w: %v", errUpload, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return cfg, fmt.Errorf("%w: read %s: %v", errUpload, header.Filename, err)
	}
	if len(data) == 0 {
		return cfg, nil
	}
	u, err := material.Load(header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		return cfg, fmt.Errorf("%w: %v", errUpload, err)
	}
	material.Apply(&cfg, u)
	return cfg, nil
}
