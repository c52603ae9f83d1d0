package handler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examgen/internal/exam"
	"github.com/pavelanni/examgen/internal/export"
	"github.com/pavelanni/examgen/internal/handler/views"
	"github.com/pavelanni/examgen/internal/i18n"
	"github.com/pavelanni/examgen/internal/llm"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/store"
)

// Config holds the server settings handlers need.
type Config struct {
	BasePath      string
	SecureCookies bool
	// Timeout bounds each model call. Zero means no limit beyond the request.
	Timeout   time.Duration
	Generator model.GeneratorInfo
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	gen    llm.Generator
	config Config
}

// New creates a new Handler.
func New(s *store.Store, g llm.Generator, cfg Config) (*Handler, error) {
	if s == nil || g == nil {
		return nil, errors.New("handler needs a store and a generator")
	}
	return &Handler{store: s, gen: g, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Get("/", h.handleIndex)
		r.Post("/exam", h.handleGenerate)
		r.Get("/exam/{examID}", h.handleReview)
		r.Post("/exam/{examID}/reset", h.handleReset)
		r.Get("/exam/{examID}/forms", h.handleForms)
		r.Get("/exam/{examID}/export/{format}", h.handleExport)
		r.Get("/exam/{examID}/questions/{questionID}", h.handleQuestion)
		r.Post("/exam/{examID}/questions/{questionID}", h.handleSaveQuestion)
		r.Get("/exam/{examID}/questions/{questionID}/image", h.handleDownloadImage)
		r.Post("/exam/{examID}/questions/{questionID}/image", h.handleGenerateImage)
		r.Post("/exam/{examID}/questions/{questionID}/image/edit", h.handleEditImage)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// render writes an HTML component with the given status.
func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	var buf bytes.Buffer
	if err := c.Render(r.Context(), &buf); err != nil {
		slog.Error("render error", "error", err)
		http.Error(w, "render error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// modelContext applies the configured timeout to a model call.
func (h *Handler) modelContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return llm.CallContext(ctx, h.config.Timeout)
}

// recentExams is how many stored exams the setup page links to.
const recentExams = 10

func (h *Handler) renderSetup(w http.ResponseWriter, r *http.Request, status int, cfg model.ExamConfig, alert string) {
	recent, err := h.store.ListExams(recentExams)
	if err != nil {
		slog.Error("failed to list exams", "error", err)
	}
	total, err := h.store.ExamCount()
	if err != nil {
		slog.Error("failed to count exams", "error", err)
	}
	render(w, r, status, views.SetupPage(views.SetupData{
		Config:   cfg,
		Recent:   recent,
		Total:    total,
		Error:    alert,
		Provider: h.config.Generator.Provider,
	}))
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.renderSetup(w, r, http.StatusOK, model.DefaultExamConfig(), "")
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg, err := parseConfig(r)
	if err != nil {
		slog.Warn("material upload rejected", "error", err)
		h.renderSetup(w, r, http.StatusBadRequest, cfg, i18n.T(ctx, "ErrUpload"))
		return
	}
	if err := exam.Validate(cfg); err != nil {
		var verr *exam.ValidationError
		key := "ErrSubjectAndMaterial"
		if errors.As(err, &verr) {
			key = verr.Key
		}
		h.renderSetup(w, r, http.StatusUnprocessableEntity, cfg, i18n.T(ctx, key))
		return
	}

	mctx, cancel := h.modelContext(ctx)
	defer cancel()
	start := time.Now()
	questions, err := h.gen.GenerateQuestions(mctx, cfg)
	if err != nil {
		slog.Error("question generation failed", "subject", cfg.Subject, "error", err)
		h.renderSetup(w, r, http.StatusBadGateway, cfg, i18n.T(ctx, "ErrGenerate"))
		return
	}
	slog.Info("generated questions",
		"subject", cfg.Subject,
		"exam_type", cfg.ExamType,
		"requested", cfg.Count,
		"received", len(questions),
		"duration", time.Since(start),
	)

	e, err := h.store.CreateExam(model.Exam{Config: cfg, Questions: questions})
	if err != nil {
		slog.Error("failed to store exam", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	info := h.config.Generator
	info.UsedAt = time.Now().UTC()
	if err := h.store.SetGeneratorInfo(info); err != nil {
		slog.Warn("failed to record generator info", "error", err)
	}

	http.Redirect(w, r, h.path("/exam/"+e.ID), http.StatusSeeOther)
}

// loadExam fetches the exam named in the URL, writing the error response itself.
func (h *Handler) loadExam(w http.ResponseWriter, r *http.Request) (model.Exam, bool) {
	e, err := h.store.GetExam(chi.URLParam(r, "examID"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "exam not found", http.StatusNotFound)
		return model.Exam{}, false
	}
	if err != nil {
		slog.Error("failed to load exam", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return model.Exam{}, false
	}
	return e, true
}

func showAnswers(r *http.Request) bool {
	v, _ := strconv.ParseBool(r.FormValue("answers"))
	return v
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	e, ok := h.loadExam(w, r)
	if !ok {
		return
	}
	show := showAnswers(r)
	cards := make([]views.CardData, len(e.Questions))
	for i, q := range e.Questions {
		cards[i] = views.CardData{ExamID: e.ID, Number: i + 1, Question: q, ShowAnswers: show}
	}
	doc := export.NewDocument(r.Context(), e)
	render(w, r, http.StatusOK, views.ReviewPage(views.ReviewData{
		Exam:        e,
		Instruction: doc.Instruction,
		ShowAnswers: show,
		Cards:       cards,
		Provider:    h.config.Generator.Provider,
	}))
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	err := h.store.DeleteExam(chi.URLParam(r, "examID"))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Error("failed to delete exam", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleForms(w http.ResponseWriter, r *http.Request) {
	e, ok := h.loadExam(w, r)
	if !ok {
		return
	}
	var script bytes.Buffer
	err := export.AppsScript(&script, export.NewDocument(r.Context(), e))
	if err != nil && !errors.Is(err, export.ErrNoQuestions) {
		slog.Error("failed to build apps script", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	render(w, r, http.StatusOK, views.FormsPage(views.FormsData{
		Exam:     e,
		Script:   script.String(),
		Provider: h.config.Generator.Provider,
	}))
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	exp, err := export.Lookup(chi.URLParam(r, "format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	e, ok := h.loadExam(w, r)
	if !ok {
		return
	}
	doc := export.NewDocument(r.Context(), e)

	var buf bytes.Buffer
	if err := exp.Write(&buf, doc); err != nil {
		if errors.Is(err, export.ErrNoQuestions) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		slog.Error("export failed", "format", exp.Format, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", exp.ContentType)
	// The clipboard copy fetches HTML inline; everything else downloads.
	if exp.Format != export.FormatHTML {
		w.Header().Set("Content-Disposition", contentDisposition(exp.FileName(doc)))
	}
	_, _ = buf.WriteTo(w)
}
