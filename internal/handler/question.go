package handler

import (
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examgen/internal/exam"
	"github.com/pavelanni/examgen/internal/handler/views"
	"github.com/pavelanni/examgen/internal/i18n"
	"github.com/pavelanni/examgen/internal/imaging"
	"github.com/pavelanni/examgen/internal/model"
)

func contentDisposition(name string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": name})
}

// loadQuestion fetches the exam and the question named in the URL. The
// returned index is the question's position in the exam.
func (h *Handler) loadQuestion(w http.ResponseWriter, r *http.Request) (model.Exam, model.Question, int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "questionID"))
	if err != nil {
		http.Error(w, "invalid question ID", http.StatusBadRequest)
		return model.Exam{}, model.Question{}, 0, false
	}
	e, ok := h.loadExam(w, r)
	if !ok {
		return model.Exam{}, model.Question{}, 0, false
	}
	q, idx, found := exam.FindQuestion(e.Questions, id)
	if !found {
		http.Error(w, "question not found", http.StatusNotFound)
		return model.Exam{}, model.Question{}, 0, false
	}
	return e, q, idx, true
}

// respondCard answers htmx requests with the updated card and everything else
// with a redirect back to the review page. Errors are shown inside the card with
// a 200 status since htmx does not swap error responses.
func (h *Handler) respondCard(w http.ResponseWriter, r *http.Request, card views.CardData) {
	if !isHTMX(r) {
		target := h.path("/exam/" + card.ExamID)
		if card.ShowAnswers {
			target += "?answers=1"
		}
		http.Redirect(w, r, target+fmt.Sprintf("#q-%d", card.Question.ID), http.StatusSeeOther)
		return
	}
	render(w, r, http.StatusOK, views.QuestionCard(card))
}

func (h *Handler) handleQuestion(w http.ResponseWriter, r *http.Request) {
	e, q, idx, ok := h.loadQuestion(w, r)
	if !ok {
		return
	}
	mode := r.FormValue("mode")
	switch mode {
	case views.ModeView, views.ModeEdit:
	case views.ModeImage:
		if q.ImageURL == "" {
			mode = views.ModeView
		}
	default:
		http.Error(w, "unknown mode", http.StatusBadRequest)
		return
	}
	h.respondCard(w, r, views.CardData{
		ExamID:      e.ID,
		Number:      idx + 1,
		Question:    q,
		ShowAnswers: showAnswers(r),
		Mode:        mode,
	})
}

// handleSaveQuestion applies the edit form. Option inputs are matched by
// position; the number of options never changes.
func (h *Handler) handleSaveQuestion(w http.ResponseWriter, r *http.Request) {
	e, q, idx, ok := h.loadQuestion(w, r)
	if !ok {
		return
	}

	q.QuestionText = r.FormValue("question_text")
	q.CorrectAnswer = strings.TrimSpace(r.FormValue("correct_answer"))
	q.Explanation = r.FormValue("explanation")
	for i, opt := range r.Form["option"] {
		if i < len(q.Options) {
			q.Options[i] = opt
		}
	}

	if err := h.store.UpdateQuestion(e.ID, q); err != nil {
		slog.Error("failed to save question", "exam_id", e.ID, "question_id", q.ID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.respondCard(w, r, views.CardData{
		ExamID: e.ID, Number: idx + 1, Question: q, ShowAnswers: showAnswers(r),
	})
}

func (h *Handler) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	e, q, idx, ok := h.loadQuestion(w, r)
	if !ok {
		return
	}
	card := views.CardData{ExamID: e.ID, Number: idx + 1, Question: q, ShowAnswers: showAnswers(r)}
	if strings.TrimSpace(q.ImageDescription) == "" {
		h.respondCard(w, r, card)
		return
	}

	ctx, cancel := h.modelContext(r.Context())
	defer cancel()
	url, err := h.gen.GenerateImage(ctx, q.ImageDescription)
	if err != nil {
		slog.Error("image generation failed", "exam_id", e.ID, "question_id", q.ID, "error", err)
		card.Error = i18n.T(r.Context(), "ErrImageGenerate")
		h.respondCard(w, r, card)
		return
	}
	// No image is not an error; the card stays as it was.
	if url == "" {
		h.respondCard(w, r, card)
		return
	}

	q.ImageURL = url
	if err := h.store.UpdateQuestion(e.ID, q); err != nil {
		slog.Error("failed to save image", "exam_id", e.ID, "question_id", q.ID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	card.Question = q
	h.respondCard(w, r, card)
}

func (h *Handler) handleEditImage(w http.ResponseWriter, r *http.Request) {
	e, q, idx, ok := h.loadQuestion(w, r)
	if !ok {
		return
	}
	card := views.CardData{ExamID: e.ID, Number: idx + 1, Question: q, ShowAnswers: showAnswers(r)}
	instruction := strings.TrimSpace(r.FormValue("instruction"))
	if q.ImageURL == "" || instruction == "" {
		h.respondCard(w, r, card)
		return
	}

	ctx, cancel := h.modelContext(r.Context())
	defer cancel()
	url, err := h.gen.EditImage(ctx, q.ImageURL, instruction)
	if err != nil {
		slog.Error("image edit failed", "exam_id", e.ID, "question_id", q.ID, "error", err)
		card.Mode = views.ModeImage
		card.Error = i18n.T(r.Context(), "ErrImageEditFailed")
		h.respondCard(w, r, card)
		return
	}
	if url == "" {
		card.Mode = views.ModeImage
		card.Error = i18n.T(r.Context(), "ErrImageEdit")
		h.respondCard(w, r, card)
		return
	}

	q.ImageURL = url
	if err := h.store.UpdateQuestion(e.ID, q); err != nil {
		slog.Error("failed to save image", "exam_id", e.ID, "question_id", q.ID, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	card.Question = q
	h.respondCard(w, r, card)
}

func (h *Handler) handleDownloadImage(w http.ResponseWriter, r *http.Request) {
	_, q, idx, ok := h.loadQuestion(w, r)
	if !ok {
		return
	}
	mimeType, data, err := imaging.ParseDataURL(q.ImageURL)
	if err != nil {
		http.Error(w, "question has no image", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Disposition", contentDisposition(fmt.Sprintf("soal_%d_image.png", idx+1)))
	_, _ = w.Write(data)
}
