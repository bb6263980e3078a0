package main

import (
	"embed"
	"html/template"
	"math"
	"net/http"

	"github.com/YuminosukeSato/examscore/dataset"
	"github.com/YuminosukeSato/examscore/pkg/log"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// scorer is the part of inference.Predictor the handlers need
type scorer interface {
	Predict(record dataset.Record) (float64, error)
}

type homePage struct {
	Result  *float64
	Failure string
}

type handler struct {
	predictor scorer
	logger    log.Logger
}

func newHandler(p scorer) http.Handler {
	h := &handler{predictor: p, logger: log.GetLoggerWithName("server")}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.index)
	mux.HandleFunc("GET /predict-data", h.form)
	mux.HandleFunc("POST /predict-data", h.predict)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (h *handler) index(w http.ResponseWriter, _ *http.Request) {
	h.render(w, http.StatusOK, "index.html", nil)
}

func (h *handler) form(w http.ResponseWriter, _ *http.Request) {
	h.render(w, http.StatusOK, "home.html", homePage{})
}

func (h *handler) predict(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, "home.html", homePage{Failure: "The form could not be read."})
		return
	}
	rec, err := dataset.RecordFromForm(r.PostForm.Get)
	if err != nil {
		h.logger.Warn("Rejected form input", "error", err)
		h.render(w, http.StatusBadRequest, "home.html", homePage{Failure: "Scores must be whole numbers."})
		return
	}

	score, err := h.predictor.Predict(rec)
	if err != nil {
		h.logger.Error("Prediction failed", err, log.PhaseKey, log.PhaseInference)
		h.render(w, http.StatusInternalServerError, "home.html", homePage{Failure: "Prediction failed."})
		return
	}
	rounded := math.Round(score*100) / 100
	h.render(w, http.StatusOK, "home.html", homePage{Result: &rounded})
}

func (h *handler) render(w http.ResponseWriter, status int, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("Template rendering failed", err, "template", name)
	}
}
