package extractions

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/JaimeStill/evidence-lab/pkg/handlers"
	"github.com/JaimeStill/evidence-lab/pkg/routes"
)

// Handler provides HTTP endpoints for extraction status and control.
type Handler struct {
	records   System
	scheduler *Scheduler
	logger    *slog.Logger
}

func NewHandler(records System, scheduler *Scheduler, logger *slog.Logger) *Handler {
	return &Handler{
		records:   records,
		scheduler: scheduler,
		logger:    logger.With("handler", "extractions"),
	}
}

// StatusResponse combines the durable record with the in-process job.
type StatusResponse struct {
	Extraction *Extraction `json:"extraction,omitempty"`
	Job        *Job        `json:"job,omitempty"`
}

func (h *Handler) Routes() []routes.Group {
	return []routes.Group{
		{
			Prefix:      "/evidence/{id}/extraction",
			Description: "Evidence text extraction",
			Routes: []routes.Route{
				{Method: "GET", Pattern: "", Handler: h.Status},
				{Method: "POST", Pattern: "", Handler: h.Enqueue},
				{Method: "POST", Pattern: "/retry", Handler: h.Retry},
				{Method: "GET", Pattern: "/pages", Handler: h.Pages},
			},
		},
		{
			Prefix:      "/cases/{caseId}/extractions",
			Description: "Case extraction records",
			Routes: []routes.Route{
				{Method: "GET", Pattern: "", Handler: h.ListByCase},
			},
		},
		{
			Prefix:      "/extractions",
			Description: "Extraction scheduler",
			Routes: []routes.Route{
				{Method: "GET", Pattern: "/stats", Handler: h.Stats},
				{Method: "POST", Pattern: "/sweep", Handler: h.Sweep},
			},
		},
	}
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	var resp StatusResponse

	rec, err := h.records.Find(r.Context(), id)
	switch {
	case err == nil:
		resp.Extraction = rec
	case !errors.Is(err, ErrNotFound):
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	if job, ok := h.scheduler.Job(id); ok {
		resp.Job = &job
	}

	if resp.Extraction == nil && resp.Job == nil {
		handlers.RespondError(w, h.logger, http.StatusNotFound, ErrNotFound)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	result, err := h.scheduler.Enqueue(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, result)
}

func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	result, err := h.scheduler.Retry(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, result)
}

func (h *Handler) Pages(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	pages, err := h.records.ListPages(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, pages)
}

func (h *Handler) ListByCase(w http.ResponseWriter, r *http.Request) {
	caseID, err := handlers.PathUUID(r, "caseId")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	xs, err := h.records.ListByCase(r.Context(), caseID)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, xs)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	handlers.RespondJSON(w, http.StatusOK, h.scheduler.Stats())
}

func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.scheduler.Sweep(r.Context())
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}
