package suggestions

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/evidence-lab/internal/evidence"
	"github.com/JaimeStill/evidence-lab/internal/extractions"
	"github.com/JaimeStill/evidence-lab/pkg/handlers"
	"github.com/JaimeStill/evidence-lab/pkg/routes"
)

// EvidenceFinder resolves evidence files.
type EvidenceFinder interface {
	Find(ctx context.Context, id uuid.UUID) (*evidence.File, error)
}

// TextSource resolves the extraction record of an evidence file.
type TextSource interface {
	Find(ctx context.Context, evidenceID uuid.UUID) (*extractions.Extraction, error)
}

// Handler exposes explicit suggestion runs.
type Handler struct {
	scheduler *Scheduler
	evidence  EvidenceFinder
	texts     TextSource
	logger    *slog.Logger
}

func NewHandler(scheduler *Scheduler, evidence EvidenceFinder, texts TextSource, logger *slog.Logger) *Handler {
	return &Handler{
		scheduler: scheduler,
		evidence:  evidence,
		texts:     texts,
		logger:    logger.With("handler", "suggestions"),
	}
}

func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix:      "/evidence/{id}/claims",
		Description: "AI claim suggestion",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "/suggest", Handler: h.Suggest},
		},
	}
}

func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	file, err := h.evidence.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, evidence.MapHTTPStatus(err), err)
		return
	}

	rec, err := h.texts.Find(r.Context(), id)
	switch {
	case errors.Is(err, extractions.ErrNotFound):
		handlers.RespondError(w, h.logger, MapHTTPStatus(ErrNoText), ErrNoText)
		return
	case err != nil:
		handlers.RespondError(w, h.logger, extractions.MapHTTPStatus(err), err)
		return
	case rec.Status != extractions.StatusComplete:
		handlers.RespondError(w, h.logger, MapHTTPStatus(ErrNoText), ErrNoText)
		return
	}

	result, err := h.scheduler.Reprocess(r.Context(), file.CaseID, id, rec.Text)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}
