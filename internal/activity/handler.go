package activity

import (
	"log/slog"
	"net/http"

	"github.com/JaimeStill/evidence-lab/pkg/handlers"
	"github.com/JaimeStill/evidence-lab/pkg/pagination"
	"github.com/JaimeStill/evidence-lab/pkg/routes"
)

// Handler exposes the activity trail over HTTP.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "activity"),
		pagination: pagination,
	}
}

func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix:      "/cases/{caseId}/activity",
		Description: "Pipeline audit trail",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
		},
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	caseID, err := handlers.PathUUID(r, "caseId")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	page := pagination.FromQuery(r.URL.Query(), h.pagination)

	result, err := h.sys.ListByCase(r.Context(), caseID, page)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}
