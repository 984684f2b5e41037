package compiler

import (
	"log/slog"
	"net/http"

	"github.com/JaimeStill/evidence-lab/internal/templates"
	"github.com/JaimeStill/evidence-lab/pkg/handlers"
	"github.com/JaimeStill/evidence-lab/pkg/routes"
)

// Handler provides HTTP endpoints for the template catalog, preflight and
// compilation.
type Handler struct {
	compiler *Compiler
	catalog  *templates.Catalog
	logger   *slog.Logger
}

func NewHandler(compiler *Compiler, catalog *templates.Catalog, logger *slog.Logger) *Handler {
	return &Handler{
		compiler: compiler,
		catalog:  catalog,
		logger:   logger.With("handler", "compiler"),
	}
}

func (h *Handler) Routes() []routes.Group {
	return []routes.Group{
		{
			Prefix:      "/templates",
			Description: "Document template catalog",
			Routes: []routes.Route{
				{Method: "GET", Pattern: "", Handler: h.ListTemplates},
			},
		},
		{
			Prefix:      "/cases/{caseId}/templates/{key}",
			Description: "Template preflight and document compilation",
			Routes: []routes.Route{
				{Method: "GET", Pattern: "/preflight", Handler: h.Preflight},
				{Method: "POST", Pattern: "/compile", Handler: h.Compile},
			},
		},
	}
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	handlers.RespondJSON(w, http.StatusOK, h.catalog.List())
}

func (h *Handler) Preflight(w http.ResponseWriter, r *http.Request) {
	caseID, err := handlers.PathUUID(r, "caseId")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	p, err := h.compiler.RunPreflight(r.Context(), caseID, r.PathValue("key"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, p)
}

// Compile responds 422 with the violations when the claims fail the gate.
func (h *Handler) Compile(w http.ResponseWriter, r *http.Request) {
	caseID, err := handlers.PathUUID(r, "caseId")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	opts, err := handlers.DecodeJSON[Options](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	result, err := h.compiler.Compile(r.Context(), caseID, r.PathValue("key"), opts)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	status := http.StatusOK
	if !result.OK {
		status = http.StatusUnprocessableEntity
	}
	handlers.RespondJSON(w, status, result)
}
