package claims

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/JaimeStill/evidence-lab/pkg/handlers"
	"github.com/JaimeStill/evidence-lab/pkg/routes"
)

// Handler provides HTTP endpoints for claim review and citation attachment.
type Handler struct {
	sys    System
	ranker *Ranker
	logger *slog.Logger
}

func NewHandler(sys System, ranker *Ranker, logger *slog.Logger) *Handler {
	return &Handler{
		sys:    sys,
		ranker: ranker,
		logger: logger.With("handler", "claims"),
	}
}

// ClaimResponse is a claim with its linked citations.
type ClaimResponse struct {
	Claim
	Citations []Citation `json:"citations"`
}

func (h *Handler) Routes() []routes.Group {
	return []routes.Group{
		{
			Prefix:      "/cases/{caseId}",
			Description: "Case claims and issue groups",
			Routes: []routes.Route{
				{Method: "GET", Pattern: "/claims", Handler: h.ListByCase},
				{Method: "GET", Pattern: "/issue-groups", Handler: h.ListGroups},
			},
		},
		{
			Prefix:      "/claims/{id}",
			Description: "Claim review",
			Routes: []routes.Route{
				{Method: "GET", Pattern: "", Handler: h.Find},
				{Method: "POST", Pattern: "/accept", Handler: h.transition(StatusAccepted)},
				{Method: "POST", Pattern: "/reject", Handler: h.transition(StatusRejected)},
				{Method: "POST", Pattern: "/restore", Handler: h.transition(StatusSuggested)},
				{Method: "POST", Pattern: "/citations/auto-attach", Handler: h.AutoAttach},
			},
		},
	}
}

func (h *Handler) ListByCase(w http.ResponseWriter, r *http.Request) {
	caseID, err := handlers.PathUUID(r, "caseId")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	var statuses []Status
	if s := r.URL.Query().Get("status"); s != "" {
		status := Status(s)
		if _, ok := transitions[status]; !ok {
			handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("unknown status %q", s))
			return
		}
		statuses = append(statuses, status)
	}

	list, err := h.sys.ListClaims(r.Context(), caseID, statuses...)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, list)
}

func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	caseID, err := handlers.PathUUID(r, "caseId")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	groups, err := h.sys.ListGroups(r.Context(), caseID)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, groups)
}

func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	claim, err := h.sys.FindClaim(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	linked, err := h.sys.ClaimCitations(r.Context(), []uuid.UUID{claim.ID})
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	citations := linked[claim.ID]
	if citations == nil {
		citations = []Citation{}
	}
	handlers.RespondJSON(w, http.StatusOK, ClaimResponse{Claim: *claim, Citations: citations})
}

func (h *Handler) transition(to Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := handlers.PathUUID(r, "id")
		if err != nil {
			handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
			return
		}

		claim, err := h.sys.Transition(r.Context(), id, to)
		if err != nil {
			handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
			return
		}

		handlers.RespondJSON(w, http.StatusOK, claim)
	}
}

func (h *Handler) AutoAttach(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.PathUUID(r, "id")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	opts, err := handlers.DecodeJSON[AttachOptions](r)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}
	if opts.MaxAttach <= 0 {
		opts.MaxAttach = 1
	}

	result, err := h.ranker.AutoAttach(r.Context(), id, opts)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}
