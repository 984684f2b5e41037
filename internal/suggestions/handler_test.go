package suggestions_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/JaimeStill/evidence-lab/internal/evidence"
	"github.com/JaimeStill/evidence-lab/internal/extractions"
	"github.com/JaimeStill/evidence-lab/internal/suggestions"
)

type evidenceByID map[uuid.UUID]*evidence.File

func (e evidenceByID) Find(_ context.Context, id uuid.UUID) (*evidence.File, error) {
	if f, ok := e[id]; ok {
		return f, nil
	}
	return nil, evidence.ErrNotFound
}

type textsByID map[uuid.UUID]*extractions.Extraction

func (x textsByID) Find(_ context.Context, id uuid.UUID) (*extractions.Extraction, error) {
	if rec, ok := x[id]; ok {
		return rec, nil
	}
	return nil, extractions.ErrNotFound
}

func TestSuggestHandler(t *testing.T) {
	h := newHarness(reply{out: claimsJSON("Handler claim.")})
	caseID := uuid.New()
	ready, processing, bare := uuid.New(), uuid.New(), uuid.New()

	files := evidenceByID{
		ready:      {ID: ready, CaseID: caseID},
		processing: {ID: processing, CaseID: caseID},
		bare:       {ID: bare, CaseID: caseID},
	}
	texts := textsByID{
		ready:      {EvidenceID: ready, Status: extractions.StatusComplete, Text: longText},
		processing: {EvidenceID: processing, Status: extractions.StatusProcessing},
	}

	handler := suggestions.NewHandler(h.scheduler, files, texts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	group := handler.Routes()
	mux := http.NewServeMux()
	for _, rt := range group.Routes {
		mux.HandleFunc(rt.Method+" "+group.Prefix+rt.Pattern, rt.Handler)
	}

	tests := []struct {
		name string
		id   uuid.UUID
		want int
	}{
		{"complete extraction", ready, http.StatusOK},
		{"extraction running", processing, http.StatusUnprocessableEntity},
		{"no extraction", bare, http.StatusUnprocessableEntity},
		{"unknown evidence", uuid.New(), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/evidence/"+tt.id.String()+"/claims/suggest", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			if tt.want == http.StatusOK {
				var res suggestions.Result
				if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
					t.Fatal(err)
				}
				if res.Created != 1 || res.CaseID != caseID {
					t.Errorf("result = %+v", res)
				}
			}
		})
	}
}
