package routes_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JaimeStill/evidence-lab/pkg/routes"
)

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}
}

func TestBuild_NestedGroups(t *testing.T) {
	sys := routes.New(slog.New(slog.NewTextHandler(io.Discard, nil)))

	sys.RegisterRoute(routes.Route{Method: "GET", Pattern: "/healthz", Handler: respond("ok")})
	sys.RegisterGroup(routes.Group{
		Prefix: "/api",
		Children: []routes.Group{
			{
				Prefix: "/evidence",
				Routes: []routes.Route{
					{Method: "GET", Pattern: "/{id}", Handler: func(w http.ResponseWriter, r *http.Request) {
						w.Write([]byte("evidence " + r.PathValue("id")))
					}},
				},
			},
		},
	})

	handler := sys.Build()

	tests := []struct {
		method string
		path   string
		status int
		body   string
	}{
		{"GET", "/healthz", http.StatusOK, "ok"},
		{"GET", "/api/evidence/abc", http.StatusOK, "evidence abc"},
		{"POST", "/api/evidence/abc", http.StatusMethodNotAllowed, ""},
		{"GET", "/api/unknown", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.body != "" && w.Body.String() != tt.body {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.body)
			}
		})
	}

	if len(sys.Groups()) != 1 || len(sys.Routes()) != 1 {
		t.Errorf("Groups()=%d Routes()=%d, want 1 and 1", len(sys.Groups()), len(sys.Routes()))
	}
}
