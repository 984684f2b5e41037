package main

import (
	"net/http"

	"github.com/JaimeStill/evidence-lab/internal/activity"
	"github.com/JaimeStill/evidence-lab/internal/claims"
	"github.com/JaimeStill/evidence-lab/internal/compiler"
	"github.com/JaimeStill/evidence-lab/internal/config"
	"github.com/JaimeStill/evidence-lab/internal/evidence"
	"github.com/JaimeStill/evidence-lab/internal/extractions"
	"github.com/JaimeStill/evidence-lab/internal/infrastructure"
	"github.com/JaimeStill/evidence-lab/internal/suggestions"
	"github.com/JaimeStill/evidence-lab/pkg/lifecycle"
	"github.com/JaimeStill/evidence-lab/pkg/routes"
)

// registerRoutes configures the health probes and mounts every domain
// handler under /api.
func registerRoutes(r routes.System, infra *infrastructure.Infrastructure, domain *Domain, cfg *config.Config) {
	logger := infra.Logger

	api := routes.Group{
		Prefix:      "/api",
		Description: "Evidence pipeline API",
	}

	evidenceHandler := evidence.NewHandler(domain.Evidence, logger, cfg.Storage.MaxUploadSizeBytes(), domain.OnUpload)
	api.Children = append(api.Children, evidenceHandler.Routes()...)

	extractionHandler := extractions.NewHandler(domain.Extractions, domain.Extraction, logger)
	api.Children = append(api.Children, extractionHandler.Routes()...)

	claimHandler := claims.NewHandler(domain.Claims, domain.Ranker, logger)
	api.Children = append(api.Children, claimHandler.Routes()...)

	if domain.Suggestions != nil {
		suggestionHandler := suggestions.NewHandler(domain.Suggestions, domain.Evidence, domain.Extractions, logger)
		api.Children = append(api.Children, suggestionHandler.Routes())
	}

	compilerHandler := compiler.NewHandler(domain.Compiler, domain.Templates, logger)
	api.Children = append(api.Children, compilerHandler.Routes()...)

	activityHandler := activity.NewHandler(domain.Activity, logger, cfg.Pagination)
	api.Children = append(api.Children, activityHandler.Routes())

	r.RegisterGroup(api)

	r.RegisterRoute(routes.Route{
		Method:  "GET",
		Pattern: "/healthz",
		Handler: handleHealthCheck,
	})

	r.RegisterRoute(routes.Route{
		Method:  "GET",
		Pattern: "/readyz",
		Handler: func(w http.ResponseWriter, r *http.Request) {
			handleReadinessCheck(w, infra.Lifecycle)
		},
	})
}

// handleHealthCheck responds with OK status for health monitoring.
func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func handleReadinessCheck(w http.ResponseWriter, ready lifecycle.ReadinessChecker) {
	if !ready.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("NOT READY"))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}
