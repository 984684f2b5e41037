package main

import (
	"github.com/JaimeStill/evidence-lab/internal/infrastructure"
	"github.com/JaimeStill/evidence-lab/pkg/middleware"
)

// buildMiddleware creates the middleware stack with slash trimming and
// request logging.
func buildMiddleware(infra *infrastructure.Infrastructure) middleware.System {
	middlewareSys := middleware.New()
	middlewareSys.Use(middleware.TrimSlash())
	middlewareSys.Use(middleware.Logger(infra.Logger))
	return middlewareSys
}
