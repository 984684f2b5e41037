package main

import (
	"time"

	"github.com/JaimeStill/evidence-lab/internal/config"
	"github.com/JaimeStill/evidence-lab/internal/infrastructure"
	"github.com/JaimeStill/evidence-lab/internal/server"
	"github.com/JaimeStill/evidence-lab/pkg/routes"
)

// Server coordinates the lifecycle of all subsystems.
type Server struct {
	infra  *infrastructure.Infrastructure
	domain *Domain
	http   server.System
}

// NewServer creates and wires every subsystem without starting any.
func NewServer(cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}

	domain, err := NewDomain(infra, cfg)
	if err != nil {
		return nil, err
	}

	routeSys := routes.New(infra.Logger)
	registerRoutes(routeSys, infra, domain, cfg)
	handler := buildMiddleware(infra).Apply(routeSys.Build())

	infra.Logger.Info(
		"server initialized",
		"addr", cfg.Server.Addr(),
		"version", cfg.Version,
	)

	return &Server{
		infra:  infra,
		domain: domain,
		http:   server.New(&cfg.Server, handler, cfg.ShutdownTimeoutDuration(), infra.Logger),
	}, nil
}

// Start begins all subsystems and returns once they are launched.
func (s *Server) Start() error {
	s.infra.Logger.Info("starting service")

	if err := s.infra.Start(); err != nil {
		return err
	}

	if err := s.domain.Start(s.infra.Lifecycle); err != nil {
		return err
	}

	if err := s.http.Start(s.infra.Lifecycle); err != nil {
		return err
	}

	go func() {
		s.infra.Lifecycle.WaitForStartup()
		s.infra.Logger.Info("all subsystems ready")
	}()

	return nil
}

// Shutdown cancels the lifecycle and waits up to timeout for every
// subsystem to stop.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.infra.Logger.Info("initiating shutdown")
	return s.infra.Lifecycle.Shutdown(timeout)
}
