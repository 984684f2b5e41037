package routes

import (
	"log/slog"
	"net/http"
)

// System defines the interface for route registration and HTTP handler building.
type System interface {
	RegisterGroup(group Group)
	RegisterRoute(route Route)
	Build() http.Handler
	Groups() []Group
	Routes() []Route
}

type registry struct {
	routes []Route
	groups []Group
	logger *slog.Logger
}

// New creates a route system with the specified logger.
func New(logger *slog.Logger) System {
	return &registry{
		routes: []Route{},
		groups: []Group{},
		logger: logger.With("system", "routes"),
	}
}

func (r *registry) Groups() []Group {
	return r.groups
}

func (r *registry) Routes() []Route {
	return r.routes
}

func (r *registry) RegisterRoute(route Route) {
	r.routes = append(r.routes, route)
}

func (r *registry) RegisterGroup(group Group) {
	r.groups = append(r.groups, group)
}

// Build constructs an http.Handler from all registered routes and groups.
func (r *registry) Build() http.Handler {
	mux := http.NewServeMux()

	for _, route := range r.routes {
		r.handle(mux, route.Method+" "+route.Pattern, route.Handler)
	}

	for _, group := range r.groups {
		r.registerGroup(mux, "", group)
	}

	return mux
}

func (r *registry) registerGroup(mux *http.ServeMux, parentPrefix string, group Group) {
	prefix := parentPrefix + group.Prefix
	for _, route := range group.Routes {
		r.handle(mux, route.Method+" "+prefix+route.Pattern, route.Handler)
	}
	for _, child := range group.Children {
		r.registerGroup(mux, prefix, child)
	}
}

func (r *registry) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	r.logger.Debug("route registered", "pattern", pattern)
	mux.HandleFunc(pattern, h)
}
