package rest

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/drblury/dispatchflow/internal/runtime/dispatcher"
	"github.com/drblury/dispatchflow/internal/runtime/errors"
	"github.com/drblury/dispatchflow/internal/runtime/handlers"
)

// Dispatcher is what the routes dispatch into.
type Dispatcher interface {
	dispatcher.SynchronousDispatcher
	dispatcher.AsynchronousDispatcher
}

// Route binds an HTTP method and chi pattern to a dispatch mode.
type Route struct {
	Method  string
	Pattern string
	Mode    handlers.Mode
	// Mappings optionally restricts the route to known media types.
	Mappings map[string]string
}

func (r Route) Validate() error {
	if strings.TrimSpace(r.Method) == "" {
		return fmt.Errorf("rest: route %q: method is required", r.Pattern)
	}
	if !strings.HasPrefix(r.Pattern, "/") {
		return fmt.Errorf("rest: route %s %q: pattern must start with /", r.Method, r.Pattern)
	}
	if !r.Mode.Valid() {
		return fmt.Errorf("rest: route %s %s: %w", r.Method, r.Pattern, errors.ErrInvalidMode)
	}
	return nil
}

// Handler returns the http.Handler serving route through p.
func (p *Processor) Handler(route Route, d Dispatcher) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := Request{PathParams: PathParams(r), Mappings: route.Mappings}
		if route.Mode == handlers.Synchronous {
			p.ProcessSynchronously(w, r, d, req)
			return
		}
		p.ProcessAsynchronously(w, r, d, req)
	})
}

// Mount registers every route on router. Nothing is registered when a route
// is invalid.
func Mount(router chi.Router, p *Processor, d Dispatcher, routes ...Route) error {
	if d == nil {
		return errors.ErrDispatcherRequired
	}
	for _, route := range routes {
		if err := route.Validate(); err != nil {
			return err
		}
	}
	for _, route := range routes {
		router.Method(strings.ToUpper(route.Method), route.Pattern, p.Handler(route, d))
	}
	return nil
}

// NewRouter returns a chi router with panic recovery serving routes.
func NewRouter(p *Processor, d Dispatcher, routes ...Route) (chi.Router, error) {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	if err := Mount(router, p, d, routes...); err != nil {
		return nil, err
	}
	return router, nil
}

// PathParams returns the URL parameters chi matched for r.
func PathParams(r *http.Request) map[string]string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || len(rctx.URLParams.Keys) == 0 {
		return nil
	}
	params := make(map[string]string, len(rctx.URLParams.Keys))
	for i, key := range rctx.URLParams.Keys {
		if key == "*" || i >= len(rctx.URLParams.Values) {
			continue
		}
		params[key] = rctx.URLParams.Values[i]
	}
	return params
}
