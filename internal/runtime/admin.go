package runtime

import (
	"net/http"
	"strings"

	"github.com/drblury/dispatchflow/internal/runtime/dispatcher"
	"github.com/drblury/dispatchflow/internal/runtime/jsoncodec"
	"github.com/drblury/dispatchflow/internal/runtime/registry"
	transportpkg "github.com/drblury/dispatchflow/internal/runtime/transport"
)

const defaultAdminPort = 8081

// AdminReport is served by the /api/handlers endpoint.
type AdminReport struct {
	Component    string                    `json:"component"`
	State        string                    `json:"state"`
	Bindings     []registry.Binding        `json:"bindings"`
	Stats        []dispatcher.BindingStats `json:"stats"`
	Listeners    []ListenerInfo            `json:"listeners"`
	Routes       []RouteInfo               `json:"routes"`
	Transport    transportpkg.Capabilities `json:"transport"`
	PoisonQueue  string                    `json:"poison_queue,omitempty"`
	PoisonReport PoisonMetricsSnapshot     `json:"poison"`
	Resources    ResourceUsage             `json:"resources"`
}

// StartAdminServer registers the introspection endpoint when enabled.
func (s *Service) StartAdminServer() {
	if s.Conf == nil || !s.Conf.AdminEnabled {
		return
	}

	port := s.Conf.AdminPort
	if port == 0 {
		port = defaultAdminPort
	}

	s.RegisterHTTPHandler(port, "/api/handlers", http.HandlerFunc(s.handleGetHandlers))
}

// AdminReport collects the bindings, listeners, routes and statistics of the service.
func (s *Service) AdminReport() AdminReport {
	report := AdminReport{
		Bindings:     []registry.Binding{},
		Stats:        []dispatcher.BindingStats{},
		Listeners:    s.Listeners(),
		Routes:       s.Routes(),
		Transport:    s.capabilities,
		PoisonReport: s.poisonMetrics.Snapshot(),
		Resources:    s.resources.Snapshot(),
	}
	if s.Conf != nil {
		report.Component = s.Conf.ComponentName
		report.PoisonQueue = s.Conf.PoisonQueue
	}
	if s.dispatcher != nil {
		report.State = s.dispatcher.State().String()
		report.Bindings = s.dispatcher.Registry().Bindings()
		report.Stats = s.dispatcher.Stats()
	}
	return report
}

func (s *Service) handleGetHandlers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.Conf != nil && len(s.Conf.AdminCORSAllowedOrigins) > 0 {
		origin := r.Header.Get("Origin")
		allowedOrigin := s.getAllowedCORSOrigin(origin)
		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET, OPTIONS")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	if err := jsoncodec.Encode(w, s.AdminReport()); err != nil {
		s.Logger.Error("Failed to encode admin report", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// getAllowedCORSOrigin checks if the request origin is allowed and returns the appropriate
// Access-Control-Allow-Origin value.
func (s *Service) getAllowedCORSOrigin(requestOrigin string) string {
	if s.Conf == nil {
		return ""
	}
	for _, allowed := range s.Conf.AdminCORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if requestOrigin != "" && strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
