package runtime

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/drblury/dispatchflow/internal/runtime/adapter/messaging"
	"github.com/drblury/dispatchflow/internal/runtime/adapter/rest"
	errspkg "github.com/drblury/dispatchflow/internal/runtime/errors"
	"github.com/drblury/dispatchflow/internal/runtime/handlers"
	loggingpkg "github.com/drblury/dispatchflow/internal/runtime/logging"
)

// ListenerInfo describes a topic consumed into the dispatcher.
type ListenerInfo struct {
	Name  string `json:"name"`
	Topic string `json:"topic"`
}

// RouteInfo describes a REST route served by the dispatcher.
type RouteInfo struct {
	Method  string        `json:"method"`
	Pattern string        `json:"pattern"`
	Mode    handlers.Mode `json:"mode"`
}

// RegisterComponent registers the handlers of each component with the dispatcher.
func (s *Service) RegisterComponent(components ...handlers.Component) error {
	if s == nil {
		return errspkg.ErrServiceRequired
	}
	if err := s.dispatcher.Register(components...); err != nil {
		return err
	}
	for _, c := range components {
		if c == nil {
			continue
		}
		s.Logger.Info("Registered component", loggingpkg.LogFields{
			"component": c.ComponentName(),
			"handlers":  len(c.Handlers()),
		})
	}
	return nil
}

// RegisterHandlers registers individual handler bindings with the dispatcher.
func (s *Service) RegisterHandlers(regs ...handlers.Registration) error {
	if s == nil {
		return errspkg.ErrServiceRequired
	}
	return s.dispatcher.RegisterHandlers(regs...)
}

// RegisterListener consumes topic and dispatches every message asynchronously.
// name identifies the listener in the router and must be unique.
func (s *Service) RegisterListener(name, topic string) error {
	if s == nil {
		return errspkg.ErrServiceRequired
	}
	if strings.TrimSpace(topic) == "" {
		return errspkg.ErrTopicRequired
	}
	if strings.TrimSpace(name) == "" {
		name = topic + "-listener"
	}
	if s.router == nil || s.subscriber == nil {
		return errors.New("service transport is not initialised")
	}

	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	for _, l := range s.listeners {
		if l.Name == name {
			return fmt.Errorf("listener %q already registered", name)
		}
	}

	s.router.AddNoPublisherHandler(name, topic, s.subscriber, messaging.Handler(s.dispatcher, s.processor))
	s.listeners = append(s.listeners, ListenerInfo{Name: name, Topic: topic})
	s.Logger.Info("Registered listener", loggingpkg.LogFields{"listener": name, "topic": topic})
	return nil
}

// RegisterRoute serves routes through the REST adapter once the service starts.
// Nothing is registered when a route is invalid.
func (s *Service) RegisterRoute(routes ...rest.Route) error {
	if s == nil {
		return errspkg.ErrServiceRequired
	}

	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	if err := rest.Mount(s.restMux(), s.rest, s.dispatcher, routes...); err != nil {
		return err
	}
	for _, r := range routes {
		s.routes = append(s.routes, RouteInfo{Method: strings.ToUpper(r.Method), Pattern: r.Pattern, Mode: r.Mode})
	}
	return nil
}

// Listeners returns the registered listeners sorted by name.
func (s *Service) Listeners() []ListenerInfo {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()

	out := append([]ListenerInfo(nil), s.listeners...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Routes returns the registered REST routes in registration order.
func (s *Service) Routes() []RouteInfo {
	s.listenersMu.RLock()
	defer s.listenersMu.RUnlock()

	return append([]RouteInfo(nil), s.routes...)
}
