package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/dispatchflow/internal/runtime/adapter/messaging"
	"github.com/drblury/dispatchflow/internal/runtime/adapter/rest"
	configpkg "github.com/drblury/dispatchflow/internal/runtime/config"
	"github.com/drblury/dispatchflow/internal/runtime/dispatcher"
	errspkg "github.com/drblury/dispatchflow/internal/runtime/errors"
	"github.com/drblury/dispatchflow/internal/runtime/handlers"
	idspkg "github.com/drblury/dispatchflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/dispatchflow/internal/runtime/logging"
	transportpkg "github.com/drblury/dispatchflow/internal/runtime/transport"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

const httpShutdownTimeout = 5 * time.Second

// ServiceDependencies holds the optional collaborators that the Service can use.
// Leave fields nil to use the defaults.
type ServiceDependencies struct {
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	TransportFactory          transportpkg.Factory
	// TopicResolver decides where Publish sends envelopes. Defaults to a topic
	// named after the envelope.
	TopicResolver TopicResolver
	// Hooks observe every dispatch in addition to the logging hooks.
	Hooks dispatcher.Hooks
	// Registerer receives the Prometheus collectors when metrics are enabled.
	// Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// Components are registered before the constructor returns.
	Components []handlers.Component
}

// Service wires the dispatcher to a Watermill router for listeners, a chi
// router for REST routes and a transport for publishing.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	publisher    message.Publisher
	subscriber   message.Subscriber
	transport    transportpkg.Transport
	capabilities transportpkg.Capabilities
	router       *message.Router

	dispatcher *dispatcher.Dispatcher
	processor  *messaging.Processor
	rest       *rest.Processor
	restRouter chi.Router
	envelopes  *EnvelopePublisher
	newID      idspkg.Generator

	registerer    prometheus.Registerer
	poisonMetrics *PoisonMetrics
	resources     *resourceTracker

	listeners   []ListenerInfo
	routes      []RouteInfo
	listenersMu sync.RWMutex

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
}

// NewService constructs a Service for the supplied configuration and panics
// when that fails. Register handlers on the returned Service before calling Start.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) *Service {
	s, err := TryNewService(conf, log, ctx, deps)
	if err != nil {
		panic(err)
	}
	return s
}

// TryNewService is NewService returning the construction error instead of panicking.
func TryNewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if err := configpkg.ValidateConfig(conf); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}
	log = loggingpkg.OrNop(log)
	if ctx == nil {
		ctx = context.Background()
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating dispatch service",
		loggingpkg.LogFields{
			"component":     conf.ComponentName,
			"pubsub_system": conf.PubSubSystem,
			"config":        conf,
		})

	newID, err := idspkg.ByName(conf.IDGenerator)
	if err != nil {
		return nil, err
	}

	registerer := deps.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	s := &Service{
		Conf:          conf,
		Logger:        log,
		newID:         newID,
		registerer:    registerer,
		poisonMetrics: NewPoisonMetrics(registerer),
		resources:     newResourceTracker(),
	}

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	transport, err := factory.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("build %q transport: %w", conf.PubSubSystem, err)
	}
	s.transport = transport
	s.publisher = transport.Publisher
	s.subscriber = transport.Subscriber
	s.capabilities = capabilitiesOf(factory, conf.PubSubSystem)

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}
	s.router = router
	s.router.AddPlugin(plugin.SignalsHandler)

	dispatcherOpts := []dispatcher.Option{
		dispatcher.WithComponent(conf.ComponentName),
		dispatcher.WithHooks(dispatcher.LoggingHooks(log).Merge(deps.Hooks)),
	}
	if conf.MetricsEnabled {
		m := dispatcher.NewMetrics(registerer)
		if err := m.Register(); err != nil {
			_ = transport.Close()
			return nil, fmt.Errorf("register dispatcher metrics: %w", err)
		}
		if err := s.poisonMetrics.Register(); err != nil {
			_ = transport.Close()
			return nil, fmt.Errorf("register poison metrics: %w", err)
		}
		dispatcherOpts = append(dispatcherOpts, dispatcher.WithMetrics(m))
	}
	s.dispatcher = dispatcher.New(log, dispatcherOpts...)
	s.processor = messaging.NewProcessor(log)
	s.rest = rest.NewProcessor(log,
		rest.WithPayloadOnly(conf.PayloadOnlyResponses),
		rest.WithIDGenerator(newID),
	)
	s.envelopes = NewEnvelopePublisher(s.publisher, deps.TopicResolver)

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		_ = transport.Close()
		return nil, err
	}
	if err := s.RegisterComponent(deps.Components...); err != nil {
		_ = transport.Close()
		return nil, err
	}
	return s, nil
}

func capabilitiesOf(factory transportpkg.Factory, name string) transportpkg.Capabilities {
	if reg, ok := factory.(interface {
		Capabilities(string) transportpkg.Capabilities
	}); ok {
		return reg.Capabilities(name)
	}
	return transportpkg.Capabilities{Name: name}
}

// Start serves the REST routes, the admin and metrics endpoints and runs the
// Watermill router until the provided context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return errspkg.ErrServiceRequired
	}
	s.mountREST()
	s.StartAdminServer()
	s.startHTTPServers(ctx)
	return routerRun(s.router, ctx)
}

// Close shuts the router down and closes the transport.
func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.router != nil {
		errs = append(errs, s.router.Close())
	}
	errs = append(errs, s.transport.Close())
	return errors.Join(errs...)
}

// Dispatcher returns the service's dispatcher.
func (s *Service) Dispatcher() *dispatcher.Dispatcher {
	return s.dispatcher
}

// Capabilities describes the configured transport.
func (s *Service) Capabilities() transportpkg.Capabilities {
	return s.capabilities
}

// PoisonMetrics returns the poison queue counters.
func (s *Service) PoisonMetrics() *PoisonMetrics {
	return s.poisonMetrics
}

func (s *Service) idGenerator() idspkg.Generator {
	if s.newID == nil {
		return idspkg.CreateULID
	}
	return s.newID
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) mountREST() {
	s.listenersMu.RLock()
	hasRoutes := s.restRouter != nil
	s.listenersMu.RUnlock()
	if !hasRoutes || s.Conf.RESTPort <= 0 {
		return
	}
	s.RegisterHTTPHandler(s.Conf.RESTPort, "/", s.restRouter)
}

func (s *Service) startHTTPServers(ctx context.Context) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	ports := make([]int, 0, len(s.httpServers))
	for port := range s.httpServers {
		ports = append(ports, port)
	}
	sort.Ints(ports)

	for _, port := range ports {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           s.httpServers[port],
			ReadHeaderTimeout: 10 * time.Second,
		}
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}
}

// restMux returns the chi router for REST routes, creating it on first use.
// Callers hold listenersMu.
func (s *Service) restMux() chi.Router {
	if s.restRouter == nil {
		r := chi.NewRouter()
		r.Use(middleware.RequestID, middleware.Recoverer)
		s.restRouter = r
	}
	return s.restRouter
}
