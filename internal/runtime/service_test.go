package runtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/dispatchflow/internal/runtime/adapter/rest"
	configpkg "github.com/drblury/dispatchflow/internal/runtime/config"
	"github.com/drblury/dispatchflow/internal/runtime/dispatcher"
	"github.com/drblury/dispatchflow/internal/runtime/envelope"
	errspkg "github.com/drblury/dispatchflow/internal/runtime/errors"
	"github.com/drblury/dispatchflow/internal/runtime/handlers"
	transportpkg "github.com/drblury/dispatchflow/internal/runtime/transport"
)

func findUser(_ context.Context, env *envelope.Envelope) (*envelope.Envelope, error) {
	obj, err := env.Payload().Object()
	if err != nil {
		return nil, err
	}
	payload, err := envelope.PayloadFrom(map[string]any{"id": obj["id"], "name": "Ada"})
	if err != nil {
		return nil, err
	}
	return envelope.New(env.Metadata().Derive("reply-"+env.ID(), "people.document.user"), payload), nil
}

func TestTryNewServiceRejectsInvalidConfig(t *testing.T) {
	_, err := TryNewService(nil, nil, context.Background(), ServiceDependencies{})
	require.Error(t, err)

	_, err = TryNewService(&configpkg.Config{PubSubSystem: "kafka"}, nil, context.Background(), ServiceDependencies{})
	var cve errspkg.ConfigValidationError
	require.ErrorAs(t, err, &cve)
	assert.Contains(t, err.Error(), "kafka: brokers are required")
}

func TestTryNewServiceWrapsTransportErrors(t *testing.T) {
	boom := errors.New("broker unreachable")
	factory := transportpkg.FactoryFunc(func(context.Context, transportpkg.Config, watermill.LoggerAdapter) (transportpkg.Transport, error) {
		return transportpkg.Transport{}, boom
	})

	_, err := TryNewService(newTestConfig(), newTestLogger(), context.Background(), ServiceDependencies{TransportFactory: factory})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `build "channel" transport`)
}

func TestTryNewServiceMiddlewareBuilderError(t *testing.T) {
	sub := &testSubscriber{}
	bad := MiddlewareRegistration{
		Name: "bad",
		Builder: func(*Service) (message.HandlerMiddleware, error) {
			return nil, errors.New("boom")
		},
	}

	_, err := TryNewService(newTestConfig(), newTestLogger(), context.Background(), ServiceDependencies{
		TransportFactory: staticFactory(&testPublisher{}, sub),
		Middlewares:      []MiddlewareRegistration{bad},
		Registerer:       prometheus.NewRegistry(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to register middleware bad")
	assert.True(t, sub.closed, "transport should be closed when construction fails")
}

func TestNewServicePanicsOnError(t *testing.T) {
	assert.Panics(t, func() {
		NewService(nil, newTestLogger(), context.Background(), ServiceDependencies{})
	})
}

func TestNewServiceUsesDefaultTransportFactory(t *testing.T) {
	svc, err := TryNewService(newTestConfig(), nil, nil, ServiceDependencies{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	assert.Equal(t, "channel", svc.Capabilities().Name)
	assert.NotNil(t, svc.publisher)
	assert.NotNil(t, svc.subscriber)
	assert.Equal(t, dispatcher.StateUninitialized, svc.Dispatcher().State())
}

func TestNewServiceRegistersComponents(t *testing.T) {
	component := handlers.NewComponent("people", handlers.Sync("people.query.user", findUser))

	svc, _ := newChannelService(t, newTestConfig(), ServiceDependencies{
		Components: []handlers.Component{component},
	})

	assert.Equal(t, dispatcher.StateReady, svc.Dispatcher().State())
	assert.True(t, svc.Dispatcher().Registry().Has("people.query.user", handlers.Synchronous))
}

func TestServiceHooksObserveDispatch(t *testing.T) {
	var done []string
	svc, _ := newChannelService(t, newTestConfig(), ServiceDependencies{
		Hooks: dispatcher.Hooks{
			OnDispatchDone: func(info dispatcher.DispatchInfo) { done = append(done, info.Name) },
		},
	})
	require.NoError(t, svc.RegisterHandlers(handlers.Sync("people.query.user", findUser)))

	env := envelope.New(envelope.NewMetadata("m-1", "people.query.user"), envelope.MustPayload(`{"id":"42"}`))
	_, err := svc.Dispatcher().SynchronousDispatch(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, []string{"people.query.user"}, done)
}

func TestRegisterListenerDispatchesMessages(t *testing.T) {
	svc, _ := newChannelService(t, newTestConfig(), ServiceDependencies{})

	received := make(chan *envelope.Envelope, 1)
	require.NoError(t, svc.RegisterHandlers(handlers.Async("people.event.user-created", func(_ context.Context, env *envelope.Envelope) error {
		received <- env
		return nil
	})))
	require.NoError(t, svc.RegisterListener("", "people.event.user-created"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Start(ctx) }()

	select {
	case <-svc.router.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("router did not start")
	}

	env := envelope.New(envelope.NewMetadata("m-7", "people.event.user-created"), envelope.MustPayload(`{"id":"7"}`))
	require.NoError(t, svc.Publish(ctx, env))

	select {
	case got := <-received:
		assert.Equal(t, "m-7", got.ID())
		assert.JSONEq(t, `{"id":"7"}`, got.PayloadAsJSON())
		corr, ok := got.Metadata().Get(envelope.PropertyCorrelationID)
		assert.True(t, ok)
		assert.NotEmpty(t, corr)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not dispatch the message")
	}

	assert.Equal(t, []ListenerInfo{{Name: "people.event.user-created-listener", Topic: "people.event.user-created"}}, svc.Listeners())
}

func TestRegisterListenerValidation(t *testing.T) {
	svc, _ := newTestService(t)

	require.ErrorIs(t, svc.RegisterListener("x", " "), errspkg.ErrTopicRequired)
	require.NoError(t, svc.RegisterListener("users", "people.event.user-created"))
	err := svc.RegisterListener("users", "people.event.user-deleted")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `listener "users" already registered`)

	var nilSvc *Service
	require.ErrorIs(t, nilSvc.RegisterListener("a", "b"), errspkg.ErrServiceRequired)
}

func TestRegisterRouteServesThroughDispatcher(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.RegisterHandlers(handlers.Sync("people.query.user", findUser)))
	require.NoError(t, svc.RegisterRoute(rest.Route{Method: "get", Pattern: "/users/{id}", Mode: handlers.Synchronous}))

	srv := httptest.NewServer(svc.restRouter)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/users/42", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/vnd.people.query.user+json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.people.document.user+json", resp.Header.Get("Content-Type"))
	assert.Equal(t, []RouteInfo{{Method: http.MethodGet, Pattern: "/users/{id}", Mode: handlers.Synchronous}}, svc.Routes())
}

func TestRegisterRouteRejectsInvalidRoutes(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.RegisterRoute(
		rest.Route{Method: http.MethodGet, Pattern: "/ok", Mode: handlers.Synchronous},
		rest.Route{Method: http.MethodPost, Pattern: "missing-slash", Mode: handlers.Asynchronous},
	)
	require.Error(t, err)
	assert.Empty(t, svc.Routes())
}

func TestMountRESTRegistersOnRESTPort(t *testing.T) {
	svc, _ := newTestService(t)
	svc.Conf.RESTPort = 18080

	svc.mountREST()
	assert.Empty(t, svc.httpServers, "nothing is mounted without routes")

	require.NoError(t, svc.RegisterRoute(rest.Route{Method: http.MethodGet, Pattern: "/ping", Mode: handlers.Synchronous}))
	svc.mountREST()
	assert.Contains(t, svc.httpServers, 18080)
}

func TestStartRunsRouter(t *testing.T) {
	svc, _ := newTestService(t)

	orig := routerRun
	t.Cleanup(func() { routerRun = orig })
	var ran bool
	routerRun = func(r *message.Router, _ context.Context) error {
		ran = r == svc.router
		return nil
	}

	require.NoError(t, svc.Start(context.Background()))
	assert.True(t, ran)

	var nilSvc *Service
	require.ErrorIs(t, nilSvc.Start(context.Background()), errspkg.ErrServiceRequired)
}

func TestCloseClosesTransport(t *testing.T) {
	sub := &testSubscriber{}
	svc, err := TryNewService(newTestConfig(), newTestLogger(), context.Background(), ServiceDependencies{
		TransportFactory:          staticFactory(&testPublisher{}, sub),
		DisableDefaultMiddlewares: true,
		Registerer:                prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Close())
	assert.True(t, sub.closed)

	var nilSvc *Service
	assert.NoError(t, nilSvc.Close())
}

func TestServiceMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	conf := newTestConfig()
	conf.MetricsEnabled = true
	svc, _ := newChannelService(t, conf, ServiceDependencies{Registerer: reg})
	require.NoError(t, svc.RegisterHandlers(handlers.Sync("people.query.user", findUser)))

	env := envelope.New(envelope.NewMetadata("m-1", "people.query.user"), envelope.MustPayload(`{"id":"1"}`))
	_, err := svc.Dispatcher().SynchronousDispatch(context.Background(), env)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	var found bool
	for _, n := range names {
		if strings.HasPrefix(n, "dispatchflow_dispatcher_") {
			found = true
		}
	}
	assert.True(t, found, "dispatcher metrics missing from %v", names)
}
