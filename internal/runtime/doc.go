/*
Package runtime wires the envelope dispatcher into a running service.

# Architecture Overview

Every inbound request or message is converted into an envelope (metadata plus
a JSON payload) and handed to a dispatcher, which looks up the handler bound
to the envelope name and dispatch mode and invokes it. The runtime package
owns the outer surfaces around that core:

  - a Watermill router whose listeners dispatch asynchronously
  - a chi router whose routes dispatch synchronously or asynchronously
  - an envelope publisher writing to the configured transport
  - the admin and metrics HTTP endpoints

# Package Structure

## Service (service.go, registration.go)

Service builds the transport, the Watermill router and its middleware chain,
the dispatcher and both adapters. Components and handler registrations are
added through RegisterComponent and RegisterHandlers; topics and HTTP routes
are attached with RegisterListener and RegisterRoute.

## Middleware (middleware.go, poison.go)

The default listener chain, outermost first:
  - CorrelationID: ensures every message carries a correlation id
  - LogMessages: debug logging of consumed messages
  - Tracer: OpenTelemetry span per handled message
  - Metrics: Watermill router metrics in Prometheus
  - PoisonQueue: diverts messages retrying cannot fix
  - Retry: exponential backoff for everything else
  - Recoverer: converts handler panics into errors

## Publishing (publisher.go)

EnvelopePublisher resolves a topic for each envelope, by default its name,
and publishes it as a Watermill message.

## Admin (admin.go, resources.go)

GET /api/handlers reports the bindings, per-binding statistics, listeners,
routes, transport capabilities, poison queue counts and process resources.

# Sub-packages

  - adapter/rest: HTTP requests to envelopes and back
  - adapter/messaging: Watermill messages to envelopes
  - config: service configuration loaded with envconfig
  - dispatcher: mode-aware dispatch with hooks, metrics and stats
  - envelope: metadata, payload and their wire forms
  - errors: sentinel errors and typed registry errors
  - handlers: handler methods, modes and typed JSON/proto builders
  - ids: ULID and UUID generation
  - jsoncodec: sonic-backed JSON encoding
  - logging: ServiceLogger and its adapters
  - mapping: media type to message name resolution
  - registry: the (name, mode) handler table
  - tracelog: trace strings for envelopes and messages
  - transport: Watermill transports (channel, Kafka, RabbitMQ, NATS, Redis, HTTP, AWS)

# Usage Example

	cfg, err := config.Load("DISPATCHFLOW")
	if err != nil {
		return err
	}
	svc := runtime.NewService(cfg, logger, ctx, runtime.ServiceDependencies{})

	err = svc.RegisterHandlers(
		handlers.Sync("people.query.user", findUser),
		handlers.Async("people.event.user-created", indexUser),
	)
	err = svc.RegisterRoute(rest.Route{Method: http.MethodGet, Pattern: "/users/{id}", Mode: handlers.Synchronous})
	err = svc.RegisterListener("", "people.event.user-created")

	svc.Start(ctx)
*/
package runtime
