// Package dispatchflow routes messages to the handlers of a service component.
//
// Every message is an Envelope: metadata (id, name, causation chain and string
// properties such as the correlation id) plus a JSON object payload. Handlers
// are bound to a (name, mode) pair. Synchronous handlers return a result
// envelope to the caller; asynchronous handlers are fire-and-forget. A
// Dispatcher owns exactly one registry of those bindings and invokes the
// handler matching an inbound envelope's name and the requested mode.
//
// Service wires a Dispatcher to its outer surfaces. REST routes (chi) derive
// the message name from the vendor media type of the request
// ("application/vnd.people.command.create-user+json" selects
// "people.command.create-user"), merge path parameters into the payload and
// answer 200, 202, 400, 404, 406 or 500 depending on the outcome. Listeners
// consume a Watermill topic and dispatch every message asynchronously.
// Publish sends envelopes to the topic a TopicResolver picks, by default the
// envelope name.
//
// # Transports
//
// The transport is read from Config.PubSubSystem:
//   - channel: in-memory Go channels, the default
//   - kafka: consumer groups over Sarama
//   - rabbitmq: durable AMQP queues
//   - nats: core NATS subjects
//   - redis: Redis Streams with consumer groups
//   - http: Watermill HTTP publisher and subscriber
//   - aws: SNS topics fanned out to SQS queues, LocalStack friendly
//
// # Middleware
//
// Listeners run through correlation id injection, message logging,
// OpenTelemetry tracing, Prometheus metrics, poison queue forwarding, retry
// with exponential backoff and panic recovery. Messages that are not
// envelopes, carry an invalid payload or have no handler go to the poison
// queue without being retried. Custom middleware is added via
// ServiceDependencies.Middlewares.
//
// # Hooks and introspection
//
// ServiceDependencies.Hooks observe every dispatch. With AdminEnabled,
// GET /api/handlers reports the bindings, their statistics, listeners,
// routes and poison queue counts.
package dispatchflow
