package dispatchflow

import (
	"google.golang.org/protobuf/proto"

	runtimepkg "github.com/drblury/dispatchflow/internal/runtime"
	"github.com/drblury/dispatchflow/internal/runtime/adapter/messaging"
	"github.com/drblury/dispatchflow/internal/runtime/adapter/rest"
	configpkg "github.com/drblury/dispatchflow/internal/runtime/config"
	"github.com/drblury/dispatchflow/internal/runtime/dispatcher"
	"github.com/drblury/dispatchflow/internal/runtime/envelope"
	errspkg "github.com/drblury/dispatchflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/dispatchflow/internal/runtime/handlers"
	idspkg "github.com/drblury/dispatchflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/dispatchflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/dispatchflow/internal/runtime/logging"
	"github.com/drblury/dispatchflow/internal/runtime/mapping"
	"github.com/drblury/dispatchflow/internal/runtime/registry"
	"github.com/drblury/dispatchflow/internal/runtime/tracelog"
	transportpkg "github.com/drblury/dispatchflow/internal/runtime/transport"
)

type (
	Config               = configpkg.Config
	Service              = runtimepkg.Service
	ServiceDependencies  = runtimepkg.ServiceDependencies
	Transport            = transportpkg.Transport
	TransportFactory     = transportpkg.Factory
	TransportFactoryFunc = transportpkg.FactoryFunc
	TransportBuilder     = transportpkg.Builder
	TransportRegistry    = transportpkg.Registry
	Capabilities         = transportpkg.Capabilities

	Envelope   = envelope.Envelope
	Metadata   = envelope.Metadata
	Payload    = envelope.Payload
	Properties = envelope.Properties

	Mode          = handlerpkg.Mode
	Invoker       = handlerpkg.Invoker
	Registration  = handlerpkg.Registration
	Method        = handlerpkg.Method
	Component     = handlerpkg.Component
	HandlerOption = handlerpkg.Option

	JSONContext[T any]                 = handlerpkg.JSONContext[T]
	JSONResponse[O any]                = handlerpkg.JSONResponse[O]
	JSONSyncHandler[T any, O any]      = handlerpkg.JSONSyncHandler[T, O]
	JSONAsyncHandler[T any]            = handlerpkg.JSONAsyncHandler[T]
	ProtoContext[T proto.Message]      = handlerpkg.ProtoContext[T]
	ProtoResponse                      = handlerpkg.ProtoResponse
	ProtoSyncHandler[T proto.Message]  = handlerpkg.ProtoSyncHandler[T]
	ProtoAsyncHandler[T proto.Message] = handlerpkg.ProtoAsyncHandler[T]
	MessageContextBase                 = handlerpkg.MessageContextBase

	Registry = registry.Registry
	Binding  = registry.Binding

	Dispatcher             = dispatcher.Dispatcher
	DispatcherOption       = dispatcher.Option
	SynchronousDispatcher  = dispatcher.SynchronousDispatcher
	AsynchronousDispatcher = dispatcher.AsynchronousDispatcher
	DispatchInfo           = dispatcher.DispatchInfo
	Hooks                  = dispatcher.Hooks
	BindingStats           = dispatcher.BindingStats

	Route               = rest.Route
	RESTProcessor       = rest.Processor
	RESTRequest         = rest.Request
	MessageProcessor    = messaging.Processor
	InvalidMessageError = messaging.InvalidMessageError

	Mapping      = mapping.Mapping
	ActionMapper = mapping.ActionMapper

	TopicResolver         = runtimepkg.TopicResolver
	TopicResolverFunc     = runtimepkg.TopicResolverFunc
	StaticTopicResolver   = runtimepkg.StaticTopicResolver
	EnvelopePublisher     = runtimepkg.EnvelopePublisher
	PoisonMetrics         = runtimepkg.PoisonMetrics
	PoisonMetricsSnapshot = runtimepkg.PoisonMetricsSnapshot
	AdminReport           = runtimepkg.AdminReport
	ListenerInfo          = runtimepkg.ListenerInfo
	RouteInfo             = runtimepkg.RouteInfo

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration
	RetryMiddlewareConfig  = runtimepkg.RetryMiddlewareConfig

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]
	IDGenerator               = idspkg.Generator

	DuplicateHandlerError = errspkg.DuplicateHandlerError
	MissingHandlerError   = errspkg.MissingHandlerError
	ConfigValidationError = errspkg.ConfigValidationError
)

const (
	Synchronous  = handlerpkg.Synchronous
	Asynchronous = handlerpkg.Asynchronous

	PropertyCorrelationID = envelope.PropertyCorrelationID
	PropertyUserID        = envelope.PropertyUserID
	PropertySessionID     = envelope.PropertySessionID
	PropertyStreamID      = envelope.PropertyStreamID

	HeaderMessageID = rest.HeaderMessageID
)

var (
	NewService     = runtimepkg.NewService
	TryNewService  = runtimepkg.TryNewService
	LoadConfig     = configpkg.Load
	ValidateConfig = configpkg.ValidateConfig

	NewEnvelope      = envelope.New
	NewMetadata      = envelope.NewMetadata
	PayloadFromJSON  = envelope.PayloadFromJSON
	PayloadFrom      = envelope.PayloadFrom
	NullPayload      = envelope.NullPayload
	EnvelopeFromJSON = envelope.FromJSON
	ToMessage        = envelope.ToMessage
	FromMessage      = envelope.FromMessage

	Sync          = handlerpkg.Sync
	Async         = handlerpkg.Async
	NewComponent  = handlerpkg.NewComponent
	ParseMode     = handlerpkg.ParseMode
	WithValidator = handlerpkg.WithValidator

	NewRegistry   = registry.New
	NewDispatcher = dispatcher.New
	WithRegistry  = dispatcher.WithRegistry
	WithHooks     = dispatcher.WithHooks
	LoggingHooks  = dispatcher.LoggingHooks
	MetricsHooks  = dispatcher.MetricsHooks
	AlertingHooks = dispatcher.AlertingHooks

	NewRESTProcessor        = rest.NewProcessor
	NewRESTRouter           = rest.NewRouter
	MountRoutes             = rest.Mount
	NewMessageProcessor     = messaging.NewProcessor
	MessageHandler          = messaging.Handler
	NewEnvelopePublisher    = runtimepkg.NewEnvelopePublisher
	PublishEnvelope         = runtimepkg.PublishEnvelope
	NameTopicResolver       = runtimepkg.NameTopicResolver
	DefaultPoisonFilter     = runtimepkg.DefaultPoisonFilter
	DefaultTransportFactory = transportpkg.DefaultFactory
	NewTransportRegistry    = transportpkg.NewDefaultRegistry

	NameFrom          = mapping.NameFrom
	NameFromMediaType = mapping.NameFromMediaType
	NewActionMapper   = mapping.NewActionMapper

	ToTraceString = tracelog.ToTraceString
	Trace         = tracelog.Trace

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RetryMiddleware         = runtimepkg.RetryMiddleware
	PoisonQueueMiddleware   = runtimepkg.PoisonQueueMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrServiceRequired      = errspkg.ErrServiceRequired
	ErrDispatcherRequired   = errspkg.ErrDispatcherRequired
	ErrHandlerRequired      = errspkg.ErrHandlerRequired
	ErrHandlerNameRequired  = errspkg.ErrHandlerNameRequired
	ErrInvalidMode          = errspkg.ErrInvalidMode
	ErrEnvelopeRequired     = errspkg.ErrEnvelopeRequired
	ErrMetadataIDRequired   = errspkg.ErrMetadataIDRequired
	ErrMetadataNameRequired = errspkg.ErrMetadataNameRequired
	ErrInvalidPayload       = errspkg.ErrInvalidPayload
	ErrNilResult            = errspkg.ErrNilResult
	ErrHandlerPanicked      = errspkg.ErrHandlerPanicked
	ErrPublisherRequired    = errspkg.ErrPublisherRequired
	ErrTopicRequired        = errspkg.ErrTopicRequired
	ErrDuplicateHandler     = errspkg.ErrDuplicateHandler
	ErrMissingHandler       = errspkg.ErrMissingHandler
	IsDuplicateHandler      = errspkg.IsDuplicateHandler
	IsMissingHandler        = errspkg.IsMissingHandler

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewJSONServiceLogger      = loggingpkg.NewJSONServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewNopLogger              = loggingpkg.NewNopLogger

	CreateULID = idspkg.CreateULID
	CreateUUID = idspkg.CreateUUID
)

// JSONSync binds a synchronous handler whose payload decodes into T.
func JSONSync[T any, O any](name string, handler JSONSyncHandler[T, O], opts ...HandlerOption) (Registration, error) {
	return handlerpkg.JSONSync(name, handler, opts...)
}

// JSONAsync binds an asynchronous handler whose payload decodes into T.
func JSONAsync[T any](name string, handler JSONAsyncHandler[T], opts ...HandlerOption) (Registration, error) {
	return handlerpkg.JSONAsync(name, handler, opts...)
}

// ProtoSync binds a synchronous handler whose payload decodes into a clone of prototype.
func ProtoSync[T proto.Message](name string, prototype T, handler ProtoSyncHandler[T], opts ...HandlerOption) (Registration, error) {
	return handlerpkg.ProtoSync(name, prototype, handler, opts...)
}

// ProtoAsync binds an asynchronous handler whose payload decodes into a clone of prototype.
func ProtoAsync[T proto.Message](name string, prototype T, handler ProtoAsyncHandler[T], opts ...HandlerOption) (Registration, error) {
	return handlerpkg.ProtoAsync(name, prototype, handler, opts...)
}

func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}
