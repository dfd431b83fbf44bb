package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrServiceRequired      = sterrors.New("dispatchflow: service is required")
	ErrDispatcherRequired   = sterrors.New("dispatchflow: dispatcher is required")
	ErrHandlerRequired      = sterrors.New("dispatchflow: handler function is required")
	ErrHandlerNameRequired  = sterrors.New("dispatchflow: handler name is required")
	ErrInvalidMode          = sterrors.New("dispatchflow: invalid dispatch mode")
	ErrComponentRequired    = sterrors.New("dispatchflow: handler component is required")
	ErrEnvelopeRequired     = sterrors.New("dispatchflow: envelope is required")
	ErrMetadataIDRequired   = sterrors.New("dispatchflow: metadata id is required")
	ErrMetadataNameRequired = sterrors.New("dispatchflow: metadata name is required")
	ErrInvalidPayload       = sterrors.New("dispatchflow: payload must be a JSON object or null")
	ErrNilResult            = sterrors.New("dispatchflow: synchronous handler returned no envelope")
	ErrHandlerPanicked      = sterrors.New("dispatchflow: handler panicked")
	ErrPublisherRequired    = sterrors.New("dispatchflow: publisher is required")
	ErrTopicRequired        = sterrors.New("dispatchflow: topic is required")
	ErrConsumeTypeRequired  = sterrors.New("dispatchflow: consume message type is required")
	ErrConsumePointerNeeded = sterrors.New("dispatchflow: consume message type must be a pointer")
	ErrHeadersRequired      = sterrors.New("dispatchflow: cannot get media type from empty http headers")
	ErrIncorrectMediaTypes  = sterrors.New("dispatchflow: incorrect media types set in http headers")
	ErrUnmappedMediaType    = sterrors.New("dispatchflow: no mapping for media type")
	ErrMappingFieldMissing  = sterrors.New("dispatchflow: mapping field missing from description")
	ErrDuplicateMapping     = sterrors.New("dispatchflow: duplicate mapping key")

	// ErrDuplicateHandler is matched by every DuplicateHandlerError.
	ErrDuplicateHandler = sterrors.New("dispatchflow: duplicate handler")
	// ErrMissingHandler is matched by every MissingHandlerError.
	ErrMissingHandler = sterrors.New("dispatchflow: missing handler")
)

// DuplicateHandlerError reports a second registration for an already bound
// (name, mode) pair. It is a startup configuration error.
type DuplicateHandlerError struct {
	Name      string
	Mode      string
	Component string
}

func (e *DuplicateHandlerError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("dispatchflow: duplicate %s handler for %q (component %s)", e.Mode, e.Name, e.Component)
	}
	return fmt.Sprintf("dispatchflow: duplicate %s handler for %q", e.Mode, e.Name)
}

func (e *DuplicateHandlerError) Is(target error) bool {
	return target == ErrDuplicateHandler
}

// MissingHandlerError reports a dispatch for a (name, mode) pair nothing is bound to.
type MissingHandlerError struct {
	Name string
	Mode string
}

func (e *MissingHandlerError) Error() string {
	return fmt.Sprintf("dispatchflow: no %s handler registered for %q", e.Mode, e.Name)
}

func (e *MissingHandlerError) Is(target error) bool {
	return target == ErrMissingHandler
}

// IsDuplicateHandler reports whether err is (or wraps) a duplicate registration.
func IsDuplicateHandler(err error) bool {
	return sterrors.Is(err, ErrDuplicateHandler)
}

// IsMissingHandler reports whether err is (or wraps) a routing failure.
func IsMissingHandler(err error) bool {
	return sterrors.Is(err, ErrMissingHandler)
}

// ConfigValidationError wraps the joined problems found while validating a Config.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "dispatchflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
