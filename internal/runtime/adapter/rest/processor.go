// Package rest exposes the dispatcher over HTTP. Requests are turned into
// envelopes whose name comes from the vendor media type in the request
// headers; responses are chosen from the dispatch outcome.
package rest

import (
	stderrors "errors"
	"fmt"
	"io"
	"net/http"

	"github.com/drblury/dispatchflow/internal/runtime/dispatcher"
	"github.com/drblury/dispatchflow/internal/runtime/envelope"
	"github.com/drblury/dispatchflow/internal/runtime/errors"
	"github.com/drblury/dispatchflow/internal/runtime/ids"
	"github.com/drblury/dispatchflow/internal/runtime/jsoncodec"
	"github.com/drblury/dispatchflow/internal/runtime/logging"
	"github.com/drblury/dispatchflow/internal/runtime/mapping"
	"github.com/drblury/dispatchflow/internal/runtime/tracelog"
)

// Request and response headers.
const (
	HeaderMessageID     = "X-Message-Id"
	HeaderCorrelationID = "X-Correlation-Id"
	HeaderUserID        = "X-User-Id"
	HeaderSessionID     = "X-Session-Id"
)

const maxBodyBytes = 4 << 20

var propertyHeaders = map[string]string{
	HeaderCorrelationID: envelope.PropertyCorrelationID,
	HeaderUserID:        envelope.PropertyUserID,
	HeaderSessionID:     envelope.PropertySessionID,
}

// Processor converts HTTP requests into envelopes and writes dispatch results
// back as HTTP responses.
type Processor struct {
	logger      logging.ServiceLogger
	newID       ids.Generator
	payloadOnly bool
}

type Option func(*Processor)

// WithPayloadOnly makes synchronous responses carry only the result payload,
// with the result id in the X-Message-Id header.
func WithPayloadOnly(enabled bool) Option {
	return func(p *Processor) { p.payloadOnly = enabled }
}

// WithIDGenerator sets the generator used when a request carries no message id.
func WithIDGenerator(gen ids.Generator) Option {
	return func(p *Processor) {
		if gen != nil {
			p.newID = gen
		}
	}
}

func NewProcessor(logger logging.ServiceLogger, opts ...Option) *Processor {
	p := &Processor{
		logger: logging.OrNop(logger),
		newID:  ids.CreateULID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// PayloadOnly reports whether synchronous responses omit the metadata.
func (p *Processor) PayloadOnly() bool {
	return p.payloadOnly
}

// ProcessAsynchronously hands the request envelope to d and answers 202 Accepted.
func (p *Processor) ProcessAsynchronously(w http.ResponseWriter, r *http.Request, d dispatcher.AsynchronousDispatcher, req Request) {
	env, err := p.EnvelopeFrom(r, req)
	if err != nil {
		p.writeError(w, env, err)
		return
	}
	tracelog.Log(p.logger, "rest request, pre", env)
	if err := d.AsynchronousDispatch(r.Context(), env); err != nil {
		p.writeError(w, env, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ProcessSynchronously hands the request envelope to d and writes its result.
// A missing result answers 500 and a null result payload answers 404.
func (p *Processor) ProcessSynchronously(w http.ResponseWriter, r *http.Request, d dispatcher.SynchronousDispatcher, req Request) {
	env, err := p.EnvelopeFrom(r, req)
	if err != nil {
		p.writeError(w, env, err)
		return
	}
	tracelog.Log(p.logger, "rest request, pre", env)
	result, err := d.SynchronousDispatch(r.Context(), env)
	if err != nil {
		p.writeError(w, env, err)
		return
	}
	if result == nil {
		p.writeError(w, env, errors.ErrNilResult)
		return
	}
	tracelog.Log(p.logger, "rest response, post", result)
	if result.Payload().IsNull() {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	p.writeResult(w, result)
}

// Request carries what a route contributes to the envelope besides the HTTP
// request itself.
type Request struct {
	// PathParams are merged into the payload, overriding body fields.
	PathParams map[string]string
	// Mappings binds media types to message names. When empty the name is
	// derived from the vendor media type itself.
	Mappings map[string]string
}

// EnvelopeFrom builds the envelope for r. The returned envelope is nil when
// the request cannot be turned into one.
func (p *Processor) EnvelopeFrom(r *http.Request, req Request) (*envelope.Envelope, error) {
	name, err := nameOf(r.Header, req.Mappings)
	if err != nil {
		return nil, err
	}

	id := r.Header.Get(HeaderMessageID)
	if id == "" {
		id = p.newID()
	}
	md := envelope.NewMetadata(id, name)
	for header, key := range propertyHeaders {
		if v := r.Header.Get(header); v != "" {
			md = md.WithProperty(key, v)
		}
	}

	payload, err := readPayload(r)
	if err != nil {
		return nil, err
	}
	if len(req.PathParams) > 0 {
		params := make(map[string]any, len(req.PathParams))
		for k, v := range req.PathParams {
			params[k] = v
		}
		if payload, err = payload.With(params); err != nil {
			return nil, err
		}
	}
	return envelope.New(md, payload), nil
}

func nameOf(header http.Header, mappings map[string]string) (string, error) {
	if len(mappings) > 0 {
		return mapping.NameFrom(mappings, header)
	}
	mediaType, err := mapping.VendorMediaType(header)
	if err != nil {
		return "", err
	}
	return mapping.NameFromMediaType(mediaType), nil
}

func readPayload(r *http.Request) (envelope.Payload, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return envelope.NullPayload(), nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return envelope.Payload{}, fmt.Errorf("%w: read body: %v", errors.ErrInvalidPayload, err)
	}
	if len(body) > maxBodyBytes {
		return envelope.Payload{}, fmt.Errorf("%w: body exceeds %d bytes", errors.ErrInvalidPayload, maxBodyBytes)
	}
	return envelope.PayloadFromJSON(body)
}

func (p *Processor) writeResult(w http.ResponseWriter, result *envelope.Envelope) {
	var (
		body []byte
		err  error
	)
	if p.payloadOnly {
		w.Header().Set(HeaderMessageID, result.ID())
		body = result.Payload().Bytes()
	} else {
		body, err = result.MarshalJSON()
		if err != nil {
			p.writeError(w, result, err)
			return
		}
	}
	w.Header().Set("Content-Type", mediaTypeFor(result.Name()))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		p.logger.Error("Failed to write response", err, logging.LogFields{"message_id": result.ID()})
	}
}

func mediaTypeFor(name string) string {
	if name == "" {
		return "application/json"
	}
	return mapping.MediaTypePrefix + name + "+json"
}

// StatusOf maps a processing failure onto an HTTP status.
func StatusOf(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.IsMissingHandler(err):
		return http.StatusNotAcceptable
	case stderrors.Is(err, errors.ErrHeadersRequired),
		stderrors.Is(err, errors.ErrIncorrectMediaTypes),
		stderrors.Is(err, errors.ErrUnmappedMediaType),
		stderrors.Is(err, errors.ErrInvalidPayload):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (p *Processor) writeError(w http.ResponseWriter, env *envelope.Envelope, err error) {
	status := StatusOf(err)
	fields := logging.LogFields{"status": status}
	if env != nil {
		fields["envelope"] = tracelog.ToTraceString(env)
	}
	if status >= http.StatusInternalServerError {
		p.logger.Error("Request processing failed", err, fields)
	} else {
		p.logger.Debug("Request rejected", fields.Merge(logging.LogFields{"error": err.Error()}))
	}

	body, marshalErr := jsoncodec.Marshal(map[string]string{"error": err.Error()})
	if marshalErr != nil {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
