// Package envelope defines the immutable unit that flows through the
// dispatcher: metadata identifying a message plus its JSON payload.
package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/drblury/dispatchflow/internal/runtime/errors"
	"github.com/drblury/dispatchflow/internal/runtime/jsoncodec"
)

// MetadataKey is the reserved payload key holding metadata in the wire form.
const MetadataKey = "_metadata"

// Envelope pairs metadata with a payload. Envelopes are never modified after
// construction; the With* methods return new envelopes.
type Envelope struct {
	metadata Metadata
	payload  Payload
}

func New(metadata Metadata, payload Payload) *Envelope {
	return &Envelope{metadata: metadata, payload: payload}
}

// NewFrom builds an envelope whose payload is v encoded as JSON.
func NewFrom(metadata Metadata, v any) (*Envelope, error) {
	payload, err := PayloadFrom(v)
	if err != nil {
		return nil, err
	}
	return New(metadata, payload), nil
}

func (e *Envelope) Metadata() Metadata { return e.metadata }
func (e *Envelope) Payload() Payload   { return e.payload }

// PayloadAsJSON returns the payload's JSON text.
func (e *Envelope) PayloadAsJSON() string { return e.payload.String() }

// ID is the identity used to correlate log lines for this envelope.
func (e *Envelope) ID() string { return e.metadata.ID() }

func (e *Envelope) Name() string { return e.metadata.Name() }

func (e *Envelope) WithMetadata(metadata Metadata) *Envelope {
	return &Envelope{metadata: metadata, payload: e.payload}
}

func (e *Envelope) WithPayload(payload Payload) *Envelope {
	return &Envelope{metadata: e.metadata, payload: payload}
}

func (e *Envelope) String() string {
	return fmt.Sprintf("Envelope{id=%s, name=%s}", e.metadata.ID(), e.metadata.Name())
}

// MarshalJSON renders the wire form: the payload object with the metadata
// stored under MetadataKey.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if !e.payload.IsNull() {
		if err := jsoncodec.Unmarshal(e.payload.raw, &fields); err != nil {
			return nil, err
		}
	}
	md, err := e.metadata.MarshalJSON()
	if err != nil {
		return nil, err
	}
	fields[MetadataKey] = md
	return jsoncodec.Marshal(fields)
}

// FromJSON parses the wire form produced by MarshalJSON. The wire form always
// carries an object, so a document holding only metadata yields the empty
// object payload; a null payload does not survive the round trip.
func FromJSON(data []byte) (*Envelope, error) {
	var fields map[string]json.RawMessage
	if err := jsoncodec.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	rawMetadata, ok := fields[MetadataKey]
	if !ok {
		return nil, fmt.Errorf("envelope: missing %s", MetadataKey)
	}
	var md Metadata
	if err := md.UnmarshalJSON(rawMetadata); err != nil {
		return nil, fmt.Errorf("envelope: decode %s: %w", MetadataKey, err)
	}
	delete(fields, MetadataKey)

	encoded, err := jsoncodec.Marshal(fields)
	if err != nil {
		return nil, err
	}
	return New(md, Payload{raw: encoded}), nil
}
