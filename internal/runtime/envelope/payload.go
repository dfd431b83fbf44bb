package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/drblury/dispatchflow/internal/runtime/errors"
	"github.com/drblury/dispatchflow/internal/runtime/jsoncodec"
)

var nullJSON = []byte("null")

// Payload is an immutable JSON document carried by an envelope. It is always
// either a JSON object or JSON null. The zero value is null.
type Payload struct {
	raw []byte
}

// NullPayload returns the JSON null payload.
func NullPayload() Payload {
	return Payload{}
}

// PayloadFromJSON validates data and returns it as a payload. Empty input and
// the literal null both yield the null payload. Objects using MetadataKey are
// rejected.
func PayloadFromJSON(data []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || jsoncodec.IsNull(trimmed) {
		return NullPayload(), nil
	}
	var fields map[string]json.RawMessage
	if err := jsoncodec.Unmarshal(trimmed, &fields); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	if _, reserved := fields[MetadataKey]; reserved {
		return Payload{}, errReservedKey()
	}
	return Payload{raw: append([]byte(nil), trimmed...)}, nil
}

// MustPayload is PayloadFromJSON for literals known to be valid.
func MustPayload(data string) Payload {
	p, err := PayloadFromJSON([]byte(data))
	if err != nil {
		panic(err)
	}
	return p
}

// PayloadFrom marshals v and wraps the result. v must encode to an object or null.
func PayloadFrom(v any) (Payload, error) {
	if v == nil {
		return NullPayload(), nil
	}
	data, err := jsoncodec.Marshal(v)
	if err != nil {
		return Payload{}, err
	}
	return PayloadFromJSON(data)
}

func (p Payload) IsNull() bool {
	return len(p.raw) == 0
}

// Bytes returns a copy of the JSON encoding.
func (p Payload) Bytes() []byte {
	if p.IsNull() {
		return append([]byte(nil), nullJSON...)
	}
	return append([]byte(nil), p.raw...)
}

func (p Payload) String() string {
	if p.IsNull() {
		return string(nullJSON)
	}
	return string(p.raw)
}

// Object decodes the payload into a generic map. Null yields a nil map.
func (p Payload) Object() (map[string]any, error) {
	if p.IsNull() {
		return nil, nil
	}
	return jsoncodec.DecodeObject(p.raw)
}

// Decode unmarshals the payload into v.
func (p Payload) Decode(v any) error {
	return jsoncodec.Unmarshal(p.Bytes(), v)
}

// With returns a new payload with fields set on top of the existing ones. A
// null payload becomes an object holding only fields.
func (p Payload) With(fields map[string]any) (Payload, error) {
	if len(fields) == 0 {
		return p, nil
	}
	merged := make(map[string]json.RawMessage, len(fields))
	if !p.IsNull() {
		if err := jsoncodec.Unmarshal(p.raw, &merged); err != nil {
			return Payload{}, err
		}
	}
	for k, v := range fields {
		if k == MetadataKey {
			return Payload{}, errReservedKey()
		}
		encoded, err := jsoncodec.Marshal(v)
		if err != nil {
			return Payload{}, fmt.Errorf("encode payload field %q: %w", k, err)
		}
		merged[k] = encoded
	}
	data, err := jsoncodec.Marshal(merged)
	if err != nil {
		return Payload{}, err
	}
	return Payload{raw: data}, nil
}

// Without returns a new payload with the named fields removed.
func (p Payload) Without(keys ...string) (Payload, error) {
	if p.IsNull() || len(keys) == 0 {
		return p, nil
	}
	var fields map[string]json.RawMessage
	if err := jsoncodec.Unmarshal(p.raw, &fields); err != nil {
		return Payload{}, err
	}
	for _, k := range keys {
		delete(fields, k)
	}
	data, err := jsoncodec.Marshal(fields)
	if err != nil {
		return Payload{}, err
	}
	return Payload{raw: data}, nil
}

func errReservedKey() error {
	return fmt.Errorf("%w: key %q is reserved", errors.ErrInvalidPayload, MetadataKey)
}

func (p Payload) MarshalJSON() ([]byte, error) {
	return p.Bytes(), nil
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	parsed, err := PayloadFromJSON(data)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
