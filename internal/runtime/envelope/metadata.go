package envelope

import (
	sterrors "errors"

	"github.com/drblury/dispatchflow/internal/runtime/errors"
	"github.com/drblury/dispatchflow/internal/runtime/jsoncodec"
)

// Metadata identifies an envelope: its id, its dotted message name and the
// ordered ids of the messages that caused it.
//
// A nil causation means the chain is absent; an empty non-nil causation means
// the chain is known to be empty. Both are valid and are kept distinct.
// Metadata is a value type and every modifier returns a copy.
type Metadata struct {
	id         string
	name       string
	causation  []string
	properties Properties
}

// NewMetadata returns metadata with the given id and name and no causation.
func NewMetadata(id, name string) Metadata {
	return Metadata{id: id, name: name}
}

func (m Metadata) ID() string   { return m.id }
func (m Metadata) Name() string { return m.name }

// Causation returns a copy of the causation chain. The result is nil when the
// chain is absent.
func (m Metadata) Causation() []string {
	return cloneIDs(m.causation)
}

// HasCausation reports whether a causation chain is present, even if empty.
func (m Metadata) HasCausation() bool {
	return m.causation != nil
}

// Get returns the property stored under key.
func (m Metadata) Get(key string) (string, bool) {
	v, ok := m.properties[key]
	return v, ok
}

// Properties returns a copy of the extra properties.
func (m Metadata) Properties() Properties {
	return m.properties.Clone()
}

func (m Metadata) WithID(id string) Metadata {
	m.causation = cloneIDs(m.causation)
	m.properties = m.properties.Clone()
	m.id = id
	return m
}

func (m Metadata) WithName(name string) Metadata {
	m.causation = cloneIDs(m.causation)
	m.properties = m.properties.Clone()
	m.name = name
	return m
}

// WithCausation replaces the causation chain. Passing nil marks it absent.
func (m Metadata) WithCausation(ids []string) Metadata {
	m.properties = m.properties.Clone()
	m.causation = cloneIDs(ids)
	return m
}

func (m Metadata) WithProperty(key, value string) Metadata {
	m.causation = cloneIDs(m.causation)
	m.properties = m.properties.With(key, value)
	return m
}

func (m Metadata) WithProperties(props Properties) Metadata {
	m.causation = cloneIDs(m.causation)
	m.properties = m.properties.WithAll(props)
	return m
}

// Derive returns metadata for a message produced in response to m. The new
// causation chain is m's chain followed by m's id; properties are inherited.
func (m Metadata) Derive(id, name string) Metadata {
	causation := make([]string, 0, len(m.causation)+1)
	causation = append(causation, m.causation...)
	if m.id != "" {
		causation = append(causation, m.id)
	}
	return Metadata{
		id:         id,
		name:       name,
		causation:  causation,
		properties: m.properties.Clone(),
	}
}

// Validate checks that the fields required for dispatch are populated.
func (m Metadata) Validate() error {
	var errs []error
	if m.id == "" {
		errs = append(errs, errors.ErrMetadataIDRequired)
	}
	if m.name == "" {
		errs = append(errs, errors.ErrMetadataNameRequired)
	}
	return sterrors.Join(errs...)
}

type metadataJSON struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Causation  *[]string  `json:"causation,omitempty"`
	Properties Properties `json:"properties,omitempty"`
}

// MarshalJSON renders the metadata. An empty causation chain is written as
// [] and an absent one is omitted.
func (m Metadata) MarshalJSON() ([]byte, error) {
	wire := metadataJSON{ID: m.id, Name: m.name, Properties: m.properties}
	if m.causation != nil {
		causation := m.causation
		wire.Causation = &causation
	}
	return jsoncodec.Marshal(wire)
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var wire metadataJSON
	if err := jsoncodec.Unmarshal(data, &wire); err != nil {
		return err
	}
	*m = Metadata{id: wire.ID, name: wire.Name, properties: wire.Properties.Clone()}
	if wire.Causation != nil {
		m.causation = append([]string{}, (*wire.Causation)...)
	}
	return nil
}

func cloneIDs(ids []string) []string {
	if ids == nil {
		return nil
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}
