// Package mapping resolves message names for REST requests. Route
// descriptions carry "(mapping):" sections that bind a vendor media type to a
// message name; request headers then select the media type.
package mapping

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	errspkg "github.com/drblury/dispatchflow/internal/runtime/errors"
)

const (
	FieldResponseType = "responseType"
	FieldRequestType  = "requestType"
	FieldName         = "name"

	sectionSeparator = "(mapping):"
)

// Mapping is one parsed "(mapping):" section, field name to value.
type Mapping map[string]string

func (m Mapping) Get(field string) string {
	return m[field]
}

// FieldNames returns the fields present in the mapping, sorted.
func (m Mapping) FieldNames() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MediaType is the requestType value when present, else the responseType.
func (m Mapping) MediaType() string {
	if v, ok := m[FieldRequestType]; ok {
		return v
	}
	return m[FieldResponseType]
}

// Parser extracts mappings whose sections declare every field in fields.
// The first field decides whether a section belongs to this parser.
type Parser struct {
	fields   []string
	patterns map[string]*regexp.Regexp
}

// ForGet parses query mappings (responseType, name).
func ForGet() *Parser {
	return newParser(FieldResponseType, FieldName)
}

// ForPost parses command mappings (requestType, name).
func ForPost() *Parser {
	return newParser(FieldRequestType, FieldName)
}

func newParser(fields ...string) *Parser {
	p := &Parser{fields: fields, patterns: make(map[string]*regexp.Regexp, len(fields))}
	for _, f := range fields {
		p.patterns[f] = regexp.MustCompile(regexp.QuoteMeta(f) + `: (.*)`)
	}
	return p
}

// ParseFromDescription returns the description's mappings keyed by media
// type. An empty description, or one without sections, yields an empty map.
func (p *Parser) ParseFromDescription(description string) (map[string]Mapping, error) {
	mappings := make(map[string]Mapping)
	for _, section := range strings.Split(description, sectionSeparator) {
		if !strings.Contains(section, p.fields[0]) {
			continue
		}
		m, err := p.parseSection(section)
		if err != nil {
			return nil, err
		}
		key := m.MediaType()
		if _, exists := mappings[key]; exists {
			return nil, fmt.Errorf("%w: %q", errspkg.ErrDuplicateMapping, key)
		}
		mappings[key] = m
	}
	return mappings, nil
}

func (p *Parser) parseSection(section string) (Mapping, error) {
	m := make(Mapping, len(p.fields))
	for _, field := range p.fields {
		match := p.patterns[field].FindStringSubmatch(section)
		if match == nil {
			return nil, fmt.Errorf("%w: No %s: field set in description", errspkg.ErrMappingFieldMissing, field)
		}
		m[field] = strings.TrimSpace(match[1])
	}
	return m, nil
}

// Names flattens mappings into media type to message name.
func Names(mappings map[string]Mapping) map[string]string {
	names := make(map[string]string, len(mappings))
	for mediaType, m := range mappings {
		names[mediaType] = m.Get(FieldName)
	}
	return names
}
