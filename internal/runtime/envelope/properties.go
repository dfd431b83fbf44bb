package envelope

// Properties carries string attributes that travel with an envelope but are not
// part of its identity, such as correlation or session identifiers.
type Properties map[string]string

// Well-known property keys.
const (
	PropertyCorrelationID = "correlation_id"
	PropertyUserID        = "user_id"
	PropertySessionID     = "session_id"
	PropertyStreamID      = "stream_id"
)

func (p Properties) cloneWithExtra(extra int) Properties {
	size := len(p) + extra
	if size <= 0 {
		return nil
	}

	cloned := make(Properties, size)
	for k, v := range p {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy, or nil when p is empty.
func (p Properties) Clone() Properties {
	return p.cloneWithExtra(0)
}

// With returns a copy containing the provided key/value pair.
func (p Properties) With(key, value string) Properties {
	cloned := p.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// WithAll returns a copy containing the supplied entries.
func (p Properties) WithAll(entries Properties) Properties {
	if len(entries) == 0 {
		return p.Clone()
	}
	cloned := p.cloneWithExtra(len(entries))
	for k, v := range entries {
		cloned[k] = v
	}
	return cloned
}
