package handlers

import (
	"fmt"
	"strings"
)

// Mode is the invocation contract of a handler binding.
type Mode uint8

const (
	// Synchronous handlers return a result envelope to the caller.
	Synchronous Mode = iota + 1
	// Asynchronous handlers are fire-and-forget; any result is discarded.
	Asynchronous
)

func (m Mode) String() string {
	switch m {
	case Synchronous:
		return "synchronous"
	case Asynchronous:
		return "asynchronous"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

func (m Mode) Valid() bool {
	return m == Synchronous || m == Asynchronous
}

// ParseMode accepts "sync", "synchronous", "async" and "asynchronous".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sync", "synchronous":
		return Synchronous, nil
	case "async", "asynchronous":
		return Asynchronous, nil
	default:
		return 0, fmt.Errorf("unknown dispatch mode %q", s)
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid dispatch mode %d", uint8(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
