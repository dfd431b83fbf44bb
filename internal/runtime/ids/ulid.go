package ids

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// Generator produces envelope identifiers.
type Generator func() string

const (
	GeneratorULID = "ulid"
	GeneratorUUID = "uuid"
)

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
func CreateULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// CreateUUID returns a random RFC 4122 version 4 identifier.
func CreateUUID() string {
	return uuid.NewString()
}

// ByName resolves a generator by its configured name. The empty name selects ULIDs.
func ByName(name string) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", GeneratorULID:
		return CreateULID, nil
	case GeneratorUUID:
		return CreateUUID, nil
	default:
		return nil, fmt.Errorf("unknown id generator %q", name)
	}
}

// Valid reports whether id parses as either a ULID or a UUID.
func Valid(id string) bool {
	if _, err := ulid.ParseStrict(id); err == nil {
		return true
	}
	_, err := uuid.Parse(id)
	return err == nil
}
