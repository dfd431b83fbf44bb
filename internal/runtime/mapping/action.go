package mapping

import (
	"fmt"
	"net/http"
	"sync"

	errspkg "github.com/drblury/dispatchflow/internal/runtime/errors"
)

// ActionMapper maps a route method and media type to an action name.
type ActionMapper struct {
	mu      sync.RWMutex
	actions map[string]map[string]string
}

func NewActionMapper() *ActionMapper {
	return &ActionMapper{actions: make(map[string]map[string]string)}
}

// Add binds mediaType on method to action, replacing an earlier binding.
func (a *ActionMapper) Add(method, mediaType, action string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.actions == nil {
		a.actions = make(map[string]map[string]string)
	}
	byType, ok := a.actions[method]
	if !ok {
		byType = make(map[string]string)
		a.actions[method] = byType
	}
	byType[baseMediaType(mediaType)] = action
}

// AddMappings binds every mapping in mappings on method to its message name.
func (a *ActionMapper) AddMappings(method string, mappings map[string]Mapping) {
	for mediaType, m := range mappings {
		a.Add(method, mediaType, m.Get(FieldName))
	}
}

// ActionOf returns the action for method selected by the request headers.
func (a *ActionMapper) ActionOf(method, httpMethod string, header http.Header) (string, error) {
	mediaType, err := MediaTypeOf(httpMethod, header)
	if err != nil {
		return "", err
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	action, ok := a.actions[method][mediaType]
	if !ok {
		return "", fmt.Errorf("%w: %s %s", errspkg.ErrUnmappedMediaType, method, mediaType)
	}
	return action, nil
}
