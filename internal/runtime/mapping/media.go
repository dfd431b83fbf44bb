package mapping

import (
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/munnerz/goautoneg"

	errspkg "github.com/drblury/dispatchflow/internal/runtime/errors"
)

// MediaTypePrefix marks vendor media types that name a message.
const MediaTypePrefix = "application/vnd."

// NameFrom resolves the message name for a request. The Content-Type wins
// when it is a vendor type; otherwise the first vendor type in Accept is used.
func NameFrom(mappings map[string]string, header http.Header) (string, error) {
	if header == nil {
		return "", errspkg.ErrHeadersRequired
	}

	mediaType, ok := vendorContentType(header)
	if !ok {
		if mediaType, ok = firstVendorAccept(header); !ok {
			return "", errspkg.ErrIncorrectMediaTypes
		}
	}

	name, ok := mappings[mediaType]
	if !ok {
		return "", fmt.Errorf("%w: %s", errspkg.ErrUnmappedMediaType, mediaType)
	}
	return name, nil
}

// MediaTypeOf returns the vendor media type selecting the action: the first
// vendor Accept type for GET, the Content-Type otherwise.
func MediaTypeOf(httpMethod string, header http.Header) (string, error) {
	if header == nil {
		return "", errspkg.ErrHeadersRequired
	}
	if httpMethod == http.MethodGet {
		if mt, ok := firstVendorAccept(header); ok {
			return mt, nil
		}
		return "", errspkg.ErrIncorrectMediaTypes
	}
	mt, ok := contentType(header)
	if !ok {
		return "", errspkg.ErrIncorrectMediaTypes
	}
	return mt, nil
}

// NameFromMediaType turns "application/vnd.ctx.command.x+json" into
// "ctx.command.x". Parameters and the structured syntax suffix are dropped.
func NameFromMediaType(mediaType string) string {
	mt := baseMediaType(mediaType)
	mt = strings.TrimPrefix(mt, MediaTypePrefix)
	if i := strings.LastIndex(mt, "+"); i >= 0 {
		mt = mt[:i]
	}
	return mt
}

// IsVendorMediaType reports whether mediaType carries the vendor prefix.
func IsVendorMediaType(mediaType string) bool {
	return strings.HasPrefix(baseMediaType(mediaType), MediaTypePrefix)
}

// VendorMediaType resolves the request's vendor media type the same way
// NameFrom does, without a mapping table.
func VendorMediaType(header http.Header) (string, error) {
	if header == nil {
		return "", errspkg.ErrHeadersRequired
	}
	if mt, ok := vendorContentType(header); ok {
		return mt, nil
	}
	if mt, ok := firstVendorAccept(header); ok {
		return mt, nil
	}
	return "", errspkg.ErrIncorrectMediaTypes
}

func contentType(header http.Header) (string, bool) {
	raw := header.Get("Content-Type")
	if raw == "" {
		return "", false
	}
	return baseMediaType(raw), true
}

func vendorContentType(header http.Header) (string, bool) {
	mt, ok := contentType(header)
	if !ok || !strings.HasPrefix(mt, MediaTypePrefix) {
		return "", false
	}
	return mt, true
}

func firstVendorAccept(header http.Header) (string, bool) {
	for _, raw := range header.Values("Accept") {
		for _, accept := range goautoneg.ParseAccept(raw) {
			mt := strings.ToLower(accept.Type + "/" + accept.SubType)
			if strings.HasPrefix(mt, MediaTypePrefix) {
				return mt, true
			}
		}
	}
	return "", false
}

func baseMediaType(raw string) string {
	mt, _, err := mime.ParseMediaType(raw)
	if err != nil {
		mt, _, _ = strings.Cut(raw, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}
