package relay

import (
	"path/filepath"
	"strings"

	"gembot/pkg/bus"
)

// Route is the single handling path an inbound event resolves to.
type Route int

const (
	// RouteIgnore drops the event with no outward action.
	RouteIgnore Route = iota
	// RouteWelcome replies with the fixed welcome text.
	RouteWelcome
	// RouteText relays the message text to the backend.
	RouteText
	// RoutePhoto relays the highest-resolution photo variant.
	RoutePhoto
	// RouteImageDocument relays a document that carries an image.
	RouteImageDocument
	// RouteUnsupported replies with the shared unsupported-media notice.
	RouteUnsupported
)

// Classify resolves an event to exactly one route. The evaluation order is
// load-bearing: text resolution wins over any attachment fields, and photo
// wins over document.
func Classify(event bus.InboundEvent) Route {
	if event.Text != "" {
		if event.Text == startCommand {
			return RouteWelcome
		}
		if strings.HasPrefix(event.Text, "/") {
			return RouteIgnore
		}
		return RouteText
	}

	if len(event.Photos) > 0 {
		return RoutePhoto
	}

	if event.Document != nil {
		if isImageDocument(*event.Document) {
			return RouteImageDocument
		}
		return RouteUnsupported
	}

	if event.OtherMedia {
		return RouteUnsupported
	}

	return RouteIgnore
}

// isImageDocument accepts documents by declared MIME prefix or by a
// recognized image file extension, case-insensitive.
func isImageDocument(doc bus.DocumentRef) bool {
	if strings.HasPrefix(strings.ToLower(doc.MIMEType), "image/") {
		return true
	}

	switch strings.ToLower(filepath.Ext(doc.FileName)) {
	case ".png", ".jpg", ".jpeg":
		return true
	default:
		return false
	}
}
