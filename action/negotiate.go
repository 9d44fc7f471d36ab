package action

import (
	"slices"

	"github.com/munnerz/goautoneg"
)

// isWildcard reports whether accept leaves the format to the server.
func isWildcard(accept string) bool {
	if accept == "" {
		return true
	}
	parsed := goautoneg.ParseAccept(accept)
	if len(parsed) == 0 {
		return true
	}
	for _, a := range parsed {
		if a.Type != "*" || a.SubType != "*" {
			return false
		}
	}
	return true
}

// selectResponder picks the responder for accept. Wildcard requests and
// actions without a matching format-specific responder use Respond.
func selectResponder(a Action, accept string) Responder {
	if isWildcard(accept) {
		return a.Respond
	}
	n, ok := a.(Negotiator)
	if !ok {
		return a.Respond
	}
	responders := n.Responders()
	if len(responders) == 0 {
		return a.Respond
	}
	offers := make([]string, 0, len(responders))
	for mediaType := range responders {
		offers = append(offers, mediaType)
	}
	slices.Sort(offers)

	if match := goautoneg.Negotiate(accept, offers); match != "" {
		if r := responders[match]; r != nil {
			return r
		}
	}
	return a.Respond
}
