package action

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// RouteInfo describes the route a request matched.
type RouteInfo struct {
	Method  string
	Pattern string
	Action  string
	// Defaults are the additional params the route was declared with.
	Defaults map[string]any
}

// Request is the transport-neutral view of an incoming request.
type Request struct {
	// ID correlates log lines and error responses for one request.
	ID     string
	Method string
	// Path is percent-encoded as received; route params are decoded from it.
	Path   string
	Header http.Header
	Query  url.Values
	Body   io.Reader

	Route  *RouteInfo
	Params map[string]string

	// Err is set when the request is handed to the error action.
	Err error

	Raw *http.Request
}

// Params is the normalized input passed to filters and responders.
type Params struct {
	Body    any
	Query   url.Values
	Headers http.Header
	// Params holds the route defaults overlaid with the path params.
	Params  map[string]any
	Request *Request
	Err     error
}

// Param returns a route param as a string.
func (p *Params) Param(name string) string {
	if p == nil || p.Params == nil {
		return ""
	}
	switch v := p.Params[name].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// NewParams builds params from req without reading the body.
func NewParams(req *Request) *Params {
	p := &Params{
		Query:   req.Query,
		Headers: req.Header,
		Params:  make(map[string]any, len(req.Params)),
		Request: req,
		Err:     req.Err,
	}
	if p.Query == nil {
		p.Query = url.Values{}
	}
	if p.Headers == nil {
		p.Headers = http.Header{}
	}
	if req.Route != nil {
		for k, v := range req.Route.Defaults {
			p.Params[k] = v
		}
	}
	for k, v := range req.Params {
		p.Params[k] = v
	}
	return p
}
