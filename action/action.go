// Package action runs request handlers through their lifecycle: parse,
// before filters, a content-negotiated responder, after filters and exactly
// one render.
package action

import (
	"context"
	"net/http"

	"github.com/GoCodeAlone/keel/container"
	"github.com/GoCodeAlone/keel/logging"
)

// Action handles one request. A fresh instance is built for every request,
// so implementations may keep per-request state in their fields.
type Action interface {
	Respond(ctx context.Context, p *Params) (any, error)
}

// Responder is a format-specific alternative to Respond.
type Responder func(ctx context.Context, p *Params) (any, error)

// Negotiator exposes responders keyed by media type, e.g. "text/html".
type Negotiator interface {
	Responders() map[string]Responder
}

// FilterDeclarer exposes the filter declaration for an action type.
type FilterDeclarer interface {
	DeclaredFilters() *Filters
}

// ParserSpecifier overrides the parser used for an action.
type ParserSpecifier interface {
	ParserSpecifier() string
}

// SerializerSpecifier overrides the serializer used for an action.
type SerializerSpecifier interface {
	SerializerSpecifier() string
}

// Parser turns a request into params. An empty body is not an error; a
// malformed one is reported as a BadRequest HTTPError.
type Parser interface {
	Parse(ctx context.Context, req *Request) (*Params, error)
}

// SerializeOptions are passed to a serializer for a single render.
type SerializeOptions struct {
	Status  int
	Action  string
	Request *Request
}

// Serializer converts a payload into a response body.
type Serializer interface {
	Serialize(ctx context.Context, payload any, opts SerializeOptions) ([]byte, error)
	ContentType() string
}

// PayloadParser is implemented by serializers that normalize incoming
// bodies symmetrically to how they serialize outgoing ones.
type PayloadParser interface {
	ParsePayload(ctx context.Context, body any) (any, error)
}

// Model is implemented by domain objects that have their own serializer.
type Model interface {
	ModelType() string
}

// Base is embedded by actions that need to render explicitly or reach
// their container, request or logger.
type Base struct {
	container *container.Container
	logger    logging.Logger
	run       *run
}

// SetContainer is called by the container when the action is built.
func (b *Base) SetContainer(c *container.Container) { b.container = c }

func (b *Base) Container() *container.Container { return b.container }

// Request returns the request being handled, or nil outside of a run.
func (b *Base) Request() *Request {
	if b.run == nil {
		return nil
	}
	return b.run.req
}

func (b *Base) Logger() logging.Logger { return logging.OrNop(b.logger) }

// Render writes payload with status. Only one render is allowed per request.
func (b *Base) Render(ctx context.Context, status int, payload any, opts ...RenderOption) error {
	if b.run == nil {
		return ErrNotRunning
	}
	return b.run.render(ctx, status, payload, opts...)
}

// Rendered reports whether a response has been written.
func (b *Base) Rendered() bool {
	return b.run != nil && b.run.rendered
}

// Header returns the response headers, for filters that set them before
// the render.
func (b *Base) Header() http.Header {
	if b.run == nil {
		return http.Header{}
	}
	return b.run.w.Header()
}

func (b *Base) base() *Base { return b }

type binder interface {
	base() *Base
}

// RenderOption adjusts a single render.
type RenderOption func(*renderOptions)

type renderOptions struct {
	serializer string
	header     http.Header
}

// WithSerializer renders with the given serializer specifier instead of
// inferring one from the payload.
func WithSerializer(spec string) RenderOption {
	return func(o *renderOptions) { o.serializer = spec }
}

// WithHeader sets a response header for the render.
func WithHeader(key, value string) RenderOption {
	return func(o *renderOptions) {
		if o.header == nil {
			o.header = http.Header{}
		}
		o.header.Set(key, value)
	}
}
