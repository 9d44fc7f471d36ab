package action

import (
	"context"
	"fmt"
	"net/http"
	"reflect"

	"github.com/GoCodeAlone/keel/container"
	"github.com/GoCodeAlone/keel/logging"
)

// Well-known specifiers used by the runner.
const (
	DefaultParser     = "parser:application"
	DefaultSerializer = "serializer:application"
	ErrorSerializer   = "serializer:error"
)

// Runner drives actions through their lifecycle.
type Runner struct {
	Container *container.Container
	Logger    logging.Logger
}

// NewRunner returns a runner resolving parsers and serializers from c.
func NewRunner(c *container.Container, logger logging.Logger) *Runner {
	return &Runner{Container: c, Logger: logging.OrNop(logger)}
}

// Run executes a against req, writing exactly one response to w. Errors
// from any stage abort the run and are returned for the caller to hand to
// the error action. After filters do not run when a before filter preempts.
func (r *Runner) Run(ctx context.Context, a Action, req *Request, w http.ResponseWriter) error {
	st := &run{
		w:         w,
		req:       req,
		container: r.Container,
		action:    a,
	}
	if b, ok := a.(binder); ok {
		base := b.base()
		base.run = st
		base.logger = r.Logger
		if base.container == nil {
			base.container = r.Container
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	params, err := r.parse(ctx, a, req)
	if err != nil {
		return err
	}

	before, after := filtersOf(a)
	for _, f := range before {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := f.Run(ctx, a, params)
		if err != nil {
			return fmt.Errorf("before filter %s: %w", filterName(f), err)
		}
		if st.rendered {
			return nil
		}
		if result != nil {
			return st.render(ctx, http.StatusOK, result)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	responder := selectResponder(a, req.Header.Get("Accept"))
	result, err := responder(ctx, params)
	if err != nil {
		return err
	}
	if result != nil && !st.rendered {
		if err := st.render(ctx, http.StatusOK, result); err != nil {
			return err
		}
	}

	for _, f := range after {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := f.Run(ctx, a, params); err != nil {
			return fmt.Errorf("after filter %s: %w", filterName(f), err)
		}
	}

	if !st.rendered {
		return fmt.Errorf("%w: %T", ErrNoRender, a)
	}
	return nil
}

// parse resolves the action's parser and, when the action's serializer can
// normalize payloads, passes the parsed body through it. Requests carrying
// an error skip body parsing so the error action never fails on the same
// malformed input again.
func (r *Runner) parse(ctx context.Context, a Action, req *Request) (*Params, error) {
	if req.Err != nil {
		return NewParams(req), nil
	}

	spec := DefaultParser
	if ps, ok := a.(ParserSpecifier); ok && ps.ParserSpecifier() != "" {
		spec = ps.ParserSpecifier()
	}
	v, err := r.Container.Lookup(spec)
	if err != nil {
		return nil, err
	}
	parser, ok := v.(Parser)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T", ErrBadParser, spec, v)
	}
	params, err := parser.Parse(ctx, req)
	if err != nil {
		return nil, err
	}

	if params.Body == nil {
		return params, nil
	}
	serializerSpec := DefaultSerializer
	if ss, ok := a.(SerializerSpecifier); ok && ss.SerializerSpecifier() != "" {
		serializerSpec = ss.SerializerSpecifier()
	}
	if sv, err := r.Container.Lookup(serializerSpec); err == nil {
		if pp, ok := sv.(PayloadParser); ok {
			body, err := pp.ParsePayload(ctx, params.Body)
			if err != nil {
				return nil, BadRequest("invalid payload", err)
			}
			params.Body = body
		}
	}
	return params, nil
}

type run struct {
	w         http.ResponseWriter
	req       *Request
	container *container.Container
	action    Action
	rendered  bool
}

func (st *run) render(ctx context.Context, status int, payload any, opts ...RenderOption) error {
	if st.rendered {
		return ErrAlreadyRendered
	}
	var o renderOptions
	for _, opt := range opts {
		opt(&o)
	}

	spec := o.serializer
	if spec == "" {
		spec = st.serializerFor(payload)
	}
	v, err := st.container.Lookup(spec)
	if err != nil {
		return err
	}
	serializer, ok := v.(Serializer)
	if !ok {
		return fmt.Errorf("%w: %s is %T", ErrBadSerializer, spec, v)
	}

	var body []byte
	if payload != nil {
		body, err = serializer.Serialize(ctx, payload, SerializeOptions{
			Status:  status,
			Action:  actionName(st.req),
			Request: st.req,
		})
		if err != nil {
			return err
		}
	}

	header := st.w.Header()
	for k, vs := range o.header {
		header[k] = vs
	}
	if len(body) > 0 && header.Get("Content-Type") == "" {
		header.Set("Content-Type", serializer.ContentType())
	}
	st.rendered = true
	st.w.WriteHeader(status)
	if len(body) > 0 {
		if _, err := st.w.Write(body); err != nil {
			return err
		}
	}
	return nil
}

// serializerFor infers a serializer from the payload: errors use the error
// serializer, models and model slices use their type's serializer, and
// everything else the application serializer. An action-level override
// beats all of these except the error case.
func (st *run) serializerFor(payload any) string {
	if _, ok := payload.(error); ok {
		return ErrorSerializer
	}
	if ss, ok := st.action.(SerializerSpecifier); ok && ss.SerializerSpecifier() != "" {
		return ss.SerializerSpecifier()
	}
	if m := modelOf(payload); m != nil {
		return "serializer:" + m.ModelType()
	}
	return DefaultSerializer
}

func modelOf(payload any) Model {
	if m, ok := payload.(Model); ok {
		return m
	}
	v := reflect.ValueOf(payload)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil
	}
	if v.Len() == 0 {
		return nil
	}
	m, _ := v.Index(0).Interface().(Model)
	return m
}

func actionName(req *Request) string {
	if req == nil || req.Route == nil {
		return ""
	}
	return req.Route.Action
}

func filterName(f Filter) string {
	if f.Name == "" {
		return "(anonymous)"
	}
	return f.Name
}
