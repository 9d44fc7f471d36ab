package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/GoCodeAlone/keel/action"
)

// RequestIDHeader carries the request correlation id in both directions.
const RequestIDHeader = "X-Request-Id"

// ServeHTTP adapts net/http to Handle, applying any UseHTTP middleware.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.Handler().ServeHTTP(w, req)
}

// Handler returns the router wrapped in its net/http middleware chain.
func (r *Router) Handler() http.Handler {
	r.mu.RLock()
	h := r.handler
	r.mu.RUnlock()
	if h != nil {
		return h
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handler == nil {
		r.handler = chi.Chain(r.httpChain...).HandlerFunc(r.serve)
	}
	return r.handler
}

func (r *Router) serve(w http.ResponseWriter, req *http.Request) {
	id := req.Header.Get(RequestIDHeader)
	if id == "" {
		id = newRequestID()
	}
	w.Header().Set(RequestIDHeader, id)
	r.Handle(req.Context(), NewRequest(req, id), w)
}

// NewRequest converts an *http.Request into an action request.
func NewRequest(req *http.Request, id string) *action.Request {
	return &action.Request{
		ID:     id,
		Method: req.Method,
		Path:   req.URL.EscapedPath(),
		Header: req.Header,
		Query:  req.URL.Query(),
		Body:   req.Body,
		Raw:    req,
	}
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}
