package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/keel/action"
	"github.com/GoCodeAlone/keel/container"
	"github.com/GoCodeAlone/keel/parser"
	"github.com/GoCodeAlone/keel/serializer"
)

type namedAction struct {
	action.Base
	name string
}

func (a *namedAction) Respond(_ context.Context, p *action.Params) (any, error) {
	return map[string]any{"action": a.name, "id": p.Param("id")}, nil
}

type panicAction struct{ action.Base }

func (a *panicAction) Respond(context.Context, *action.Params) (any, error) { panic("kaboom") }

func named(name string) container.Constructor {
	return func(*container.Container) (any, error) { return &namedAction{name: name}, nil }
}

func newContainer(t *testing.T, actions ...string) *container.Container {
	t.Helper()
	c := container.New()
	require.NoError(t, c.Register(action.DefaultParser, parser.New()))
	require.NoError(t, c.Register(action.DefaultSerializer, &serializer.JSON{}))
	require.NoError(t, c.Register(action.ErrorSerializer, serializer.Error{}))
	require.NoError(t, c.Register(action.ErrorActionSpecifier, action.NewErrorAction(false)))
	for _, a := range actions {
		require.NoError(t, c.Register("action:"+a, named(a)))
	}
	return c
}

func do(r *Router, method, path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_MatchesAndRendersJSON(t *testing.T) {
	r := New(newContainer(t, "posts/show"))
	require.NoError(t, r.Get("/posts/:id", "action:posts/show"))

	w := do(r, http.MethodGet, "/posts/42", "Accept", "application/json")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"action":"posts/show","id":"42"}`, w.Body.String())
}

func TestRouter_DecodesParamsOnce(t *testing.T) {
	r := New(newContainer(t, "files/show"))
	require.NoError(t, r.Get("/files/:id", "files/show"))

	w := do(r, http.MethodGet, "/files/100%2525")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"action":"files/show","id":"100%25"}`, w.Body.String())

	w = do(r, http.MethodGet, "/files/a%2Fb")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"action":"files/show","id":"a/b"}`, w.Body.String())
}

func TestRouter_RegistrationOrderWins(t *testing.T) {
	r := New(newContainer(t, "users/show", "users/special"))
	require.NoError(t, r.Get("/users/:id", "users/show"))
	require.NoError(t, r.Get("/users/special", "users/special"))

	w := do(r, http.MethodGet, "/users/special")
	assert.JSONEq(t, `{"action":"users/show","id":"special"}`, w.Body.String())

	route, params, ok := r.Match(http.MethodGet, "/users/special")
	require.True(t, ok)
	assert.Equal(t, "/users/:id", route.Pattern)
	assert.Equal(t, map[string]string{"id": "special"}, params)
}

func TestRouter_MethodsAreSeparate(t *testing.T) {
	r := New(newContainer(t, "posts/create"))
	require.NoError(t, r.Post("/posts", "posts/create"))

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/posts").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/posts").Code)
}

func TestRouter_NotFoundGoesThroughErrorAction(t *testing.T) {
	r := New(newContainer(t))
	w := do(r, http.MethodGet, "/does-not-exist")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"errors":[{"id":"`+w.Header().Get(RequestIDHeader)+`","status":"404","code":"not_found","title":"Not Found","detail":"no route for GET /does-not-exist"}]}`, w.Body.String())
}

func TestRouter_RouteToMissingActionFailsFast(t *testing.T) {
	r := New(newContainer(t))
	err := r.Get("/ghost", "ghosts/show")
	assert.ErrorIs(t, err, ErrActionNotFound)
	assert.ErrorIs(t, err, container.ErrNotFound)
	assert.Empty(t, r.Routes())

	c := newContainer(t)
	require.NoError(t, c.Register("action:not-an-action", "just a string"))
	assert.ErrorIs(t, New(c).Get("/x", "not-an-action"), ErrNotAnAction)

	assert.ErrorIs(t, New(c).Get("/x", "service:foo"), container.ErrInvalidSpecifier)
	assert.ErrorIs(t, New(c).Route("", "/x", "posts/show", nil), ErrInvalidMethod)
}

func TestRouter_RejectsActionsRegisteredAsValues(t *testing.T) {
	c := newContainer(t)
	require.NoError(t, c.Register("action:posts/show", &namedAction{name: "shared"}))

	err := New(c).Get("/posts/:id", "posts/show")
	require.ErrorIs(t, err, ErrNotAnAction)
	assert.ErrorIs(t, err, container.ErrSharedValue)
}

func TestRouter_ConcurrentRequestsGetTheirOwnAction(t *testing.T) {
	var built atomic.Int32
	c := newContainer(t)
	require.NoError(t, c.Register("action:posts/show", func(*container.Container) (any, error) {
		built.Add(1)
		return &namedAction{name: "posts/show"}, nil
	}))
	r := New(c)
	require.NoError(t, r.Get("/posts/:id", "posts/show"))
	built.Store(0)

	const n = 16
	bodies := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bodies[i] = do(r, http.MethodGet, "/posts/"+strconv.Itoa(i)).Body.String()
		}()
	}
	wg.Wait()
	for i, body := range bodies {
		assert.JSONEq(t, `{"action":"posts/show","id":"`+strconv.Itoa(i)+`"}`, body)
	}
	assert.EqualValues(t, n, built.Load())
}

func TestRouter_Middleware(t *testing.T) {
	var calls []string
	r := New(newContainer(t, "posts/show"))
	require.NoError(t, r.Get("/posts/:id", "posts/show"))
	r.Use(func(req *action.Request, w http.ResponseWriter, next func(error)) {
		calls = append(calls, "first")
		next(nil)
	})
	r.Use(func(req *action.Request, w http.ResponseWriter, next func(error)) {
		calls = append(calls, "second")
		switch req.Header.Get("X-Mode") {
		case "deny":
			next(action.Unauthorized("who are you"))
		case "short":
			w.WriteHeader(http.StatusNoContent)
		default:
			next(nil)
		}
	})

	w := do(r, http.MethodGet, "/posts/1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"first", "second"}, calls)

	w = do(r, http.MethodGet, "/posts/1", "X-Mode", "deny")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "who are you")

	w = do(r, http.MethodGet, "/posts/1", "X-Mode", "short")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestRouter_UseHTTPWrapsHandler(t *testing.T) {
	r := New(newContainer(t, "posts/show"))
	require.NoError(t, r.Get("/posts/:id", "posts/show"))
	r.UseHTTP(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Wrapped", "yes")
			next.ServeHTTP(w, req)
		})
	})
	w := do(r, http.MethodGet, "/posts/1")
	assert.Equal(t, "yes", w.Header().Get("X-Wrapped"))
}

func TestRouter_PanicIsRenderedAs500(t *testing.T) {
	c := newContainer(t)
	require.NoError(t, c.Register("action:boom", func(*container.Container) (any, error) { return &panicAction{}, nil }))
	r := New(c)
	require.NoError(t, r.Get("/boom", "boom"))

	var hooked error
	r.errorHook = func(_ context.Context, _ *action.Request, err error) { hooked = err }

	w := do(r, http.MethodGet, "/boom")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "kaboom")
	assert.ErrorIs(t, hooked, ErrPanic)
}

func TestRouter_FailingErrorActionFallsBackToGeneric500(t *testing.T) {
	c := newContainer(t)
	require.NoError(t, c.Register(action.ErrorActionSpecifier, func(*container.Container) (any, error) { return &panicAction{}, nil }))
	r := New(c)

	w := do(r, http.MethodGet, "/nothing-here")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"errors":[{"status":"500","title":"Internal Server Error"}]}`, w.Body.String())
}

func TestRouter_RequestID(t *testing.T) {
	r := New(newContainer(t))
	w := do(r, http.MethodGet, "/x")
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)

	w = do(r, http.MethodGet, "/x", RequestIDHeader, "given-id")
	assert.Equal(t, "given-id", w.Header().Get(RequestIDHeader))
	assert.Contains(t, w.Body.String(), `"id":"given-id"`)
}

type recordingObserver struct {
	calls atomic.Int32
	last  atomic.Value
}

func (o *recordingObserver) ObserveRequest(method, act string, status int, _ time.Duration) {
	o.calls.Add(1)
	o.last.Store(strings.Join([]string{method, act, http.StatusText(status)}, " "))
}

func TestRouter_Observer(t *testing.T) {
	obs := &recordingObserver{}
	r := New(newContainer(t, "posts/show"), WithObserver(obs))
	require.NoError(t, r.Get("/posts/:id", "posts/show"))

	do(r, http.MethodGet, "/posts/1")
	assert.Equal(t, "GET action:posts/show OK", obs.last.Load())
	do(r, http.MethodGet, "/missing")
	assert.Equal(t, "GET  Not Found", obs.last.Load())
	assert.EqualValues(t, 2, obs.calls.Load())
}

func TestRouter_URLFor(t *testing.T) {
	c := newContainer(t, "posts/show", "posts/list")
	r := New(c)
	require.NoError(t, r.Get("/posts", "posts/list"))
	require.NoError(t, r.Get("/posts/:id", "posts/show"))

	url, ok := r.URLFor("action:posts/show", map[string]any{"id": 7})
	assert.True(t, ok)
	assert.Equal(t, "/posts/7", url)

	url, ok = r.URLFor(container.MustParse("action:posts/list"), nil)
	assert.True(t, ok)
	assert.Equal(t, "/posts", url)

	url, ok = r.URLFor(&namedAction{}, map[string]any{})
	assert.True(t, ok, "first route whose action type matches and reverses")
	assert.Equal(t, "/posts", url)

	_, ok = r.URLFor("posts/show", nil)
	assert.False(t, ok)
	_, ok = r.URLFor("posts/missing", nil)
	assert.False(t, ok)
	_, ok = r.URLFor(42, nil)
	assert.False(t, ok)
	_, ok = r.URLFor("service:", nil)
	assert.False(t, ok)
}

func TestRouter_ActionsAreFreshPerRequest(t *testing.T) {
	var built atomic.Int32
	c := newContainer(t)
	require.NoError(t, c.Register("action:count", func(*container.Container) (any, error) {
		built.Add(1)
		return &namedAction{name: "count"}, nil
	}))
	r := New(c)
	require.NoError(t, r.Get("/count", "count"))
	afterBoot := built.Load()

	do(r, http.MethodGet, "/count")
	do(r, http.MethodGet, "/count")
	assert.Equal(t, afterBoot+2, built.Load())
}

func TestRouter_HandleWithoutHTTP(t *testing.T) {
	r := New(newContainer(t, "posts/show"))
	require.NoError(t, r.Get("/posts/:id", "posts/show", map[string]any{"format": "json"}))

	req := &action.Request{ID: "direct", Method: http.MethodGet, Path: "/posts/9", Header: http.Header{}}
	w := httptest.NewRecorder()
	r.Handle(context.Background(), req, w)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, req.Route)
	assert.Equal(t, "action:posts/show", req.Route.Action)
	assert.Equal(t, map[string]any{"format": "json"}, req.Route.Defaults)
	assert.Equal(t, "9", req.Params["id"])
}

func TestRouter_ErrorHookOption(t *testing.T) {
	var got error
	r := New(newContainer(t), WithErrorHook(func(_ context.Context, _ *action.Request, err error) { got = err }))
	do(r, http.MethodGet, "/nope")
	var he *action.HTTPError
	require.True(t, errors.As(got, &he))
	assert.Equal(t, http.StatusNotFound, he.Status)
}
