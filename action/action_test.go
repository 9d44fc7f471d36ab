package action_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/keel/action"
	"github.com/GoCodeAlone/keel/container"
	"github.com/GoCodeAlone/keel/parser"
	"github.com/GoCodeAlone/keel/serializer"
)

func newContainer(t *testing.T) *container.Container {
	t.Helper()
	c := container.New()
	require.NoError(t, c.Register(action.DefaultParser, parser.New()))
	require.NoError(t, c.Register(action.DefaultSerializer, &serializer.JSON{}))
	require.NoError(t, c.Register(action.ErrorSerializer, serializer.Error{}))
	return c
}

func newRequest(method, path, accept, body string) *action.Request {
	req := &action.Request{
		ID:     "req-1",
		Method: method,
		Path:   path,
		Header: http.Header{},
		Params: map[string]string{},
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if body != "" {
		req.Body = strings.NewReader(body)
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

type showAction struct {
	action.Base
	responded bool
}

func (a *showAction) Respond(_ context.Context, p *action.Params) (any, error) {
	a.responded = true
	return map[string]any{"id": p.Param("id")}, nil
}

func TestRun_AutoRendersRespondResult(t *testing.T) {
	c := newContainer(t)
	req := newRequest(http.MethodGet, "/posts/42", "application/json", "")
	req.Params["id"] = "42"
	w := httptest.NewRecorder()

	err := action.NewRunner(c, nil).Run(context.Background(), &showAction{}, req, w)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"42"}`, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
}

var guarded = &action.Filters{
	Before: []action.Filter{{
		Name: "guard",
		Run: func(context.Context, action.Action, *action.Params) (any, error) {
			return map[string]any{"preempted": true}, nil
		},
	}},
	After: []action.Filter{{
		Name: "audit",
		Run: func(_ context.Context, a action.Action, _ *action.Params) (any, error) {
			a.(*guardedAction).audited = true
			return nil, nil
		},
	}},
}

type guardedAction struct {
	showAction
	audited bool
}

func (a *guardedAction) DeclaredFilters() *action.Filters { return guarded }

func TestRun_BeforeFilterPreemptsResponderAndAfterFilters(t *testing.T) {
	c := newContainer(t)
	a := &guardedAction{}
	w := httptest.NewRecorder()

	err := action.NewRunner(c, nil).Run(context.Background(), a, newRequest(http.MethodGet, "/", "", ""), w)
	require.NoError(t, err)
	assert.False(t, a.responded)
	assert.False(t, a.audited)
	assert.JSONEq(t, `{"preempted":true}`, w.Body.String())
}

var explicitRender = &action.Filters{
	Before: []action.Filter{{
		Name: "redirect",
		Run: func(ctx context.Context, a action.Action, _ *action.Params) (any, error) {
			return nil, a.(*explicitAction).Render(ctx, http.StatusAccepted, map[string]any{"queued": true})
		},
	}},
}

type explicitAction struct{ showAction }

func (a *explicitAction) DeclaredFilters() *action.Filters { return explicitRender }

func TestRun_ExplicitRenderInFilterPreempts(t *testing.T) {
	c := newContainer(t)
	a := &explicitAction{}
	w := httptest.NewRecorder()

	require.NoError(t, action.NewRunner(c, nil).Run(context.Background(), a, newRequest(http.MethodGet, "/", "", ""), w))
	assert.False(t, a.responded)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

var (
	order      []string
	parentDecl = &action.Filters{
		Before: []action.Filter{named("auth"), named("load")},
		After:  []action.Filter{named("log")},
	}
	childDecl = parentDecl.Extend(
		[]action.Filter{named("load"), named("child")},
		[]action.Filter{named("log"), named("metrics")},
	)
)

func named(name string) action.Filter {
	return action.Filter{Name: name, Run: func(context.Context, action.Action, *action.Params) (any, error) {
		order = append(order, name)
		return nil, nil
	}}
}

type childAction struct{ showAction }

func (a *childAction) DeclaredFilters() *action.Filters { return childDecl }

func TestFilters_ChainIsAncestorFirstDedupedAndCached(t *testing.T) {
	before, after := childDecl.Chain()
	names := func(fs []action.Filter) []string {
		out := make([]string, len(fs))
		for i, f := range fs {
			out[i] = f.Name
		}
		return out
	}
	assert.Equal(t, []string{"auth", "load", "child"}, names(before))
	assert.Equal(t, []string{"log", "metrics"}, names(after))

	again, _ := childDecl.Chain()
	assert.Same(t, &before[0], &again[0])

	order = nil
	c := newContainer(t)
	require.NoError(t, action.NewRunner(c, nil).Run(context.Background(), &childAction{}, newRequest(http.MethodGet, "/", "", ""), httptest.NewRecorder()))
	assert.Equal(t, []string{"auth", "load", "child", "log", "metrics"}, order)
}

type silentAction struct{ action.Base }

func (a *silentAction) Respond(context.Context, *action.Params) (any, error) { return nil, nil }

func TestRun_NoRenderIsAnError(t *testing.T) {
	c := newContainer(t)
	err := action.NewRunner(c, nil).Run(context.Background(), &silentAction{}, newRequest(http.MethodGet, "/", "", ""), httptest.NewRecorder())
	assert.ErrorIs(t, err, action.ErrNoRender)
}

type doubleAction struct{ action.Base }

func (a *doubleAction) Respond(ctx context.Context, _ *action.Params) (any, error) {
	if err := a.Render(ctx, http.StatusCreated, map[string]any{"n": 1}); err != nil {
		return nil, err
	}
	return nil, a.Render(ctx, http.StatusOK, map[string]any{"n": 2})
}

func TestRun_SecondRenderFails(t *testing.T) {
	c := newContainer(t)
	w := httptest.NewRecorder()
	err := action.NewRunner(c, nil).Run(context.Background(), &doubleAction{}, newRequest(http.MethodGet, "/", "", ""), w)
	assert.ErrorIs(t, err, action.ErrAlreadyRendered)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestBase_RenderOutsideRun(t *testing.T) {
	var b action.Base
	assert.ErrorIs(t, b.Render(context.Background(), 200, "x"), action.ErrNotRunning)
	assert.False(t, b.Rendered())
	assert.Nil(t, b.Request())
}

var failing = &action.Filters{Before: []action.Filter{{
	Name: "deny",
	Run: func(context.Context, action.Action, *action.Params) (any, error) {
		return nil, action.Forbidden("nope")
	},
}}}

type failingAction struct{ showAction }

func (a *failingAction) DeclaredFilters() *action.Filters { return failing }

func TestRun_FilterErrorAbortsChain(t *testing.T) {
	c := newContainer(t)
	a := &failingAction{}
	err := action.NewRunner(c, nil).Run(context.Background(), a, newRequest(http.MethodGet, "/", "", ""), httptest.NewRecorder())
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, action.StatusOf(err))
	assert.False(t, a.responded)
}

type negotiatedAction struct{ showAction }

func (a *negotiatedAction) Responders() map[string]action.Responder {
	return map[string]action.Responder{
		"text/html": func(ctx context.Context, _ *action.Params) (any, error) {
			return nil, a.Render(ctx, http.StatusOK, "<h1>post</h1>", action.WithSerializer("serializer:html"))
		},
	}
}

func TestRun_ContentNegotiation(t *testing.T) {
	tests := []struct {
		accept   string
		wantHTML bool
	}{
		{accept: "", wantHTML: false},
		{accept: "*/*", wantHTML: false},
		{accept: "text/html", wantHTML: true},
		{accept: "text/html;q=0.9, application/json;q=0.1", wantHTML: true},
		{accept: "application/xml", wantHTML: false},
	}
	for _, tt := range tests {
		t.Run(tt.accept, func(t *testing.T) {
			c := newContainer(t)
			require.NoError(t, c.Register("serializer:html", serializer.Raw{MediaType: "text/html"}))
			a := &negotiatedAction{}
			w := httptest.NewRecorder()

			require.NoError(t, action.NewRunner(c, nil).Run(context.Background(), a, newRequest(http.MethodGet, "/", tt.accept, ""), w))
			assert.Equal(t, !tt.wantHTML, a.responded)
			if tt.wantHTML {
				assert.Equal(t, "<h1>post</h1>", w.Body.String())
				assert.Equal(t, "text/html", w.Header().Get("Content-Type"))
			}
		})
	}
}

type book struct {
	Title string `json:"title"`
}

func (book) ModelType() string { return "book" }

type bookSerializer struct{}

func (bookSerializer) ContentType() string { return "application/vnd.book+json" }

func (bookSerializer) Serialize(_ context.Context, payload any, _ action.SerializeOptions) ([]byte, error) {
	switch p := payload.(type) {
	case book:
		return []byte(`{"book":"` + p.Title + `"}`), nil
	case []book:
		return []byte(`{"books":` + string(rune('0'+len(p))) + `}`), nil
	}
	return nil, errors.New("unexpected payload")
}

type payloadAction struct {
	action.Base
	payload any
}

func (a *payloadAction) Respond(context.Context, *action.Params) (any, error) { return a.payload, nil }

func TestRender_InfersSerializerFromPayload(t *testing.T) {
	tests := []struct {
		name        string
		payload     any
		contentType string
		body        string
		status      int
	}{
		{name: "model", payload: book{Title: "Dune"}, contentType: "application/vnd.book+json", body: `{"book":"Dune"}`, status: 200},
		{name: "model slice", payload: []book{{Title: "a"}, {Title: "b"}}, contentType: "application/vnd.book+json", body: `{"books":2}`, status: 200},
		{name: "plain value", payload: map[string]int{"n": 1}, contentType: "application/json; charset=utf-8", body: `{"n":1}`, status: 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newContainer(t)
			require.NoError(t, c.Register("serializer:book", bookSerializer{}))
			w := httptest.NewRecorder()
			require.NoError(t, action.NewRunner(c, nil).Run(context.Background(), &payloadAction{payload: tt.payload}, newRequest(http.MethodGet, "/", "", ""), w))
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.contentType, w.Header().Get("Content-Type"))
			assert.Equal(t, tt.body, w.Body.String())
		})
	}
}

func TestRender_ModelWithoutSerializerFallsBackToApplication(t *testing.T) {
	c := newContainer(t)
	w := httptest.NewRecorder()
	require.NoError(t, action.NewRunner(c, nil).Run(context.Background(), &payloadAction{payload: book{Title: "Emma"}}, newRequest(http.MethodGet, "/", "", ""), w))
	assert.JSONEq(t, `{"title":"Emma"}`, w.Body.String())
}

func TestRender_ErrorPayloadUsesErrorSerializer(t *testing.T) {
	c := newContainer(t)
	w := httptest.NewRecorder()
	require.NoError(t, action.NewRunner(c, nil).Run(context.Background(), &payloadAction{payload: action.NotFound("no such book")}, newRequest(http.MethodGet, "/", "", ""), w))
	assert.JSONEq(t, `{"errors":[{"id":"req-1","status":"200","code":"not_found","title":"Not Found","detail":"no such book"}]}`, w.Body.String())
}

type echoAction struct{ action.Base }

func (a *echoAction) Respond(_ context.Context, p *action.Params) (any, error) { return p.Body, nil }

func TestRun_ParsesBody(t *testing.T) {
	c := newContainer(t)
	w := httptest.NewRecorder()
	require.NoError(t, action.NewRunner(c, nil).Run(context.Background(), &echoAction{}, newRequest(http.MethodPost, "/", "", `{"title":"Dune"}`), w))
	assert.JSONEq(t, `{"title":"Dune"}`, w.Body.String())
}

func TestRun_MalformedBodyIsBadRequest(t *testing.T) {
	c := newContainer(t)
	w := httptest.NewRecorder()
	err := action.NewRunner(c, nil).Run(context.Background(), &echoAction{}, newRequest(http.MethodPost, "/", "", `{"title":`), w)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, action.StatusOf(err))
	assert.Equal(t, 0, w.Body.Len())
}

type rootedAction struct{ echoAction }

func (a *rootedAction) SerializerSpecifier() string { return "serializer:rooted" }

func TestRun_SerializerPayloadParserNormalizesBody(t *testing.T) {
	c := newContainer(t)
	require.NoError(t, c.Register("serializer:rooted", &serializer.JSON{Root: "post"}))
	w := httptest.NewRecorder()
	require.NoError(t, action.NewRunner(c, nil).Run(context.Background(), &rootedAction{}, newRequest(http.MethodPost, "/", "", `{"post":{"id":1}}`), w))
	assert.JSONEq(t, `{"post":{"id":1}}`, w.Body.String())
}

func TestRun_CanceledContextStopsBeforeWriting(t *testing.T) {
	c := newContainer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := &showAction{}
	w := httptest.NewRecorder()
	err := action.NewRunner(c, nil).Run(ctx, a, newRequest(http.MethodGet, "/", "", ""), w)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, a.responded)
	assert.Equal(t, 0, w.Body.Len())
}
