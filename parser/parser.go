// Package parser provides the default request parser registered as
// parser:application.
package parser

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/GoCodeAlone/keel/action"
)

// DefaultMaxBodyBytes bounds request bodies unless configured otherwise.
const DefaultMaxBodyBytes int64 = 10 << 20

var ErrBodyTooLarge = errors.New("request body too large")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Application parses JSON and form bodies. Other media types are passed
// through as raw bytes.
type Application struct {
	MaxBodyBytes int64
}

// New returns a parser with the default body limit.
func New() *Application {
	return &Application{MaxBodyBytes: DefaultMaxBodyBytes}
}

func (p *Application) Parse(ctx context.Context, req *action.Request) (*action.Params, error) {
	params := action.NewParams(req)
	if req.Body == nil {
		return params, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	limit := p.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	data, err := io.ReadAll(io.LimitReader(req.Body, limit+1))
	if err != nil {
		return nil, action.BadRequest("unreadable body", err)
	}
	if int64(len(data)) > limit {
		return nil, action.NewHTTPError(http.StatusRequestEntityTooLarge, "body_too_large", "", ErrBodyTooLarge)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return params, nil
	}

	mediaType := "application/json"
	if ct := req.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return nil, action.BadRequest("invalid content type", err)
		}
		mediaType = mt
	}

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		var body any
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, action.BadRequest("malformed JSON body", err)
		}
		params.Body = body
	case mediaType == "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(data))
		if err != nil {
			return nil, action.BadRequest("malformed form body", err)
		}
		params.Body = formBody(values)
	default:
		params.Body = data
	}
	return params, nil
}

func formBody(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for k, vs := range values {
		if len(vs) == 1 {
			out[k] = vs[0]
		} else {
			out[k] = vs
		}
	}
	return out
}
