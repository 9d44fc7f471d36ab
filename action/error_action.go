package action

import (
	"context"
	"errors"

	"github.com/GoCodeAlone/keel/container"
)

// ErrorActionSpecifier is where the router finds the error action.
const ErrorActionSpecifier = "action:error"

// ErrorAction renders the error carried by a request through the error
// serializer. Unless Debug is set, details of errors that are not already
// HTTP errors are withheld from the response.
type ErrorAction struct {
	Base
	Debug bool
}

// NewErrorAction returns a constructor suitable for registering under
// ErrorActionSpecifier.
func NewErrorAction(debug bool) func(*container.Container) (any, error) {
	return func(*container.Container) (any, error) {
		return &ErrorAction{Debug: debug}, nil
	}
}

func (a *ErrorAction) Respond(ctx context.Context, p *Params) (any, error) {
	err := p.Err
	if err == nil {
		err = errors.New("error action invoked without an error")
	}
	he := AsHTTPError(err)
	if !a.Debug && he.Status >= 500 {
		he = &HTTPError{Status: he.Status, Code: he.Code, Message: he.Message}
	}
	if rid := requestID(p); rid != "" {
		a.Header().Set("X-Request-Id", rid)
	}
	return nil, a.Render(ctx, he.Status, he)
}

func requestID(p *Params) string {
	if p.Request == nil {
		return ""
	}
	return p.Request.ID
}
