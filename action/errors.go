package action

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

var (
	ErrNoRender        = errors.New("action completed without rendering a response")
	ErrAlreadyRendered = errors.New("response already rendered")
	ErrNotRunning      = errors.New("action is not running")
	ErrNoResponder     = errors.New("no responder available")
	ErrBadSerializer   = errors.New("serializer does not implement action.Serializer")
	ErrBadParser       = errors.New("parser does not implement action.Parser")
)

// HTTPError is an error with a response status and a stable code.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, msg, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, msg)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// Title is the status text for e.Status.
func (e *HTTPError) Title() string {
	if t := http.StatusText(e.Status); t != "" {
		return t
	}
	return "Error " + strconv.Itoa(e.Status)
}

// NewHTTPError returns an error rendered with status and code.
func NewHTTPError(status int, code, message string, err error) *HTTPError {
	return &HTTPError{Status: status, Code: code, Message: message, Err: err}
}

func NotFound(message string) *HTTPError {
	return NewHTTPError(http.StatusNotFound, "not_found", message, nil)
}

func BadRequest(message string, err error) *HTTPError {
	return NewHTTPError(http.StatusBadRequest, "bad_request", message, err)
}

func Unauthorized(message string) *HTTPError {
	return NewHTTPError(http.StatusUnauthorized, "unauthorized", message, nil)
}

func Forbidden(message string) *HTTPError {
	return NewHTTPError(http.StatusForbidden, "forbidden", message, nil)
}

func MethodNotAllowed(message string) *HTTPError {
	return NewHTTPError(http.StatusMethodNotAllowed, "method_not_allowed", message, nil)
}

func Internal(err error) *HTTPError {
	return NewHTTPError(http.StatusInternalServerError, "internal_error", "", err)
}

// AsHTTPError converts any error into an *HTTPError. Errors that are not
// already HTTP errors become 500s, except context errors which map to 503
// and 504.
func AsHTTPError(err error) *HTTPError {
	var he *HTTPError
	if errors.As(err, &he) {
		return he
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewHTTPError(http.StatusGatewayTimeout, "timeout", "", err)
	case errors.Is(err, context.Canceled):
		return NewHTTPError(http.StatusServiceUnavailable, "canceled", "", err)
	}
	return Internal(err)
}

// StatusOf returns the response status err maps to.
func StatusOf(err error) int {
	return AsHTTPError(err).Status
}
