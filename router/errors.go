package router

import "errors"

var (
	ErrInvalidPattern = errors.New("invalid route pattern")
	ErrInvalidMethod  = errors.New("invalid route method")
	ErrActionNotFound = errors.New("route action not found")
	ErrNotAnAction    = errors.New("resolved value is not an action")
	ErrPanic          = errors.New("panic while handling request")
)
