package keel

import (
	"errors"
)

// Application errors
var (
	// Boot errors
	ErrAlreadyBooted    = errors.New("application already booted")
	ErrNotBooted        = errors.New("application not booted")
	ErrNilConfig        = errors.New("config is nil")
	ErrNilAddon         = errors.New("addon is nil")
	ErrDiscoveryFailed  = errors.New("addon discovery failed")
	ErrRouteMapping     = errors.New("route mapping failed")
	ErrNotAnInitializer = errors.New("value is not an initializer")
	ErrInitializerFail  = errors.New("initializer failed")

	// Observer errors
	ErrNilObserver  = errors.New("observer is nil")
	ErrInvalidEvent = errors.New("invalid cloud event")

	// Server errors
	ErrServerStopped = errors.New("server stopped unexpectedly")
)
