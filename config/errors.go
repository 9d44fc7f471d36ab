package config

import "errors"

var (
	ErrUnsupportedFormat         = errors.New("unsupported config file format")
	ErrConfigFeed                = errors.New("config feeder error")
	ErrConfigValidationFailed    = errors.New("config validation failed")
	ErrConfigNotPointer          = errors.New("config must be a non-nil pointer to a struct")
	ErrUnsupportedTypeForDefault = errors.New("unsupported type for default value")
	ErrDefaultValueParse         = errors.New("failed to parse default value")
)
