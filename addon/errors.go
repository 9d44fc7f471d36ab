package addon

import "errors"

var (
	ErrNoManifest      = errors.New("no addon manifest found")
	ErrInvalidManifest = errors.New("invalid addon manifest")
	ErrDuplicateAddon  = errors.New("duplicate addon")
)
