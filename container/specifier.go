package container

import (
	"fmt"
	"strings"
)

// Type is the category half of a specifier.
type Type string

// Well-known types. Any other non-empty type is accepted and resolved with
// the default strategy.
const (
	TypeAction      Type = "action"
	TypeApp         Type = "app"
	TypeConfig      Type = "config"
	TypeInitializer Type = "initializer"
	TypeSerializer  Type = "serializer"
	TypeParser      Type = "parser"
	TypeService     Type = "service"
	TypeModel       Type = "model"
	TypeORMAdapter  Type = "orm-adapter"
)

// Specifier addresses one entry in a container. Its external form is
// "type:path", e.g. "action:users/show".
type Specifier struct {
	Type Type
	Path string
}

// NewSpecifier validates type and path and returns the specifier.
func NewSpecifier(t Type, path string) (Specifier, error) {
	if t == "" {
		return Specifier{}, fmt.Errorf("%w: empty type in %q", ErrInvalidSpecifier, string(t)+":"+path)
	}
	if strings.ContainsRune(string(t), ':') {
		return Specifier{}, fmt.Errorf("%w: type %q contains a colon", ErrInvalidSpecifier, t)
	}
	if path == "" || path == "undefined" {
		return Specifier{}, fmt.Errorf("%w: missing path in %q", ErrInvalidSpecifier, string(t)+":"+path)
	}
	return Specifier{Type: t, Path: path}, nil
}

// ParseSpecifier parses the "type:path" form.
func ParseSpecifier(s string) (Specifier, error) {
	t, path, ok := strings.Cut(s, ":")
	if !ok {
		return Specifier{}, fmt.Errorf("%w: %q has no type prefix", ErrInvalidSpecifier, s)
	}
	return NewSpecifier(Type(t), path)
}

// MustParse is ParseSpecifier for static specifiers; it panics on error.
func MustParse(s string) Specifier {
	spec, err := ParseSpecifier(s)
	if err != nil {
		panic(err)
	}
	return spec
}

func (s Specifier) String() string {
	return string(s.Type) + ":" + s.Path
}

// IsZero reports whether s is the zero specifier.
func (s Specifier) IsZero() bool {
	return s.Type == "" && s.Path == ""
}
