// Package serializer provides the built-in response serializers: JSON for
// application payloads, a JSON error document for failures and a raw
// pass-through.
package serializer

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/GoCodeAlone/keel/action"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const jsonContentType = "application/json; charset=utf-8"

// JSON serializes payloads as JSON. With a Root, outgoing payloads are
// wrapped as {"<root>": payload} and incoming bodies are unwrapped the same
// way.
type JSON struct {
	Root   string
	Indent bool
}

func (s *JSON) ContentType() string { return jsonContentType }

func (s *JSON) Serialize(_ context.Context, payload any, _ action.SerializeOptions) ([]byte, error) {
	if s.Root != "" {
		payload = map[string]any{s.Root: payload}
	}
	if s.Indent {
		return json.MarshalIndent(payload, "", "  ")
	}
	return json.Marshal(payload)
}

// ParsePayload unwraps the root key when one is configured.
func (s *JSON) ParsePayload(_ context.Context, body any) (any, error) {
	if s.Root == "" {
		return body, nil
	}
	m, ok := body.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object with key %q, got %T", s.Root, body)
	}
	inner, ok := m[s.Root]
	if !ok {
		return nil, fmt.Errorf("missing root key %q", s.Root)
	}
	return inner, nil
}
