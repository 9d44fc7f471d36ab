package serializer

import (
	"context"
	"fmt"
	"io"

	"github.com/GoCodeAlone/keel/action"
)

// Raw writes []byte, string and io.Reader payloads unchanged.
type Raw struct {
	MediaType string
}

func (r Raw) ContentType() string {
	if r.MediaType == "" {
		return "application/octet-stream"
	}
	return r.MediaType
}

func (Raw) Serialize(_ context.Context, payload any, _ action.SerializeOptions) ([]byte, error) {
	switch p := payload.(type) {
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	case io.Reader:
		return io.ReadAll(p)
	case fmt.Stringer:
		return []byte(p.String()), nil
	}
	return nil, fmt.Errorf("raw serializer cannot write %T", payload)
}
