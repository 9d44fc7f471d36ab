package serializer

import (
	"context"
	"strconv"

	"github.com/GoCodeAlone/keel/action"
)

// ErrorObject is one entry of an error document.
type ErrorObject struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// ErrorDocument is the body rendered for every failed request.
type ErrorDocument struct {
	Errors []ErrorObject `json:"errors"`
}

// Error renders errors as an ErrorDocument.
type Error struct{}

func (Error) ContentType() string { return jsonContentType }

func (Error) Serialize(_ context.Context, payload any, opts action.SerializeOptions) ([]byte, error) {
	err, ok := payload.(error)
	if !ok {
		err = action.Internal(nil)
	}
	he := action.AsHTTPError(err)

	status := he.Status
	if opts.Status != 0 {
		status = opts.Status
	}
	obj := ErrorObject{
		Status: strconv.Itoa(status),
		Code:   he.Code,
		Title:  he.Title(),
		Detail: he.Message,
	}
	if obj.Detail == "" && he.Err != nil {
		obj.Detail = he.Err.Error()
	}
	if opts.Request != nil {
		obj.ID = opts.Request.ID
	}
	return json.Marshal(ErrorDocument{Errors: []ErrorObject{obj}})
}
