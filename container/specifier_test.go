package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpecifier(t *testing.T) {
	tests := []struct {
		in      string
		want    Specifier
		wantErr bool
	}{
		{in: "action:users/show", want: Specifier{Type: TypeAction, Path: "users/show"}},
		{in: "orm-adapter:memory", want: Specifier{Type: TypeORMAdapter, Path: "memory"}},
		{in: "custom:thing", want: Specifier{Type: "custom", Path: "thing"}},
		{in: "config:db:replica", want: Specifier{Type: TypeConfig, Path: "db:replica"}},
		{in: "service:", wantErr: true},
		{in: "service:undefined", wantErr: true},
		{in: ":path", wantErr: true},
		{in: "nocolon", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSpecifier(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSpecifier)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestMustParsePanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() { MustParse("action:undefined") })
	assert.NotPanics(t, func() { MustParse("action:ok") })
}
