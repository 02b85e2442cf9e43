package result

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSymbol(t *testing.T) {
	tests := []struct {
		v    Verdict
		want string
	}{
		{Succeeded, "✓"},
		{Failed, "✕"},
		{Unsupported, "?"},
		{Verdict("garbage"), " "},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.v.Symbol())
	}
}

func TestValid(t *testing.T) {
	for _, v := range []Verdict{Succeeded, Failed, Unsupported} {
		assert.True(t, v.Valid(), "expected %q to be valid", v)
	}
	assert.False(t, Verdict("bogus").Valid())
}

func TestString(t *testing.T) {
	assert.Equal(t, "succeeded", Succeeded.String())
}
