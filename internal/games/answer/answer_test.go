package answer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Apple", "apple"},
		{"  big   Apple ", "big apple"},
		{"Crème Brûlée", "creme brulee"},
		{"STRASSE", "strasse"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal("Éclair", "eclair"))
	assert.False(t, Equal("cat", "cats"))
}
