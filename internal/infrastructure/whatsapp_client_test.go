package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDigitsOnly(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"+34 600 123 456", "34600123456"},
		{"(54) 11-5555-0000", "541155550000"},
		{"", ""},
		{"abc", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DigitsOnly(tt.in), tt.in)
	}
}
