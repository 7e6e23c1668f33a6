package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"empty", "", ""},
		{"plain", "Alice", "Alice"},
		{"trims and collapses", "  Alice \t  Liddell \n", "Alice Liddell"},
		{"strips tags", "<b>Alice</b>", "Alice"},
		{"drops script", `<script>alert("x")</script>Bob`, "Bob"},
		{"keeps ampersand", "Tom & Jerry", "Tom & Jerry"},
		{"drops control chars", "Al\x1bice\x07", "Alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.in))
		})
	}
}
