package db_test

import (
	"strings"
	"testing"

	"clawfeed/db"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple name",
			input:    "Kevin He",
			expected: "kevin-he",
		},
		{
			name:     "email local part",
			input:    "kevin.he+feeds",
			expected: "kevin-he-feeds",
		},
		{
			name:     "leading and trailing separators trimmed",
			input:    "--AI Starter Pack!!",
			expected: "ai-starter-pack",
		},
		{
			name:     "non ascii collapses",
			input:    "日报 digest",
			expected: "digest",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "long input capped at fifty",
			input:    strings.Repeat("ab ", 40),
			expected: "ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, db.Slugify(tt.input))
		})
	}
}
