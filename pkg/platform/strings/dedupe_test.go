package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "nil slice",
			input:    nil,
			expected: nil,
		},
		{
			name:     "empty slice",
			input:    []string{},
			expected: []string{},
		},
		{
			name:     "trims whitespace",
			input:    []string{"  1001 ", "1002"},
			expected: []string{"1001", "1002"},
		},
		{
			name:     "removes duplicates preserving order",
			input:    []string{"7", "3", "7", "1"},
			expected: []string{"7", "3", "1"},
		},
		{
			name:     "removes empty strings",
			input:    []string{"", "5", "   "},
			expected: []string{"5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Nil(t, SplitList("   "))
	assert.Equal(t, []string{"1", "2"}, SplitList("1, 2,,2 "))
}
