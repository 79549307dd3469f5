package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	tests := []struct {
		name     string
		fields   []string
		expected string
	}{
		{
			name:     "home visiting wins over maternal health by rule order",
			fields:   []string{"MIECHV maternal and infant home visiting program"},
			expected: "Home Visiting",
		},
		{
			name:     "maternal health without home visiting keywords",
			fields:   []string{"Title V Maternal and Child Health Services Block Grant"},
			expected: "Maternal & Child Health",
		},
		{
			name:     "case insensitive",
			fields:   []string{"STATEWIDE WORKFORCE INVESTMENT"},
			expected: "Workforce Development",
		},
		{
			name:     "match across concatenated fields",
			fields:   []string{"FY24 formula award", "Department of Transportation", "City of Des Moines"},
			expected: "Transportation",
		},
		{
			name:     "regex pattern with optional group",
			fields:   []string{"substance use disorder treatment expansion"},
			expected: "Behavioral Health",
		},
		{
			name:     "no match falls through to default",
			fields:   []string{"miscellaneous administrative support"},
			expected: DefaultVertical,
		},
		{
			name:     "empty input",
			fields:   []string{"", "  "},
			expected: DefaultVertical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, c.Classify(tt.fields...))
		})
	}
}

func TestNewFromRulesRejectsBadPattern(t *testing.T) {
	_, err := NewFromRules([]Rule{
		{Vertical: "Broken", Patterns: []string{"("}},
	})
	assert.Error(t, err)
}

func TestNewFromRulesRejectsMissingVertical(t *testing.T) {
	_, err := NewFromRules([]Rule{
		{Patterns: []string{"anything"}},
	})
	assert.Error(t, err)
}

func TestVerticalsOrder(t *testing.T) {
	c, err := NewFromRules([]Rule{
		{Vertical: "B", Patterns: []string{"b"}},
		{Vertical: "A", Patterns: []string{"a"}},
		{Vertical: "B", Patterns: []string{"bb"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "A", DefaultVertical}, c.Verticals())
}

func TestEmbeddedRulesIncludeDefault(t *testing.T) {
	c, err := New()
	require.NoError(t, err)

	verticals := c.Verticals()
	require.NotEmpty(t, verticals)
	assert.Equal(t, DefaultVertical, verticals[len(verticals)-1])
	assert.Contains(t, verticals, "Home Visiting")
}
