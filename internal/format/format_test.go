package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutputFormatIsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format OutputFormat
		want   bool
	}{
		{TextFormat, true},
		{JSONFormat, true},
		{"invalid", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.format.IsValid())
		})
	}
}

func TestFormatOutput(t *testing.T) {
	t.Parallel()

	t.Run("text passes through", func(t *testing.T) {
		t.Parallel()
		got, err := FormatOutput("report body", TextFormat)
		assert.NoError(t, err)
		assert.Equal(t, "report body", got)
	})

	t.Run("json wraps the report", func(t *testing.T) {
		t.Parallel()
		got, err := FormatOutput("report body", JSONFormat)
		assert.NoError(t, err)
		assert.JSONEq(t, `{"report": "report body"}`, got)
	})

	t.Run("unknown format errors", func(t *testing.T) {
		t.Parallel()
		_, err := FormatOutput("report body", "yaml")
		assert.Error(t, err)
	})
}
