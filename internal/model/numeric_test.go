package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAsDecimal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want string
		ok   bool
	}{
		{"nil", nil, "0", false},
		{"float", 1500.25, "1500.25", true},
		{"int", 42, "42", true},
		{"int64", int64(-7), "-7", true},
		{"uint64", uint64(9), "9", true},
		{"json number", json.Number("12.5"), "12.5", true},
		{"decimal", decimal.RequireFromString("3.14"), "3.14", true},
		{"currency string", "$1,500", "1500", true},
		{"percent string", "12.5%", "12.5", true},
		{"accounting negative", "(250)", "-250", true},
		{"empty string", "  ", "0", false},
		{"text", "n/a", "0", false},
		{"bool", true, "0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := AsDecimal(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
			}
		})
	}
}

func TestIsNumeric(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNumeric(0))
	assert.True(t, IsNumeric(0.0))
	assert.True(t, IsNumeric(json.Number("1")))
	assert.False(t, IsNumeric("0"))
	assert.False(t, IsNumeric(nil))
}
