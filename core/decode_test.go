package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVector(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []float32
		wantErr bool
	}{
		{"array", `[1, 2.5, -3]`, []float32{1, 2.5, -3}, false},
		{"string", `"[1,2.5,-3]"`, []float32{1, 2.5, -3}, false},
		{"string with spaces", `" [0.5, 0.25] "`, []float32{0.5, 0.25}, false},
		{"empty array", `[]`, []float32{}, false},
		{"null", `null`, nil, true},
		{"missing", ``, nil, true},
		{"number", `42`, nil, true},
		{"non-numeric component", `["a", 1]`, nil, true},
		{"null component", `[1, null, 3]`, nil, true},
		{"null component in string", `"[1, null, 3]"`, nil, true},
		{"garbage string", `"not a vector"`, nil, true},
		{"float32 overflow", `[1e40]`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVector([]byte(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedVector)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    ID
		wantErr bool
	}{
		{"positive", `42`, 42, false},
		{"zero", `0`, 0, false},
		{"negative", ` -7 `, -7, false},
		{"null", `null`, 0, true},
		{"missing", ``, 0, true},
		{"string", `"42"`, 0, true},
		{"fraction", `1.5`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseID([]byte(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
