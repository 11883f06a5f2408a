package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func f(v float64) *float64 { return &v }

func TestSummarize(t *testing.T) {
	tests := []struct {
		name string
		data []*float64
		want Summary
	}{
		{"empty", nil, Summary{}},
		{"only nils", []*float64{nil, nil}, Summary{}},
		{"single", []*float64{f(0.8)}, Summary{Count: 1, Mean: 0.8, Min: 0.8, Max: 0.8}},
		{
			"several with nil",
			[]*float64{f(2), nil, f(4), f(4), f(4), f(5), f(5), f(7), f(9)},
			Summary{Count: 8, Mean: 5, StdDev: 2.1381, Min: 2, Max: 9},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summarize(tt.data))
		})
	}
}

func TestRoundFloat(t *testing.T) {
	assert.Equal(t, 0.9235, RoundFloat(0.923456, 4))
	assert.Equal(t, 1.0, RoundFloat(0.99999, 2))
}
