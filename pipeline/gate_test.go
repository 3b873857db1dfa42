package pipeline

import (
	"testing"

	"github.com/khaledhikmat/vs-belt/service/inference"
	"github.com/stretchr/testify/require"
)

func TestGateFires(t *testing.T) {
	gate := Gate{Label: "high", Threshold: 98}

	tests := []struct {
		label      string
		confidence float64
		want       bool
	}{
		{"high", 98, true},
		{"high", 99.9, true},
		{"high", 97.9, false},
		{"low", 100, false},
		{"High", 100, false},
		{"high ", 100, false},
	}

	for _, tt := range tests {
		got := gate.Fires(inference.Result{Label: tt.label, Confidence: tt.confidence})
		require.Equal(t, tt.want, got, "%q @ %v", tt.label, tt.confidence)
	}
}
