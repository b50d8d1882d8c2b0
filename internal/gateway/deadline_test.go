// ABOUTME: Tests for per-request deadline resolution
// ABOUTME: Covers clamping, defaults, and fractional-second requests

package gateway

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveDeadline(t *testing.T) {
	ceiling := 30 * time.Second

	tests := []struct {
		name      string
		requested float64
		want      time.Duration
	}{
		{"zero uses ceiling", 0, ceiling},
		{"negative uses ceiling", -5, ceiling},
		{"shorter than ceiling honored", 10, 10 * time.Second},
		{"equal to ceiling honored", 30, 30 * time.Second},
		{"longer than ceiling clamped", 300, ceiling},
		{"fractional seconds", 0.5, 500 * time.Millisecond},
		{"absurd value clamped without overflow", 1e10, ceiling},
		{"max float clamped", math.MaxFloat64, ceiling},
		{"NaN uses ceiling", math.NaN(), ceiling},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveDeadline(tt.requested, ceiling))
		})
	}
}
