// Package testutil holds assertions and block builders shared by package
// tests.
package testutil

import (
	"math"
	"testing"
)

// RequireSliceNearlyEqual fails t if got and want differ in length or if
// any element pair exceeds eps (absolute tolerance).
func RequireSliceNearlyEqual(t testing.TB, got, want []float64, eps float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		diff := math.Abs(got[i] - want[i])
		if diff > eps {
			t.Fatalf("index %d: got %v, want %v (diff %v > eps %v)", i, got[i], want[i], diff, eps)
		}
	}
}

// RequireFinite fails t if any sample of any channel is NaN or Inf.
func RequireFinite(t testing.TB, block [][]float64) {
	t.Helper()

	for c, ch := range block {
		for i, v := range ch {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("channel %d index %d: non-finite value %v", c, i, v)
			}
		}
	}
}

// RequireSilent fails t unless every sample of every channel is exactly 0.
func RequireSilent(t testing.TB, block [][]float64) {
	t.Helper()

	for c, ch := range block {
		for i, v := range ch {
			if v != 0 {
				t.Fatalf("channel %d index %d: got %v, want silence", c, i, v)
			}
		}
	}
}
