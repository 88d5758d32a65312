package dsp

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/cwbudde/algo-elem/internal/testutil"
)

const sr = 48000.0

func magnitude(c Coefficients, freq float64) float64 {
	z := cmplx.Exp(complex(0, -2*math.Pi*freq/sr))
	num := complex(c.B0, 0) + complex(c.B1, 0)*z + complex(c.B2, 0)*z*z
	den := 1 + complex(c.A1, 0)*z + complex(c.A2, 0)*z*z

	return cmplx.Abs(num / den)
}

func TestDesignResponses(t *testing.T) {
	t.Parallel()

	const fc = 1000.0

	tests := []struct {
		name string
		r    Response
		freq float64
		want float64
	}{
		{"lowpass dc", Lowpass, 0, 1},
		{"lowpass cutoff", Lowpass, fc, 1 / math.Sqrt2},
		{"highpass dc", Highpass, 0, 0},
		{"highpass nyquist", Highpass, sr / 2, 1},
		{"bandpass center", Bandpass, fc, 1},
		{"notch center", Notch, fc, 0},
		{"notch dc", Notch, 0, 1},
		{"allpass", Allpass, 3000, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Bandpass uses constant skirt gain, so with q = 1 its peak is 1.
			q := 0.0
			if tt.r == Bandpass {
				q = 1
			}

			got := magnitude(Design(tt.r, fc, q, sr), tt.freq)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("|H(%v)| = %v, want %v", tt.freq, got, tt.want)
			}
		})
	}
}

func TestDesignRejectsBadFrequency(t *testing.T) {
	t.Parallel()

	for _, f := range []float64{0, -1, sr / 2, sr, math.NaN(), math.Inf(1)} {
		if c := Design(Lowpass, f, 1, sr); c != (Coefficients{}) {
			t.Errorf("Design(%v) = %+v, want zero", f, c)
		}
	}

	if c := Design(Response(99), 1000, 1, sr); c != (Coefficients{}) {
		t.Errorf("unknown response = %+v", c)
	}
}

func TestBiquadStepMatchesProcessTo(t *testing.T) {
	t.Parallel()

	c := Design(Lowpass, 2000, 0.9, sr)
	in := make([]float64, 64)
	in[0] = 1

	a := Biquad{Coefficients: c}
	b := Biquad{Coefficients: c}

	want := make([]float64, len(in))
	for i, x := range in {
		want[i] = a.Step(x)
	}

	got := make([]float64, len(in))
	b.ProcessTo(got, in)

	testutil.RequireSliceNearlyEqual(t, got, want, 0)

	b.Reset()
	b.ProcessTo(got, in)
	testutil.RequireSliceNearlyEqual(t, got, want, 0)
}

func TestBiquadSanitize(t *testing.T) {
	t.Parallel()

	s := Biquad{Coefficients: Coefficients{B0: 1, B1: math.Inf(1)}}
	s.Step(1)
	s.Sanitize()

	s.Coefficients = Coefficients{B0: 1}
	if y := s.Step(0.5); y != 0.5 {
		t.Fatalf("Step after Sanitize = %v", y)
	}
}

func TestLine(t *testing.T) {
	t.Parallel()

	d := NewLine(8)
	for i := 1; i <= 8; i++ {
		d.Write(float64(i))
	}

	if d.Read(1) != 8 || d.Read(8) != 1 || d.Read(0) != 8 || d.Read(99) != 1 {
		t.Fatalf("Read = %v %v %v %v", d.Read(1), d.Read(8), d.Read(0), d.Read(99))
	}

	// Hermite interpolation is exact on a ramp.
	if got := d.ReadFractional(2.5); math.Abs(got-6.5) > 1e-12 {
		t.Fatalf("ReadFractional(2.5) = %v", got)
	}

	if got := d.ReadFractional(3); got != d.Read(3) {
		t.Fatalf("ReadFractional(3) = %v, want %v", got, d.Read(3))
	}

	d.Reset()

	if d.Read(1) != 0 || NewLine(1).Len() != 4 {
		t.Fatal("Reset or minimum size")
	}
}
