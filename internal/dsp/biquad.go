// Package dsp holds the small filter and delay primitives behind the
// built-in filter and delay nodes.
package dsp

import "math"

const defaultQ = 1 / math.Sqrt2

// Coefficients of one second-order section with a0 normalized to 1.
//
// The sign convention follows Direct Form II Transposed:
//
//	y  = B0*x + d0
//	d0 = B1*x - A1*y + d1
//	d1 = B2*x - A2*y
type Coefficients struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// Biquad is a single DF2T section. The zero value passes nothing through;
// set Coefficients before use.
type Biquad struct {
	Coefficients

	d0, d1 float64
}

// Step filters one sample.
func (s *Biquad) Step(x float64) float64 {
	y := s.B0*x + s.d0
	s.d0 = s.B1*x - s.A1*y + s.d1
	s.d1 = s.B2*x - s.A2*y

	return y
}

// ProcessTo filters src into dst. dst must be at least as long as src.
func (s *Biquad) ProcessTo(dst, src []float64) {
	if len(src) == 0 {
		return
	}

	_ = dst[len(src)-1]

	b0, b1, b2 := s.B0, s.B1, s.B2
	a1, a2 := s.A1, s.A2
	d0, d1 := s.d0, s.d1

	for i, x := range src {
		y := b0*x + d0
		d0 = b1*x - a1*y + d1
		d1 = b2*x - a2*y
		dst[i] = y
	}

	s.d0, s.d1 = d0, d1
}

// Reset clears the section state.
func (s *Biquad) Reset() {
	s.d0, s.d1 = 0, 0
}

// Sanitize clears the state when it has gone non-finite, so a single bad
// coefficient set does not latch the filter into NaN.
func (s *Biquad) Sanitize() {
	if math.IsNaN(s.d0) || math.IsInf(s.d0, 0) || math.IsNaN(s.d1) || math.IsInf(s.d1, 0) {
		s.Reset()
	}
}

// Response is an RBJ cookbook filter shape.
type Response uint8

const (
	Lowpass Response = iota
	Highpass
	Bandpass
	Notch
	Allpass
)

// Design returns RBJ coefficients for freq (Hz) and quality q. A
// frequency outside (0, Nyquist) yields zero coefficients; a non-positive q
// falls back to 1/sqrt(2).
func Design(r Response, freq, q, sampleRate float64) Coefficients {
	w0, ok := normalizedW0(freq, sampleRate)
	if !ok {
		return Coefficients{}
	}

	if q <= 0 || math.IsNaN(q) || math.IsInf(q, 0) {
		q = defaultQ
	}

	cw, sw := math.Cos(w0), math.Sin(w0)
	alpha := sw / (2 * q)

	a0, a1, a2 := 1+alpha, -2*cw, 1-alpha

	var b0, b1, b2 float64

	switch r {
	case Lowpass:
		b0, b1, b2 = (1-cw)/2, 1-cw, (1-cw)/2
	case Highpass:
		b0, b1, b2 = (1+cw)/2, -(1 + cw), (1+cw)/2
	case Bandpass:
		b0, b1, b2 = sw/2, 0, -sw/2
	case Notch:
		b0, b1, b2 = 1, -2*cw, 1
	case Allpass:
		b0, b1, b2 = 1-alpha, -2*cw, 1+alpha
	default:
		return Coefficients{}
	}

	return Coefficients{B0: b0 / a0, B1: b1 / a0, B2: b2 / a0, A1: a1 / a0, A2: a2 / a0}
}

func normalizedW0(freq, sampleRate float64) (float64, bool) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		return 0, false
	}

	if freq <= 0 || freq >= sampleRate/2 || math.IsNaN(freq) || math.IsInf(freq, 0) {
		return 0, false
	}

	return 2 * math.Pi * freq / sampleRate, true
}
