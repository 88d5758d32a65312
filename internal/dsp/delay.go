package dsp

import "math"

// Line is a circular delay line.
type Line struct {
	buf []float64
	pos int
}

// NewLine returns a line holding size samples. Sizes below 4 are raised to
// 4 so that fractional reads always have their neighbours.
func NewLine(size int) *Line {
	return &Line{buf: make([]float64, max(size, 4))}
}

// Len returns the buffer size.
func (d *Line) Len() int { return len(d.buf) }

// Write appends one sample.
func (d *Line) Write(x float64) {
	d.buf[d.pos] = x

	d.pos++
	if d.pos == len(d.buf) {
		d.pos = 0
	}
}

// Read returns the sample written delay writes ago, for delay in [1, Len].
// Read(1) is the most recent sample.
func (d *Line) Read(delay int) float64 {
	n := len(d.buf)
	delay = min(max(delay, 1), n)

	return d.buf[(d.pos-delay+n)%n]
}

// ReadFractional reads with cubic Hermite interpolation. delay is clamped to
// [1, Len-2].
func (d *Line) ReadFractional(delay float64) float64 {
	if math.IsNaN(delay) {
		delay = 1
	}

	delay = min(max(delay, 1), float64(len(d.buf)-2))

	p := int(delay)
	t := delay - float64(p)

	return hermite4(t, d.Read(max(p-1, 1)), d.Read(p), d.Read(p+1), d.Read(p+2))
}

// Reset zeroes the line.
func (d *Line) Reset() {
	clear(d.buf)
	d.pos = 0
}

// hermite4 interpolates between x0 and x1 at t in [0, 1).
func hermite4(t, xm1, x0, x1, x2 float64) float64 {
	c0 := x0
	c1 := 0.5 * (x1 - xm1)
	c2 := xm1 - 2.5*x0 + 2*x1 - 0.5*x2
	c3 := 0.5*(x2-xm1) + 1.5*(x0-x1)

	return ((c3*t+c2)*t+c1)*t + c0
}
