package reconcile

import (
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/cwbudde/algo-elem/engine"
)

// Node is an immutable description of one graph node and its inputs. Its id
// is derived from the kind, the properties and the ids of its children, so
// structurally equal subtrees share one engine node. A "key" property
// replaces the property part of the identity: two keyed nodes of the same
// kind and key are the same node, and a property change becomes a
// SetProperty instead of a new node.
type Node struct {
	kind     string
	props    engine.Props
	children []*Node
	outlet   int
	id       int32
}

// Element builds a node of any registered kind.
func Element(kind string, props engine.Props, children ...*Node) *Node {
	n := &Node{kind: kind, props: props.Clone(), children: children}
	n.id = n.hash()

	return n
}

// ID returns the engine node id.
func (n *Node) ID() int32 { return n.id }

// Kind returns the node kind.
func (n *Node) Kind() string { return n.kind }

// Outlet returns a view of n that reads output channel ch when used as a
// child. The node identity is unchanged.
func (n *Node) Outlet(ch int) *Node {
	out := *n
	out.outlet = ch

	return &out
}

// WithKey returns a copy of n identified by kind and key only.
func (n *Node) WithKey(key string) *Node {
	props := n.props.Clone()
	props["key"] = key

	return Element(n.kind, props, n.children...)
}

func (n *Node) hash() int32 {
	d := xxhash.New()

	_, _ = d.WriteString(n.kind)

	if key, ok := n.props["key"].(string); ok && key != "" {
		_, _ = d.WriteString("\x00key\x00")
		_, _ = d.WriteString(key)
	} else {
		var buf []byte

		for _, k := range n.props.Keys() {
			buf = append(buf[:0], 0)
			buf = append(buf, k...)
			buf = append(buf, 0)
			buf = appendValue(buf, n.props[k])
			_, _ = d.Write(buf)
		}
	}

	var buf [24]byte

	for _, c := range n.children {
		_, _ = d.Write(strconv.AppendInt(append(buf[:0], 1), int64(c.id), 10))
		_, _ = d.Write(strconv.AppendInt(append(buf[:0], 2), int64(c.outlet), 10))
	}

	return int32(d.Sum64() & math.MaxInt32)
}

// appendValue writes a canonical form of v so that equal numbers of
// different Go types hash the same.
func appendValue(buf []byte, v any) []byte {
	switch t := v.(type) {
	case nil:
		return append(buf, 'z')
	case string:
		return append(append(buf, 's'), t...)
	case bool:
		return strconv.AppendBool(append(buf, 'b'), t)
	case []float64:
		buf = append(buf, 'l')
		for _, f := range t {
			buf = strconv.AppendFloat(append(buf, ','), f, 'g', -1, 64)
		}

		return buf
	case []any:
		buf = append(buf, 'l')
		for _, item := range t {
			buf = appendValue(append(buf, ','), item)
		}

		return buf
	}

	if f, ok := number(v); ok {
		return strconv.AppendFloat(append(buf, 'n'), f, 'g', -1, 64)
	}

	return append(buf, '?')
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

// Root routes x to host output channel 0.
func Root(x *Node) *Node {
	return RootOn(0, x)
}

// RootOn routes x to host output channel ch.
func RootOn(ch int, x *Node) *Node {
	return Element(engine.KindRoot, engine.Props{"channel": float64(ch)}, x)
}

// Const is a constant signal.
func Const(v float64) *Node {
	return Element(engine.KindConst, engine.Props{"value": v})
}

// In reads host input channel ch.
func In(ch int) *Node {
	return Element(engine.KindIn, engine.Props{"channel": float64(ch)})
}

// Phasor ramps from 0 to 1 at the frequency given by rate.
func Phasor(rate *Node) *Node {
	return Element(engine.KindPhasor, nil, rate)
}

func Sin(x *Node) *Node { return Element(engine.KindSin, nil, x) }

func Mul(xs ...*Node) *Node { return Element(engine.KindMul, nil, xs...) }

func Add(xs ...*Node) *Node { return Element(engine.KindAdd, nil, xs...) }

func Le(x, y *Node) *Node { return Element(engine.KindLe, nil, x, y) }

// Train is a pulse train at rate: 1 for the first half of every period.
func Train(rate *Node) *Node {
	return Le(Phasor(rate), Const(0.5))
}

// Cycle is a sine oscillator at freq.
func Cycle(freq *Node) *Node {
	return Sin(Mul(Const(2*math.Pi), Phasor(freq)))
}

// Sample plays the shared resource named path, triggered by the rising
// edges of trigger. Extra properties (mode, offsets, playbackRate) are taken
// from props.
func Sample(path string, props engine.Props, trigger *Node) *Node {
	p := props.Clone()
	p["path"] = path

	return Element(engine.KindSample, p, trigger)
}

// Table reads channel 0 of the shared resource named path at phase.
func Table(path string, phase *Node) *Node {
	return Element(engine.KindTable, engine.Props{"path": path}, phase)
}

// Meter passes x through and reports its range under name.
func Meter(name string, x *Node) *Node {
	return Element(engine.KindMeter, engine.Props{"name": name}, x)
}

// FFT passes x through and reports spectra of the given size under name.
func FFT(name string, size int, x *Node) *Node {
	return Element(engine.KindFFT, engine.Props{"name": name, "size": float64(size)}, x)
}

// Capture passes x through and records it while gate is high. Each
// recording is reported under name when the gate falls.
func Capture(name string, gate, x *Node) *Node {
	return Element(engine.KindCapture, engine.Props{"name": name}, gate, x)
}

// Biquad filters x with signal-rate coefficients; a0 is 1.
func Biquad(b0, b1, b2, a1, a2, x *Node) *Node {
	return Element(engine.KindBiquad, nil, b0, b1, b2, a1, a2, x)
}

// Lowpass is a second-order lowpass at cutoff fc (Hz) with quality q.
func Lowpass(fc, q, x *Node) *Node { return Element(engine.KindLowpass, nil, fc, q, x) }

// Highpass is a second-order highpass.
func Highpass(fc, q, x *Node) *Node { return Element(engine.KindHighpass, nil, fc, q, x) }

// Bandpass is a constant skirt gain bandpass centered on fc.
func Bandpass(fc, q, x *Node) *Node { return Element(engine.KindBandpass, nil, fc, q, x) }

// Notch rejects fc.
func Notch(fc, q, x *Node) *Node { return Element(engine.KindNotch, nil, fc, q, x) }

// Allpass shifts phase around fc.
func Allpass(fc, q, x *Node) *Node { return Element(engine.KindAllpass, nil, fc, q, x) }

// Z delays x by one sample.
func Z(x *Node) *Node { return Element(engine.KindZ, nil, x) }

// SDelay delays x by a fixed number of samples.
func SDelay(size int, x *Node) *Node {
	return Element(engine.KindSDelay, engine.Props{"size": float64(size)}, x)
}

// Delay is a feedback delay of up to size samples. length is the delay in
// samples and fb the feedback gain, both signals.
func Delay(size int, length, fb, x *Node) *Node {
	return Element(engine.KindDelay, engine.Props{"size": float64(size)}, length, fb, x)
}
