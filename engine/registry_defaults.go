package engine

import "github.com/cwbudde/algo-elem/internal/dsp"

// Built-in node kinds.
const (
	KindRoot   = "root"
	KindConst  = "const"
	KindIn     = "in"
	KindSR     = "sr"
	KindTime   = "time"
	KindAdd    = "add"
	KindSub    = "sub"
	KindMul    = "mul"
	KindDiv    = "div"
	KindSin    = "sin"
	KindCos    = "cos"
	KindTanh   = "tanh"
	KindLe     = "le"
	KindGe     = "ge"
	KindPhasor = "phasor"
	KindTable  = "table"
	KindSample = "sample"
	KindMeter  = "meter"
	KindFFT    = "fft"

	KindBiquad   = "biquad"
	KindLowpass  = "lowpass"
	KindHighpass = "highpass"
	KindBandpass = "bandpass"
	KindNotch    = "notch"
	KindAllpass  = "allpass"

	KindZ       = "z"
	KindSDelay  = "sdelay"
	KindDelay   = "delay"
	KindCapture = "capture"
)

// DefaultRegistry returns a registry with all built-in node kinds.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	registerBuiltins(r)

	return r
}

func stateless(n Node) Factory {
	return func(Env) (Node, error) { return n, nil }
}

func registerBuiltins(r *Registry) {
	r.MustRegister(KindRoot, stateless(rootNode{}))
	r.MustRegister(KindConst, stateless(constNode{}))
	r.MustRegister(KindIn, stateless(inNode{}))
	r.MustRegister(KindSR, stateless(srNode{}))
	r.MustRegister(KindTime, stateless(timeNode{}))

	r.MustRegister(KindAdd, stateless(naryNode{op: opAdd}))
	r.MustRegister(KindSub, stateless(naryNode{op: opSub}))
	r.MustRegister(KindMul, stateless(naryNode{op: opMul}))
	r.MustRegister(KindDiv, stateless(naryNode{op: opDiv}))

	r.MustRegister(KindSin, stateless(unaryNode{fn: fnSin}))
	r.MustRegister(KindCos, stateless(unaryNode{fn: fnCos}))
	r.MustRegister(KindTanh, stateless(unaryNode{fn: fnTanh}))

	r.MustRegister(KindLe, stateless(compareNode{less: true}))
	r.MustRegister(KindGe, stateless(compareNode{}))

	r.MustRegister(KindPhasor, func(Env) (Node, error) { return &phasorNode{}, nil })
	r.MustRegister(KindTable, stateless(tableNode{}))
	r.MustRegister(KindSample, newSampleNode)
	r.MustRegister(KindMeter, newMeterNode)
	r.MustRegister(KindFFT, newFFTNode)
	r.MustRegister(KindCapture, newCaptureNode)

	r.MustRegister(KindBiquad, func(Env) (Node, error) { return &biquadNode{}, nil })
	r.MustRegister(KindLowpass, newRBJFactory(dsp.Lowpass))
	r.MustRegister(KindHighpass, newRBJFactory(dsp.Highpass))
	r.MustRegister(KindBandpass, newRBJFactory(dsp.Bandpass))
	r.MustRegister(KindNotch, newRBJFactory(dsp.Notch))
	r.MustRegister(KindAllpass, newRBJFactory(dsp.Allpass))

	r.MustRegister(KindZ, func(Env) (Node, error) { return &zNode{}, nil })
	r.MustRegister(KindSDelay, stateless(sdelayNode{}))
	r.MustRegister(KindDelay, stateless(delayNode{}))
}
