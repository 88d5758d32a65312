package engine

import (
	"math"

	"github.com/cwbudde/algo-elem/internal/dsp"
)

// biquadNode is a DF2T section whose coefficients are signals: children are
// b0, b1, b2, a1, a2 and the input, with a0 normalized to 1.
type biquadNode struct {
	sec dsp.Biquad
}

func (*biquadNode) Configure(Env, Props) (Settings, error) { return Mono{}, nil }

func (n *biquadNode) Process(bc *BlockContext, _ Settings) {
	if len(bc.Inputs) < 6 {
		return
	}

	b0, b1, b2 := bc.Inputs[0], bc.Inputs[1], bc.Inputs[2]
	a1, a2, x := bc.Inputs[3], bc.Inputs[4], bc.Inputs[5]
	out := bc.Outputs[0]

	for i := range out {
		n.sec.Coefficients = dsp.Coefficients{B0: b0[i], B1: b1[i], B2: b2[i], A1: a1[i], A2: a2[i]}
		out[i] = n.sec.Step(x[i])
	}

	n.sec.Sanitize()
}

// rbjNode is a cookbook filter with children cutoff (Hz), q and the input.
// Coefficients are redesigned only when cutoff or q change.
type rbjNode struct {
	response dsp.Response
	sec      dsp.Biquad
	fc, q    float64
}

func newRBJFactory(r dsp.Response) Factory {
	return func(Env) (Node, error) {
		return &rbjNode{response: r, fc: math.NaN(), q: math.NaN()}, nil
	}
}

func (*rbjNode) Configure(Env, Props) (Settings, error) { return Mono{}, nil }

func (n *rbjNode) Process(bc *BlockContext, _ Settings) {
	if len(bc.Inputs) < 3 {
		return
	}

	fc, q, x := bc.Inputs[0], bc.Inputs[1], bc.Inputs[2]
	out := bc.Outputs[0]

	if len(out) == 0 {
		return
	}

	if steady(fc) && steady(q) {
		n.design(fc[0], q[0], bc.SampleRate)
		n.sec.ProcessTo(out, x)
	} else {
		for i := range out {
			n.design(fc[i], q[i], bc.SampleRate)
			out[i] = n.sec.Step(x[i])
		}
	}

	n.sec.Sanitize()
}

func (n *rbjNode) design(fc, q, sampleRate float64) {
	if fc != n.fc || q != n.q {
		n.fc, n.q = fc, q
		n.sec.Coefficients = dsp.Design(n.response, fc, q, sampleRate)
	}
}

// steady reports whether every sample of s equals the first.
func steady(s []float64) bool {
	for _, v := range s[1:] {
		if v != s[0] {
			return false
		}
	}

	return true
}
