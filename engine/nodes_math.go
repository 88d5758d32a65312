package engine

import (
	"math"

	"github.com/cwbudde/algo-vecmath"
)

type naryOp uint8

const (
	opAdd naryOp = iota
	opSub
	opMul
	opDiv
)

// naryNode folds its inputs left to right: in0 op in1 op in2 ...
// With no inputs it outputs silence; with one input it passes it through.
type naryNode struct {
	op naryOp
}

func (naryNode) Configure(Env, Props) (Settings, error) { return Mono{}, nil }

func (n naryNode) Process(bc *BlockContext, _ Settings) {
	out := bc.Outputs[0]
	if len(bc.Inputs) == 0 {
		return
	}

	if n.op == opMul && len(bc.Inputs) >= 2 {
		vecmath.MulBlock(out, bc.Inputs[0], bc.Inputs[1])

		for _, in := range bc.Inputs[2:] {
			vecmath.MulBlockInPlace(out, in)
		}

		return
	}

	copy(out, bc.Inputs[0])

	for _, in := range bc.Inputs[1:] {
		switch n.op {
		case opAdd:
			for i, v := range in {
				out[i] += v
			}
		case opSub:
			for i, v := range in {
				out[i] -= v
			}
		case opDiv:
			for i, v := range in {
				out[i] /= v
			}
		case opMul:
			for i, v := range in {
				out[i] *= v
			}
		}
	}
}

type unaryFn uint8

const (
	fnSin unaryFn = iota
	fnCos
	fnTanh
)

type unaryNode struct {
	fn unaryFn
}

func (unaryNode) Configure(Env, Props) (Settings, error) { return Mono{}, nil }

func (u unaryNode) Process(bc *BlockContext, _ Settings) {
	if len(bc.Inputs) == 0 {
		return
	}

	out := bc.Outputs[0]
	in := bc.Inputs[0]

	switch u.fn {
	case fnSin:
		for i, v := range in {
			out[i] = math.Sin(v)
		}
	case fnCos:
		for i, v := range in {
			out[i] = math.Cos(v)
		}
	case fnTanh:
		for i, v := range in {
			out[i] = math.Tanh(v)
		}
	}
}

// compareNode outputs 1 where in0 <= in1 (le) or in0 >= in1 (ge), else 0.
type compareNode struct {
	less bool
}

func (compareNode) Configure(Env, Props) (Settings, error) { return Mono{}, nil }

func (c compareNode) Process(bc *BlockContext, _ Settings) {
	if len(bc.Inputs) < 2 {
		return
	}

	out := bc.Outputs[0]
	a, b := bc.Inputs[0], bc.Inputs[1]

	for i := range out {
		hit := a[i] >= b[i]
		if c.less {
			hit = a[i] <= b[i]
		}

		if hit {
			out[i] = 1
		}
	}
}

// phasorNode emits a ramp from 0 to 1 at the frequency given by child 0.
// The phase is audio-side state.
type phasorNode struct {
	phase float64
}

func (*phasorNode) Configure(Env, Props) (Settings, error) { return Mono{}, nil }

func (p *phasorNode) Process(bc *BlockContext, _ Settings) {
	if len(bc.Inputs) == 0 {
		return
	}

	out := bc.Outputs[0]
	inc := 1 / bc.SampleRate

	for i, freq := range bc.Inputs[0] {
		out[i] = p.phase

		p.phase += freq * inc
		p.phase -= math.Floor(p.phase)
	}
}
