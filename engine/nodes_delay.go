package engine

import (
	"fmt"

	"github.com/cwbudde/algo-elem/internal/dsp"
)

// maxDelaySeconds bounds the line a delay node may allocate.
const maxDelaySeconds = 60

// zNode delays child 0 by one sample.
type zNode struct {
	prev float64
}

func (*zNode) Configure(Env, Props) (Settings, error) { return Mono{}, nil }

func (n *zNode) Process(bc *BlockContext, _ Settings) {
	if len(bc.Inputs) == 0 {
		return
	}

	x, out := bc.Inputs[0], bc.Outputs[0]

	for i := range out {
		out[i] = n.prev
		n.prev = x[i]
	}
}

type delaySettings struct {
	Mono
	size int
	line *dsp.Line
}

// delaySize reads the "size" prop in samples, default 1. Each configuration
// gets a fresh line, so changing the size clears the delay.
func delaySize(env Env, props Props) (int, error) {
	size, err := props.Index("size", 1)
	if err != nil {
		return 0, err
	}

	limit := int(maxDelaySeconds * env.SampleRate)
	if size < 1 || size > limit {
		return 0, fmt.Errorf("%w: delay size %d must be in [1, %d]", InvalidPropertyValue, size, limit)
	}

	return size, nil
}

// sdelayNode delays child 0 by a fixed "size" samples.
type sdelayNode struct{}

func (sdelayNode) Configure(env Env, props Props) (Settings, error) {
	size, err := delaySize(env, props)
	if err != nil {
		return nil, err
	}

	return delaySettings{size: size, line: dsp.NewLine(size)}, nil
}

func (sdelayNode) Process(bc *BlockContext, s Settings) {
	if len(bc.Inputs) == 0 {
		return
	}

	st := s.(delaySettings)
	x, out := bc.Inputs[0], bc.Outputs[0]

	for i := range out {
		out[i] = st.line.Read(st.size)
		st.line.Write(x[i])
	}
}

// delayNode is a variable feedback delay. Children are the delay length in
// samples, the feedback gain and the input; "size" is the longest delay.
type delayNode struct{}

func (delayNode) Configure(env Env, props Props) (Settings, error) {
	size, err := delaySize(env, props)
	if err != nil {
		return nil, err
	}

	return delaySettings{size: size, line: dsp.NewLine(size + 3)}, nil
}

func (delayNode) Process(bc *BlockContext, s Settings) {
	if len(bc.Inputs) < 3 {
		return
	}

	st := s.(delaySettings)
	length, fb, x := bc.Inputs[0], bc.Inputs[1], bc.Inputs[2]
	out := bc.Outputs[0]

	for i := range out {
		y := st.line.ReadFractional(min(length[i], float64(st.size)))
		st.line.Write(x[i] + fb[i]*y)
		out[i] = y
	}
}
