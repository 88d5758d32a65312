package engine

import (
	"fmt"
	"math"
)

const sampleFadeMs = 4.0

type sampleMode uint8

const (
	modeTrigger sampleMode = iota
	modeGate
	modeLoop
)

type sampleSettings struct {
	res         *Resource
	mode        sampleMode
	startOffset int
	stopOffset  int
	rate        float64
}

func (s sampleSettings) NumOutputs() int {
	if s.res == nil {
		return 1
	}

	return s.res.NumChannels
}

// sampleNode plays a shared resource, one output per resource channel. A
// rising edge on child 0 starts a voice; two voices alternate so that each
// new trigger crossfades against the previous one. In gate mode a falling
// edge releases the voice, in loop mode the voice wraps between the offsets.
type sampleNode struct {
	sampleRate float64

	// Audio-side state.
	active  *Resource
	readers [2]sampleReader
	voice   int
	prev    float64
}

func newSampleNode(env Env) (Node, error) {
	return &sampleNode{sampleRate: env.SampleRate}, nil
}

//nolint:cyclop
func (n *sampleNode) Configure(env Env, props Props) (Settings, error) {
	res, err := lookupPath(env, props)
	if err != nil {
		return nil, err
	}

	s := sampleSettings{res: res, rate: 1}

	mode, ok, err := optionalString(props, "mode")
	if err != nil {
		return nil, err
	}

	if ok {
		switch mode {
		case "trigger":
			s.mode = modeTrigger
		case "gate":
			s.mode = modeGate
		case "loop":
			s.mode = modeLoop
		default:
			return nil, fmt.Errorf("%w: unknown sample mode %q", InvalidPropertyValue, mode)
		}
	}

	if s.startOffset, err = props.Index("startOffset", 0); err != nil {
		return nil, err
	}

	if s.stopOffset, err = props.Index("stopOffset", 0); err != nil {
		return nil, err
	}

	if s.rate, err = props.Number("playbackRate", 1); err != nil {
		return nil, err
	}

	if math.IsNaN(s.rate) || math.IsInf(s.rate, 0) {
		return nil, fmt.Errorf("%w: playbackRate must be finite", InvalidPropertyValue)
	}

	return s, nil
}

func (n *sampleNode) Process(bc *BlockContext, s Settings) {
	st := s.(sampleSettings)

	// A new resource replaces both voices; playing voices stop abruptly.
	if st.res != n.active {
		n.active = st.res
		n.readers[0] = newSampleReader(n.sampleRate, st.res)
		n.readers[1] = newSampleReader(n.sampleRate, st.res)
	}

	if len(bc.Inputs) == 0 || n.active == nil {
		return
	}

	loop := st.mode == modeLoop
	start := 0

	for j, x := range bc.Inputs[0] {
		cv := x - n.prev
		n.prev = x

		if cv > 0.5 {
			n.sumVoices(bc.Outputs, start, j-start, st.rate)

			n.readers[n.voice&1].noteOff()
			n.voice++
			n.readers[n.voice&1].noteOn(st.startOffset, st.stopOffset, loop)

			start = j
		}

		if cv < -0.5 && st.mode != modeTrigger {
			n.sumVoices(bc.Outputs, start, j-start, st.rate)
			n.readers[n.voice&1].noteOff()

			start = j
		}
	}

	n.sumVoices(bc.Outputs, start, bc.NumFrames-start, st.rate)
}

func (n *sampleNode) sumVoices(out [][]float64, offset, count int, rate float64) {
	if count <= 0 {
		return
	}

	n.readers[0].sumInto(out, offset, count, rate)
	n.readers[1].sumInto(out, offset, count, rate)
}

// sampleReader reads a resource at a variable rate with linear
// interpolation, scaled by its own gain fade.
type sampleReader struct {
	res   *Resource
	fade  gainFade
	loop  bool
	start float64
	stop  float64
	pos   float64
}

func newSampleReader(sampleRate float64, res *Resource) sampleReader {
	return sampleReader{res: res, fade: newGainFade(sampleRate, sampleFadeMs, sampleFadeMs)}
}

func (r *sampleReader) noteOn(startOffset, stopOffset int, loop bool) {
	r.fade.fadeIn()

	r.start = float64(startOffset)
	r.stop = float64(stopOffset)
	r.loop = loop
	r.pos = r.start
}

func (r *sampleReader) noteOff() {
	r.fade.fadeOut()
}

func (r *sampleReader) sumInto(out [][]float64, offset, count int, rate float64) {
	if r.res == nil {
		return
	}

	local := r.fade
	readStop := 0.0

	for c := 0; c < len(out) && c < r.res.NumChannels; c++ {
		data := r.res.Channel(c)
		readStop = float64(len(data)) - r.stop

		// Every channel starts from the same fade state.
		local = r.fade

		dst := out[c][offset : offset+count]
		for j := range dst {
			pos := r.pos + float64(j)*rate

			if pos >= readStop {
				if !r.loop || readStop <= r.start {
					continue
				}

				pos = r.start + math.Mod(pos-r.start, readStop-r.start)
			}

			dst[j] += local.apply(lerpAt(data, pos))
		}
	}

	r.fade = local
	r.pos += float64(count) * rate

	if r.loop && r.pos >= readStop && readStop > r.start {
		r.pos = r.start + math.Mod(r.pos-r.start, readStop-r.start)
	}
}

// gainFade ramps a gain toward 0 or 1 with separate in and out slopes.
type gainFade struct {
	current float64
	target  float64
	step    float64
	inStep  float64
	outStep float64
}

func newGainFade(sampleRate, fadeInMs, fadeOutMs float64) gainFade {
	g := gainFade{
		inStep:  msToStep(sampleRate, fadeInMs),
		outStep: -msToStep(sampleRate, fadeOutMs),
	}
	g.updateStep()

	return g
}

func msToStep(sampleRate, ms float64) float64 {
	if ms <= 1e-6 {
		return 1
	}

	return 1 / (sampleRate * ms / 1000)
}

func (g *gainFade) apply(x float64) float64 {
	if math.Abs(g.current-g.target) <= 1e-9 {
		return g.target * x
	}

	y := x * g.current
	g.current = min(max(g.current+g.step, 0), 1)

	return y
}

func (g *gainFade) fadeIn() {
	g.target = 1
	g.updateStep()
}

func (g *gainFade) fadeOut() {
	g.target = 0
	g.updateStep()
}

func (g *gainFade) updateStep() {
	if g.current > g.target {
		g.step = g.outStep
	} else {
		g.step = g.inStep
	}
}
