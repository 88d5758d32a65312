package engine

import (
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-elem/internal/ring"
)

const (
	meterQueueSize = 16
	fftMinSize     = 16
	fftMaxSize     = 8192
	fftDefaultSize = 1024
	fftQueueSize   = 2 * fftMaxSize
)

type meterSettings struct {
	Mono
	name string
}

type meterReading struct {
	min, max float64
}

// meterNode passes child 0 through and reports the extremes of the most
// recent block on every drain.
type meterNode struct {
	readings *ring.SPSC[meterReading]
}

func newMeterNode(Env) (Node, error) {
	return &meterNode{readings: ring.New[meterReading](meterQueueSize)}, nil
}

func (*meterNode) Configure(_ Env, props Props) (Settings, error) {
	name, err := props.String("name", "")
	if err != nil {
		return nil, err
	}

	return meterSettings{name: name}, nil
}

func (m *meterNode) Process(bc *BlockContext, _ Settings) {
	if len(bc.Inputs) == 0 || bc.NumFrames == 0 {
		return
	}

	in := bc.Inputs[0]
	copy(bc.Outputs[0], in)

	lo, hi := in[0], in[0]
	for _, v := range in[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	if !m.readings.Push(meterReading{min: lo, max: hi}) {
		bc.Dropped(1)
	}
}

func (m *meterNode) ProcessEvents(s Settings, emit func(Event)) {
	var (
		last meterReading
		seen bool
	)

	m.readings.Drain(func(r meterReading) {
		last = r
		seen = true
	})

	if !seen {
		return
	}

	emit(Event{Type: EventMeter, Data: map[string]any{
		"source": s.(meterSettings).name,
		"min":    last.min,
		"max":    last.max,
	}})
}

type fftSettings struct {
	Mono
	name   string
	size   int
	plan   *algofft.Plan[complex128]
	window []float64
}

// fftNode passes child 0 through. The audio side only queues samples; frames
// are windowed and transformed on the control side during a drain.
type fftNode struct {
	samples *ring.SPSC[float64]

	// Control-side state.
	frame []float64
	fill  int
}

func newFFTNode(Env) (Node, error) {
	return &fftNode{samples: ring.New[float64](fftQueueSize)}, nil
}

func (*fftNode) Configure(_ Env, props Props) (Settings, error) {
	name, err := props.String("name", "")
	if err != nil {
		return nil, err
	}

	size, err := props.Index("size", fftDefaultSize)
	if err != nil {
		return nil, err
	}

	if size < fftMinSize || size > fftMaxSize || size&(size-1) != 0 {
		return nil, fmt.Errorf("%w: fft size %d must be a power of two in [%d, %d]",
			InvalidPropertyValue, size, fftMinSize, fftMaxSize)
	}

	plan, err := algofft.NewPlan64(size)
	if err != nil {
		return nil, fmt.Errorf("%w: fft plan: %w", InvalidPropertyValue, err)
	}

	return fftSettings{name: name, size: size, plan: plan, window: hann(size)}, nil
}

func (f *fftNode) Process(bc *BlockContext, _ Settings) {
	if len(bc.Inputs) == 0 {
		return
	}

	copy(bc.Outputs[0], bc.Inputs[0])

	bc.Dropped(len(bc.Inputs[0]) - f.samples.PushSlice(bc.Inputs[0]))
}

func (f *fftNode) ProcessEvents(s Settings, emit func(Event)) {
	st := s.(fftSettings)

	if len(f.frame) != st.size {
		f.frame = make([]float64, st.size)
		f.fill = 0
	}

	for {
		f.fill += f.samples.PopSlice(f.frame[f.fill:])
		if f.fill < st.size {
			return
		}

		emit(st.analyze(f.frame))
		f.fill = 0
	}
}

func (st fftSettings) analyze(frame []float64) Event {
	windowed := make([]float64, st.size)
	vecmath.MulBlock(windowed, frame, st.window)

	in := make([]complex128, st.size)
	for i, v := range windowed {
		in[i] = complex(v, 0)
	}

	spectrum := make([]complex128, st.size)

	bins := st.size/2 + 1
	re := make([]float64, bins)
	im := make([]float64, bins)

	if err := st.plan.Forward(spectrum, in); err == nil {
		for k := range bins {
			re[k] = real(spectrum[k])
			im[k] = imag(spectrum[k])
		}
	}

	mag := make([]float64, bins)
	vecmath.Magnitude(mag, re, im)

	pow := make([]float64, bins)
	vecmath.Power(pow, re, im)

	return Event{Type: EventFFT, Data: map[string]any{
		"source":    st.name,
		"real":      re,
		"imag":      im,
		"magnitude": mag,
		"power":     pow,
	}}
}

// hann returns a symmetric Hann window of length n.
func hann(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}

	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}

	return w
}

type captureSettings struct {
	Mono
	name string
}

type captureItem struct {
	value float64
	end   bool
}

// captureNode passes child 1 through and records it while child 0 is high.
// A finished recording, ended by a falling gate, is relayed as one capture
// event on the next drain.
type captureNode struct {
	items *ring.SPSC[captureItem]

	// Audio-side state.
	recording bool

	// Control-side state.
	pending []float64
}

func newCaptureNode(env Env) (Node, error) {
	// One second of audio per drain, plus room for end markers.
	return &captureNode{items: ring.New[captureItem](int(env.SampleRate) + 64)}, nil
}

func (*captureNode) Configure(_ Env, props Props) (Settings, error) {
	name, err := props.String("name", "")
	if err != nil {
		return nil, err
	}

	return captureSettings{name: name}, nil
}

func (c *captureNode) Process(bc *BlockContext, _ Settings) {
	if len(bc.Inputs) < 2 {
		return
	}

	gate, x := bc.Inputs[0], bc.Inputs[1]
	copy(bc.Outputs[0], x)

	for i := range bc.Outputs[0] {
		high := gate[i] > 0.5

		if c.recording && !high && !c.items.Push(captureItem{end: true}) {
			bc.Dropped(1)
		}

		if high && !c.items.Push(captureItem{value: x[i]}) {
			bc.Dropped(1)
		}

		c.recording = high
	}
}

func (c *captureNode) ProcessEvents(s Settings, emit func(Event)) {
	name := s.(captureSettings).name

	c.items.Drain(func(it captureItem) {
		if !it.end {
			c.pending = append(c.pending, it.value)
			return
		}

		emit(Event{Type: EventCapture, Data: map[string]any{
			"source": name,
			"data":   c.pending,
		}})

		c.pending = nil
	})
}
