package engine

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-elem/internal/testutil"
)

// renderOne processes frames of the graph rooted at id 1 and returns channel 0.
func renderOne(t *testing.T, r *Runtime[float64], frames int) []float64 {
	t.Helper()

	out := testutil.Planar(1, frames)
	r.Process(nil, out, 1, frames, 0)

	return out[0]
}

// binaryGraph builds root(kind(const a, const b)).
func binaryGraph(kind string, a, b float64) []Instruction {
	return []Instruction{
		Create(1, KindRoot),
		Create(2, kind),
		Create(3, KindConst),
		Set(3, "value", a),
		Create(4, KindConst),
		Set(4, "value", b),
		Append(2, 3, 0),
		Append(2, 4, 0),
		Append(1, 2, 0),
		Activate(1),
	}
}

func TestArithmeticNodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind string
		a, b float64
		want float64
	}{
		{kind: KindAdd, a: 2, b: 3, want: 5},
		{kind: KindSub, a: 2, b: 3, want: -1},
		{kind: KindMul, a: 2, b: 3, want: 6},
		{kind: KindDiv, a: 3, b: 2, want: 1.5},
		{kind: KindLe, a: 2, b: 3, want: 1},
		{kind: KindLe, a: 3, b: 2, want: 0},
		{kind: KindGe, a: 3, b: 3, want: 1},
		{kind: KindGe, a: 2, b: 3, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			t.Parallel()

			r := newTestRuntime(t)
			mustApply(t, r, binaryGraph(tt.kind, tt.a, tt.b)...)

			got := renderOne(t, r, 4)
			testutil.RequireSliceNearlyEqual(t, got, []float64{tt.want, tt.want, tt.want, tt.want}, 1e-12)
		})
	}
}

func TestMulFoldsManyInputs(t *testing.T) {
	t.Parallel()

	r := newTestRuntime(t)
	mustApply(t, r, binaryGraph(KindMul, 2, 3)...)
	mustApply(t, r,
		Create(5, KindConst),
		Set(5, "value", 0.5),
		Append(2, 5, 0),
	)

	got := renderOne(t, r, 3)
	testutil.RequireSliceNearlyEqual(t, got, []float64{3, 3, 3}, 1e-12)
}

func TestUnaryNodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind string
		fn   func(float64) float64
	}{
		{kind: KindSin, fn: math.Sin},
		{kind: KindCos, fn: math.Cos},
		{kind: KindTanh, fn: math.Tanh},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			t.Parallel()

			r := newTestRuntime(t)
			mustApply(t, r,
				Create(1, KindRoot),
				Create(2, tt.kind),
				Create(3, KindConst),
				Set(3, "value", 0.3),
				Append(2, 3, 0),
				Append(1, 2, 0),
				Activate(1),
			)

			want := tt.fn(0.3)
			testutil.RequireSliceNearlyEqual(t, renderOne(t, r, 2), []float64{want, want}, 1e-15)
		})
	}
}

func TestSampleRateNode(t *testing.T) {
	t.Parallel()

	r := newTestRuntime(t)
	mustApply(t, r, Create(1, KindRoot), Create(2, KindSR), Append(1, 2, 0), Activate(1))

	testutil.RequireSliceNearlyEqual(t, renderOne(t, r, 2), []float64{testSampleRate, testSampleRate}, 0)
}

func TestPhasorRamps(t *testing.T) {
	t.Parallel()

	r := newTestRuntime(t)
	mustApply(t, r,
		Create(1, KindRoot),
		Create(2, KindPhasor),
		Create(3, KindConst),
		Set(3, "value", testSampleRate/4),
		Append(2, 3, 0),
		Append(1, 2, 0),
		Activate(1),
	)

	testutil.RequireSliceNearlyEqual(t, renderOne(t, r, 6), []float64{0, 0.25, 0.5, 0.75, 0, 0.25}, 1e-12)

	// Phase carries over into the next call.
	testutil.RequireSliceNearlyEqual(t, renderOne(t, r, 2), []float64{0.5, 0.75}, 1e-12)
}

func TestSampleGateReleasesVoice(t *testing.T) {
	t.Parallel()

	r := newTestRuntime(t)

	if err := r.AddSharedResource("ones", 1, 2048, testutil.Filled(1, 2048, 1)[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gate := int32(3)
	mustApply(t, r,
		Create(1, KindRoot),
		Create(2, KindSample),
		Set(2, "path", "ones"),
		Set(2, "mode", "gate"),
		Create(gate, KindConst),
		Set(gate, "value", 1.0),
		Append(2, gate, 0),
		Append(1, 2, 0),
		Activate(1),
	)

	// 4 ms at 48 kHz is 192 frames; after that the voice is fully open.
	on := renderOne(t, r, 256)
	if on[255] != 1 {
		t.Fatalf("open gate level = %v, want 1", on[255])
	}

	mustApply(t, r, Set(gate, "value", 0.0))

	off := renderOne(t, r, 256)
	if off[0] <= 0 || off[0] > 1 {
		t.Fatalf("release should start from the open level, got %v", off[0])
	}

	if off[255] != 0 {
		t.Fatalf("released level = %v, want 0", off[255])
	}
}

func TestSampleTriggerIgnoresFallingEdge(t *testing.T) {
	t.Parallel()

	r := newTestRuntime(t)

	if err := r.AddSharedResource("ones", 1, 2048, testutil.Filled(1, 2048, 1)[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mustApply(t, r,
		Create(1, KindRoot),
		Create(2, KindSample),
		Set(2, "path", "ones"),
		Create(3, KindConst),
		Set(3, "value", 1.0),
		Append(2, 3, 0),
		Append(1, 2, 0),
		Activate(1),
	)

	renderOne(t, r, 256)
	mustApply(t, r, Set(3, "value", 0.0))

	if got := renderOne(t, r, 256); got[255] != 1 {
		t.Fatalf("trigger mode should keep playing, got %v", got[255])
	}
}

func TestSampleLoopWraps(t *testing.T) {
	t.Parallel()

	r := newTestRuntime(t)

	if err := r.AddSharedResource("ramp", 1, 4, []float64{1, 2, 3, 4}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mustApply(t, r,
		Create(1, KindRoot),
		Create(2, KindSample),
		Set(2, "path", "ramp"),
		Set(2, "mode", "loop"),
		Create(3, KindConst),
		Set(3, "value", 1.0),
		Append(2, 3, 0),
		Append(1, 2, 0),
		Activate(1),
	)

	got := renderOne(t, r, 1024)

	// Once the fade-in settles the loop repeats the resource.
	testutil.RequireSliceNearlyEqual(t, got[1000:1008], []float64{1, 2, 3, 4, 1, 2, 3, 4}, 1e-12)
}

func TestSamplePropertyValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key   string
		value any
		want  Code
	}{
		{key: "mode", value: "reverse", want: InvalidPropertyValue},
		{key: "mode", value: 1.0, want: InvalidPropertyType},
		{key: "startOffset", value: -1.0, want: InvalidPropertyValue},
		{key: "stopOffset", value: "end", want: InvalidPropertyType},
		{key: "playbackRate", value: math.Inf(1), want: InvalidPropertyValue},
		{key: "path", value: 3.0, want: InvalidPropertyType},
		{key: "path", value: "", want: InvalidPropertyValue},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Parallel()

			r := newTestRuntime(t)
			mustApply(t, r, Create(1, KindSample))

			err := r.ApplyInstructions([]Instruction{Set(1, tt.key, tt.value)})
			if got := CodeOf(err); got != tt.want {
				t.Fatalf("code = %v (%v), want %v", got, err, tt.want)
			}
		})
	}
}

func TestSampleFollowsResourceChannels(t *testing.T) {
	t.Parallel()

	r := newTestRuntime(t)

	if err := r.AddSharedResource("stereo", 2, 2, []float64{1, 1, 2, 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mustApply(t, r,
		Create(1, KindRoot),
		Create(2, KindRoot),
		Set(2, "channel", 1.0),
		Create(3, KindSample),
		Set(3, "path", "stereo"),
		Create(4, KindConst),
		Set(4, "value", 1.0),
		Append(3, 4, 0),
		Append(1, 3, 0),
		Append(2, 3, 1),
		Activate(1, 2),
	)

	out := testutil.Planar(2, 4)
	r.Process(nil, out, 2, 4, 0)

	step := 1 / (testSampleRate * sampleFadeMs / 1000)
	testutil.RequireSliceNearlyEqual(t, out[0], []float64{0, step, 0, 0}, 1e-12)
	testutil.RequireSliceNearlyEqual(t, out[1], []float64{0, 2 * step, 0, 0}, 1e-12)
}

func TestMeterRelaysLatestBlock(t *testing.T) {
	t.Parallel()

	r := newTestRuntime(t)
	mustApply(t, r,
		Create(1, KindRoot),
		Create(2, KindMeter),
		Set(2, "name", "out"),
		Create(3, KindTime),
		Append(2, 3, 0),
		Append(1, 2, 0),
		Activate(1),
	)

	got := renderOne(t, r, 8)
	testutil.RequireSliceNearlyEqual(t, got, []float64{0, 1, 2, 3, 4, 5, 6, 7}, 0)

	renderOne(t, r, 8)

	meters := eventsOfType(r.DrainEvents(), EventMeter)
	if len(meters) != 1 {
		t.Fatalf("expected one meter event, got %d", len(meters))
	}

	data := meters[0].Data
	if data["source"] != "out" || data["min"] != 8.0 || data["max"] != 15.0 {
		t.Fatalf("unexpected meter data: %+v", data)
	}

	if again := r.DrainEvents(); len(again) != 0 {
		t.Fatalf("expected empty drain, got %+v", again)
	}
}

func TestFFTEmitsFrames(t *testing.T) {
	t.Parallel()

	const size = 64

	r := newTestRuntime(t)
	mustApply(t, r,
		Create(1, KindRoot),
		Create(2, KindFFT),
		Set(2, "name", "spectrum"),
		Set(2, "size", float64(size)),
		Create(3, KindSin),
		Create(4, KindMul),
		Create(5, KindPhasor),
		Create(6, KindConst),
		Set(6, "value", testSampleRate*8/size),
		Create(7, KindConst),
		Set(7, "value", 2*math.Pi),
		Append(5, 6, 0),
		Append(4, 5, 0),
		Append(4, 7, 0),
		Append(3, 4, 0),
		Append(2, 3, 0),
		Append(1, 2, 0),
		Activate(1),
	)

	renderOne(t, r, 2*size+10)

	frames := eventsOfType(r.DrainEvents(), EventFFT)
	if len(frames) != 2 {
		t.Fatalf("expected 2 fft frames, got %d", len(frames))
	}

	mag, ok := frames[0].Data["magnitude"].([]float64)
	if !ok || len(mag) != size/2+1 {
		t.Fatalf("unexpected magnitude payload: %T", frames[0].Data["magnitude"])
	}

	peak := 0
	for k := range mag {
		if mag[k] > mag[peak] {
			peak = k
		}
	}

	if peak != 8 {
		t.Fatalf("peak bin = %d, want 8", peak)
	}

	pow := frames[0].Data["power"].([]float64)
	if math.Abs(pow[peak]-mag[peak]*mag[peak]) > 1e-9*pow[peak] {
		t.Fatalf("power %v does not match magnitude %v", pow[peak], mag[peak])
	}

	// The remaining 10 samples wait for the next frame.
	renderOne(t, r, size-10)

	if n := len(eventsOfType(r.DrainEvents(), EventFFT)); n != 1 {
		t.Fatalf("expected 1 fft frame after top-up, got %d", n)
	}
}

func TestFFTCountsSamplesLostToFullQueue(t *testing.T) {
	t.Parallel()

	r := newTestRuntime(t)
	mustApply(t, r,
		Create(1, KindRoot),
		Create(2, KindFFT),
		Create(3, KindConst),
		Set(3, "value", 1.0),
		Append(2, 3, 0),
		Append(1, 2, 0),
		Activate(1),
	)

	// Nothing drains, so everything past the queue capacity is lost.
	renderOne(t, r, fftQueueSize+100)

	if got := r.Stats().AnalysisDropped; got != 100 {
		t.Fatalf("AnalysisDropped = %d, want 100", got)
	}

	r.DrainEvents()
	renderOne(t, r, testBlockSize)

	if got := r.Stats().AnalysisDropped; got != 100 {
		t.Fatalf("AnalysisDropped after drain = %d, want 100", got)
	}
}

func TestMeterCountsLostReadings(t *testing.T) {
	t.Parallel()

	r := newTestRuntime(t)
	mustApply(t, r,
		Create(1, KindRoot),
		Create(2, KindMeter),
		Create(3, KindConst),
		Append(2, 3, 0),
		Append(1, 2, 0),
		Activate(1),
	)

	out := testutil.Planar(1, 1)
	for range meterQueueSize + 3 {
		r.Process(nil, out, 1, 1, 0)
	}

	if got := r.Stats().AnalysisDropped; got != 3 {
		t.Fatalf("AnalysisDropped = %d, want 3", got)
	}
}

func TestFFTRejectsBadSize(t *testing.T) {
	t.Parallel()

	for _, size := range []float64{8, 100, 16384} {
		r := newTestRuntime(t)
		mustApply(t, r, Create(1, KindFFT))

		err := r.ApplyInstructions([]Instruction{Set(1, "size", size)})
		if CodeOf(err) != InvalidPropertyValue {
			t.Fatalf("size %v: code = %v, want %v", size, CodeOf(err), InvalidPropertyValue)
		}
	}
}

func TestGainFadeReachesTarget(t *testing.T) {
	t.Parallel()

	g := newGainFade(1000, 4, 2)
	g.fadeIn()

	for range 4 {
		g.apply(1)
	}

	if got := g.apply(1); got != 1 {
		t.Fatalf("after fade-in gain = %v, want 1", got)
	}

	g.fadeOut()

	for range 2 {
		g.apply(1)
	}

	if got := g.apply(1); got != 0 {
		t.Fatalf("after fade-out gain = %v, want 0", got)
	}
}
