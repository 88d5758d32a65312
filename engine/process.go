package engine

import "fmt"

// slot is one compiled node. Inputs and outputs are full block-size buffers;
// the view slices are rewritten per chunk so Process never allocates.
type slot[C any] struct {
	id       int32
	kind     string
	node     Node
	ctxNode  ContextNode[C]
	settings Settings

	inputs  [][]float64
	outputs [][]float64
	inView  [][]float64
	outView [][]float64
	bc      BlockContext
}

type rootTap struct {
	slot    int
	channel int
}

// snapshot is an immutable compiled graph. Once published it is only read
// by the audio side; the buffers it owns are written only by Process.
type snapshot[C any] struct {
	version uint64
	slots   []slot[C]
	roots   []rootTap
}

// compile builds a snapshot from the committed graph table.
func (r *Runtime[C]) compile() (*snapshot[C], error) {
	order, err := r.graph.evaluationOrder()
	if err != nil {
		return nil, fmt.Errorf("engine: compile: %w: %w", InvariantViolation, err)
	}

	zero := make([]float64, r.blockSize)
	index := make(map[int32]int, len(order))
	snap := &snapshot[C]{slots: make([]slot[C], len(order))}

	for i, id := range order {
		e := r.graph.entries[id]
		index[id] = i

		n := e.settings.NumOutputs()
		if n < 0 {
			n = 0
		}

		s := &snap.slots[i]
		s.id = id
		s.kind = e.kind
		s.node = e.node
		s.settings = e.settings
		s.ctxNode, _ = e.node.(ContextNode[C])
		s.outputs = make([][]float64, n)
		s.outView = make([][]float64, n)

		for c := range s.outputs {
			s.outputs[c] = make([]float64, r.blockSize)
		}

		s.inputs = make([][]float64, len(e.children))
		s.inView = make([][]float64, len(e.children))

		for c, edge := range e.children {
			child := &snap.slots[index[edge.Child]]
			if edge.Outlet < len(child.outputs) {
				s.inputs[c] = child.outputs[edge.Outlet]
			} else {
				s.inputs[c] = zero
			}
		}

		s.bc = BlockContext{
			Inputs:     s.inView,
			Outputs:    s.outView,
			SampleRate: r.sampleRate,
			dropped:    &r.stats.analysisDropped,
		}
	}

	for _, id := range r.graph.roots {
		i, ok := index[id]
		if !ok {
			continue
		}

		channel := 0
		if rs, ok := snap.slots[i].settings.(rootSettings); ok {
			channel = rs.channel
		}

		snap.roots = append(snap.roots, rootTap{slot: i, channel: channel})
	}

	return snap, nil
}

// publish compiles the committed table and swaps it in atomically.
func (r *Runtime[C]) publish() error {
	snap, err := r.compile()
	if err != nil {
		return err
	}

	snap.version = r.stats.snapshots.Add(1)
	r.active.Store(snap)

	r.log.Debug("engine: snapshot published", "version", snap.version, "nodes", len(snap.slots), "roots", len(snap.roots))

	return nil
}

// Process renders numFrames frames into the first numChannels slices of
// output. Every output sample in that range is written: zeroed first, then
// each active root adds its signal into its channel. A panic inside a node
// is recovered, the output is silenced and a fault event is queued.
//
// Process is the only audio-side entry point. It does not allocate, block
// or take the control mutex.
func (r *Runtime[C]) Process(input, output [][]float64, numChannels, numFrames int, ctx C) {
	numChannels = min(numChannels, len(output))
	if numChannels < 0 {
		numChannels = 0
	}

	for c := range numChannels {
		numFrames = min(numFrames, len(output[c]))
	}

	if numFrames <= 0 {
		return
	}

	out := output[:numChannels]
	silence(out, numFrames)

	snap := r.active.Load()
	if snap == nil {
		r.sampleTime.Add(int64(numFrames))
		r.stats.frames.Add(uint64(numFrames))

		return
	}

	base := r.sampleTime.Load()

	defer func() {
		if p := recover(); p != nil {
			silence(out, numFrames)
			r.stats.faults.Add(1)

			ev := audioEvent{kind: audioFault, sampleTime: base, cause: p, node: -1}
			if r.current >= 0 && r.current < len(snap.slots) {
				ev.node = snap.slots[r.current].id
				ev.kindName = snap.slots[r.current].kind
			}

			r.pushAudio(ev)
		}

		r.sampleTime.Store(base + int64(numFrames))
		r.stats.frames.Add(uint64(numFrames))
	}()

	for off := 0; off < numFrames; off += r.blockSize {
		n := min(r.blockSize, numFrames-off)
		r.processChunk(snap, input, out, off, n, base+int64(off), ctx)
		r.stats.blocks.Add(1)
	}
}

func (r *Runtime[C]) processChunk(snap *snapshot[C], input, out [][]float64, off, n int, sampleTime int64, ctx C) {
	hostIn := r.hostIn[:0]

	for c := 0; c < len(input) && c < cap(r.hostIn); c++ {
		ch := input[c]

		switch {
		case len(ch) >= off+n:
			hostIn = append(hostIn, ch[off:off+n])
		case len(ch) > off:
			hostIn = append(hostIn, ch[off:])
		default:
			hostIn = append(hostIn, nil)
		}
	}

	for i := range snap.slots {
		s := &snap.slots[i]
		r.current = i

		for c, buf := range s.inputs {
			s.inView[c] = buf[:n]
		}

		for c, buf := range s.outputs {
			view := buf[:n]
			clear(view)
			s.outView[c] = view
		}

		s.bc.NumFrames = n
		s.bc.SampleTime = sampleTime
		s.bc.HostInputs = hostIn

		if s.ctxNode != nil {
			s.ctxNode.ProcessContext(&s.bc, s.settings, ctx)
		} else {
			s.node.Process(&s.bc, s.settings)
		}
	}

	r.current = -1

	for _, tap := range snap.roots {
		if tap.channel >= len(out) {
			continue
		}

		src := snap.slots[tap.slot].outputs
		if len(src) == 0 {
			continue
		}

		dst := out[tap.channel][off : off+n]
		for j, v := range src[0][:n] {
			dst[j] += v
		}
	}
}

func silence(out [][]float64, numFrames int) {
	for _, ch := range out {
		clear(ch[:numFrames])
	}
}
