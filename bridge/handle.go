// Package bridge exposes a Runtime through the four calls a host needs:
// apply an encoded instruction batch, register a shared resource, process
// one audio block, and drain encoded events. Every control call returns an
// integer status code (see engine.Code) instead of an error so the handle
// can sit behind a C or plugin boundary.
//
// ApplyInstructions, ApplyRetained, AddSharedResource, ProcessQueuedEvents, Stats and Close
// belong to the control context. Process and ProcessInterleaved belong to
// the audio context; they never block on the control context and never
// allocate.
package bridge

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-elem/codec"
	"github.com/cwbudde/algo-elem/engine"
	"github.com/cwbudde/algo-elem/internal/ids"
)

// Handle owns one Runtime for the lifetime of an audio session. All methods
// are safe to call on a nil *Handle: control calls return engine.Closed and
// processing writes silence.
type Handle[C any] struct {
	rt  *engine.Runtime[C]
	cfg Config
	log *slog.Logger

	// audio side scratch for ProcessInterleaved
	scratchIn  [][]float64
	scratchOut [][]float64
	inView     [][]float64
	outView    [][]float64

	mu      sync.Mutex
	pending []engine.Event

	truncated    atomic.Uint64
	discarded    atomic.Uint64
	decodeErrors atomic.Uint64
}

// New creates a session at the given sample rate and maximum block size. It
// returns nil if the parameters are invalid.
func New[C any](sampleRate float64, blockSize int, opts ...Option) *Handle[C] {
	cfg := applyOptions(opts)

	engineOpts := append([]engine.Option{engine.WithLogger(cfg.Logger)}, cfg.Engine...)

	rt, err := engine.New[C](sampleRate, blockSize, engineOpts...)
	if err != nil {
		cfg.Logger.Error("bridge: new session", "err", err)
		return nil
	}

	maxCh := engine.ApplyOptions(engineOpts...).MaxChannels

	h := &Handle[C]{
		rt:         rt,
		cfg:        cfg,
		log:        cfg.Logger,
		scratchIn:  make([][]float64, maxCh),
		scratchOut: make([][]float64, maxCh),
		inView:     make([][]float64, maxCh),
		outView:    make([][]float64, maxCh),
	}

	for c := range maxCh {
		h.scratchIn[c] = make([]float64, blockSize)
		h.scratchOut[c] = make([]float64, blockSize)
	}

	h.log.Info("bridge: session started",
		"sampleRate", sampleRate, "blockSize", blockSize, "codec", cfg.Codec.Name())

	return h
}

// Runtime returns the underlying runtime, or nil.
func (h *Handle[C]) Runtime() *engine.Runtime[C] {
	if h == nil {
		return nil
	}

	return h.rt
}

// Codec returns the encoding the session expects for instruction batches and
// produces for event batches.
func (h *Handle[C]) Codec() codec.Codec {
	if h == nil {
		return codec.JSON
	}

	return h.cfg.Codec
}

// ApplyInstructions decodes batch with the session codec and applies it. It
// returns 0 when every instruction was applied, InvalidInstructionFormat when
// the batch does not decode, and otherwise the code of the first rejected
// instruction.
func (h *Handle[C]) ApplyInstructions(batch []byte) int {
	if h == nil {
		return int(engine.Closed)
	}

	instructions, ok := h.decode(batch)
	if !ok {
		return int(engine.InvalidInstructionFormat)
	}

	return int(engine.CodeOf(h.rt.ApplyInstructions(instructions)))
}

// ApplyRetained applies batch like ApplyInstructions and also returns the
// instructions that took effect, encoded with the session codec, so they can
// be journaled and replayed. Under BatchPerInstruction the rejected
// instructions are left out. retained is nil when nothing took effect.
func (h *Handle[C]) ApplyRetained(batch []byte) (code int, retained []byte) {
	if h == nil {
		return int(engine.Closed), nil
	}

	instructions, ok := h.decode(batch)
	if !ok {
		return int(engine.InvalidInstructionFormat), nil
	}

	err := h.rt.ApplyInstructions(instructions)
	if err == nil {
		return 0, batch
	}

	code = int(engine.CodeOf(err))

	rejected := engine.Rejected(err)
	if h.rt.BatchPolicy() != engine.BatchPerInstruction || len(rejected) == 0 {
		return code, nil
	}

	kept := make([]engine.Instruction, 0, len(instructions)-len(rejected))

	for i, in := range instructions {
		if len(rejected) > 0 && rejected[0] == i {
			rejected = rejected[1:]
			continue
		}

		kept = append(kept, in)
	}

	if len(kept) == 0 {
		return code, nil
	}

	retained, err = h.cfg.Codec.EncodeInstructions(kept)
	if err != nil {
		h.log.Error("bridge: encode retained instructions", "instructions", len(kept), "err", err)
		return code, nil
	}

	return code, retained
}

func (h *Handle[C]) decode(batch []byte) ([]engine.Instruction, bool) {
	instructions, err := h.cfg.Codec.DecodeInstructions(batch)
	if err == nil {
		return instructions, true
	}

	h.decodeErrors.Add(1)

	if !errors.Is(err, engine.InvalidInstructionFormat) {
		err = fmt.Errorf("bridge: %w: %w", engine.InvalidInstructionFormat, err)
	}

	h.log.Debug("bridge: undecodable batch", "bytes", len(batch), "err", err)
	h.rt.ReportError("decode", err)

	return nil, false
}

// AddSharedResource copies data into the resource table under name. data is
// planar: channel c occupies data[c*numFrames:(c+1)*numFrames].
func (h *Handle[C]) AddSharedResource(name string, numChannels, numFrames int, data []float64) int {
	if h == nil {
		return int(engine.Closed)
	}

	return int(engine.CodeOf(h.rt.AddSharedResource(name, numChannels, numFrames, data)))
}

// Process renders one block from planar buffers. Every output sample in
// the first numChannels x numFrames is written.
func (h *Handle[C]) Process(input, output [][]float64, numChannels, numFrames int, ctx C) {
	if h == nil {
		if numFrames <= 0 {
			return
		}

		for c := 0; c < numChannels && c < len(output); c++ {
			clear(output[c][:min(numFrames, len(output[c]))])
		}

		return
	}

	h.rt.Process(input, output, numChannels, numFrames, ctx)
}

// ProcessInterleaved renders numFrames frames from interleaved buffers.
// Channels beyond the runtime's channel limit are written as silence.
func (h *Handle[C]) ProcessInterleaved(input, output []float64, numChannels, numFrames int, ctx C) {
	if numChannels <= 0 || numFrames <= 0 {
		return
	}

	numFrames = min(numFrames, len(output)/numChannels)
	clear(output[:numFrames*numChannels])

	if h == nil {
		return
	}

	ch := min(numChannels, len(h.scratchIn))
	inFrames := min(numFrames, len(input)/numChannels)

	block := h.rt.BlockSize()

	for off := 0; off < numFrames; off += block {
		n := min(block, numFrames-off)

		for c := range ch {
			in := h.scratchIn[c][:n]
			for i := range n {
				f := off + i
				if f < inFrames {
					in[i] = input[f*numChannels+c]
				} else {
					in[i] = 0
				}
			}

			h.inView[c] = in
			h.outView[c] = h.scratchOut[c][:n]
		}

		h.rt.Process(h.inView[:ch], h.outView[:ch], ch, n, ctx)

		for c := range ch {
			out := h.outView[c]
			for i := range n {
				output[(off+i)*numChannels+c] = out[i]
			}
		}
	}
}

// ProcessQueuedEvents drains the runtime and returns the encoded event
// batch, or an empty slice when there is nothing to report. A batch larger
// than the configured limit is cut at the last event that fits; the rest is
// returned by the next call. An event that alone exceeds the limit is
// discarded.
func (h *Handle[C]) ProcessQueuedEvents() []byte {
	if h == nil {
		return []byte{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	events := append(h.pending, h.rt.DrainEvents()...)
	h.pending = nil

	for len(events) > 0 {
		data, n, err := h.cfg.Codec.EncodeEvents(ids.NewBatchID(), events, h.cfg.MaxEventBatchBytes)
		if err != nil {
			h.discarded.Add(uint64(len(events)))
			h.log.Error("bridge: encode events", "events", len(events), "err", err)

			return []byte{}
		}

		if n == len(events) {
			return data
		}

		if n > 0 {
			h.truncated.Add(1)
			h.pending = append([]engine.Event(nil), events[n:]...)

			return data
		}

		// The first event alone exceeds the limit.
		h.discarded.Add(1)
		h.log.Warn("bridge: event larger than batch limit dropped",
			"type", events[0].Type, "limit", h.cfg.MaxEventBatchBytes)

		events = events[1:]
	}

	return []byte{}
}

// Close tears the session down. It is idempotent. The caller must make sure
// no Process call is in flight.
func (h *Handle[C]) Close() {
	if h == nil {
		return
	}

	h.rt.Close()

	h.mu.Lock()
	h.pending = nil
	h.mu.Unlock()
}

// Session is a Handle whose nodes take no per-call context. Unlike Handle,
// only its Process methods accept a nil receiver.
type Session struct {
	*Handle[struct{}]
}

// NewSession is New without a context type. It returns nil if the
// parameters are invalid.
func NewSession(sampleRate float64, blockSize int, opts ...Option) *Session {
	h := New[struct{}](sampleRate, blockSize, opts...)
	if h == nil {
		return nil
	}

	return &Session{Handle: h}
}

func (s *Session) handle() *Handle[struct{}] {
	if s == nil {
		return nil
	}

	return s.Handle
}

// Process renders one block from planar buffers.
func (s *Session) Process(input, output [][]float64, numChannels, numFrames int) {
	s.handle().Process(input, output, numChannels, numFrames, struct{}{})
}

// ProcessInterleaved renders numFrames frames from interleaved buffers.
func (s *Session) ProcessInterleaved(input, output []float64, numChannels, numFrames int) {
	s.handle().ProcessInterleaved(input, output, numChannels, numFrames, struct{}{})
}
