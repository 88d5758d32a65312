package engine

import "sync/atomic"

// Settings is the immutable result of configuring a node. It is produced on
// the control side and handed to Process on the audio side, so
// implementations must not be mutated after Configure returns them.
type Settings interface {
	NumOutputs() int
}

// Mono can be embedded in settings of single-output nodes.
type Mono struct{}

// NumOutputs implements Settings.
func (Mono) NumOutputs() int { return 1 }

// BlockContext carries the buffers for one chunk of at most the runtime's
// block size.
type BlockContext struct {
	// Inputs holds one slice per child edge, in append order. Edges that
	// address a missing outlet read silence.
	Inputs [][]float64
	// Outputs holds NumOutputs slices, zeroed before Process is called.
	Outputs [][]float64
	// HostInputs are the host's input channels for this chunk. A channel may
	// be shorter than NumFrames when the host supplied fewer frames.
	HostInputs [][]float64
	NumFrames  int
	SampleTime int64
	SampleRate float64

	dropped *atomic.Uint64
}

// Dropped records n samples or readings a node could not queue for the
// control side. It is safe to call from Process.
func (bc *BlockContext) Dropped(n int) {
	if n > 0 && bc.dropped != nil {
		bc.dropped.Add(uint64(n))
	}
}

// Node is the per-node contract.
//
// Configure runs on the control side. It validates props, may look up shared
// resources through env, and returns the settings Process will see. It must
// not touch state that Process reads or writes.
//
// Process runs on the audio side. It must not allocate, block or log.
type Node interface {
	Configure(env Env, props Props) (Settings, error)
	Process(bc *BlockContext, s Settings)
}

// EventSource is an optional interface for nodes that relay data gathered on
// the audio side. ProcessEvents is called on the control side during a drain.
type EventSource interface {
	ProcessEvents(s Settings, emit func(Event))
}

// ContextNode is an optional interface for nodes that want the caller's
// per-call context value. When implemented, it is called instead of Process.
type ContextNode[C any] interface {
	ProcessContext(bc *BlockContext, s Settings, ctx C)
}

// Env exposes runtime parameters and the shared-resource table to node
// factories and Configure.
type Env struct {
	SampleRate float64
	BlockSize  int

	lookup *resourceLookup
}

type resourceLookup struct {
	table map[string]*Resource
	deps  []string
}

// Resource returns the shared resource registered under name. The lookup is
// recorded, and the node is reconfigured when that name is re-registered.
func (e Env) Resource(name string) (*Resource, bool) {
	if e.lookup == nil {
		return nil, false
	}

	e.lookup.deps = append(e.lookup.deps, name)

	res, ok := e.lookup.table[name]

	return res, ok
}

func (e Env) deps() []string {
	if e.lookup == nil {
		return nil
	}

	return e.lookup.deps
}
