package engine

import "sync/atomic"

type counters struct {
	blocks               atomic.Uint64
	frames               atomic.Uint64
	faults               atomic.Uint64
	eventsDropped        atomic.Uint64
	analysisDropped      atomic.Uint64
	batches              atomic.Uint64
	instructionsApplied  atomic.Uint64
	instructionsRejected atomic.Uint64
	snapshots            atomic.Uint64
	resourcesRegistered  atomic.Uint64
}

// Stats is a point-in-time copy of the runtime counters.
type Stats struct {
	SampleRate float64
	BlockSize  int

	Nodes       int
	ActiveNodes int
	Roots       int
	Resources   int
	SampleTime  int64

	BlocksProcessed      uint64
	FramesProcessed      uint64
	Faults               uint64
	EventsDropped        uint64
	AnalysisDropped      uint64
	Batches              uint64
	InstructionsApplied  uint64
	InstructionsRejected uint64
	SnapshotsPublished   uint64
	ResourcesRegistered  uint64
}

// Stats returns the current counters. It takes the control mutex and must
// not be called from the audio path.
func (r *Runtime[C]) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Stats{
		SampleRate: r.sampleRate,
		BlockSize:  r.blockSize,
		Nodes:      len(r.graph.entries),
		Roots:      len(r.graph.roots),
		Resources:  len(r.resources),
		SampleTime: r.sampleTime.Load(),

		BlocksProcessed:      r.stats.blocks.Load(),
		FramesProcessed:      r.stats.frames.Load(),
		Faults:               r.stats.faults.Load(),
		EventsDropped:        r.stats.eventsDropped.Load(),
		AnalysisDropped:      r.stats.analysisDropped.Load(),
		Batches:              r.stats.batches.Load(),
		InstructionsApplied:  r.stats.instructionsApplied.Load(),
		InstructionsRejected: r.stats.instructionsRejected.Load(),
		SnapshotsPublished:   r.stats.snapshots.Load(),
		ResourcesRegistered:  r.stats.resourcesRegistered.Load(),
	}

	if snap := r.active.Load(); snap != nil {
		st.ActiveNodes = len(snap.slots)
	}

	return st
}
