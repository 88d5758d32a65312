package bridge

import "github.com/cwbudde/algo-elem/engine"

// Stats extends the runtime counters with the bridge's own.
type Stats struct {
	engine.Stats

	// EventsTruncated counts drains whose batch was cut at the size limit.
	EventsTruncated uint64
	// EventsDiscarded counts events that could not be encoded at all.
	EventsDiscarded uint64
	DecodeErrors    uint64
}

// Stats returns a snapshot of the session counters. A nil or closed handle
// reports zeros for the runtime part.
func (h *Handle[C]) Stats() Stats {
	if h == nil {
		return Stats{}
	}

	return Stats{
		Stats:           h.rt.Stats(),
		EventsTruncated: h.truncated.Load(),
		EventsDiscarded: h.discarded.Load(),
		DecodeErrors:    h.decodeErrors.Load(),
	}
}
