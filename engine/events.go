package engine

import (
	"fmt"
	"sort"
)

// Event types enqueued by the runtime itself.
const (
	EventError    = "error"
	EventFault    = "fault"
	EventOverflow = "overflow"
	EventMeter    = "meter"
	EventFFT      = "fft"
	EventCapture  = "capture"
)

// Event is one item of a drained event batch. Seq is a runtime-wide
// sequence number assigned at enqueue time; drained batches are sorted by it.
type Event struct {
	Seq  uint64
	Type string
	Data map[string]any
}

type audioEventKind uint8

const (
	audioFault audioEventKind = iota + 1
)

// audioEvent is what the audio side pushes into the ring. It holds no
// pointers that Process would have to allocate.
type audioEvent struct {
	seq        uint64
	kind       audioEventKind
	node       int32
	kindName   string
	sampleTime int64
	cause      any
}

func (a audioEvent) toEvent() Event {
	switch a.kind {
	case audioFault:
		return Event{
			Seq:  a.seq,
			Type: EventFault,
			Data: map[string]any{
				"node":       a.node,
				"kind":       a.kindName,
				"sampleTime": a.sampleTime,
				"message":    fmt.Sprint(a.cause),
			},
		}
	default:
		return Event{Seq: a.seq, Type: "unknown", Data: map[string]any{}}
	}
}

// emitControl appends a control-side event. Callers hold r.mu.
func (r *Runtime[C]) emitControl(typ string, data map[string]any) {
	r.events = append(r.events, Event{Seq: r.seq.Add(1), Type: typ, Data: data})
}

// ReportError enqueues an error event for a failure that happened before
// the runtime saw any instruction, such as a batch that did not decode.
func (r *Runtime[C]) ReportError(op string, err error) {
	if err == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.emitControl(EventError, map[string]any{
		"index":   -1,
		"op":      op,
		"node":    int32(-1),
		"code":    int(CodeOf(err)),
		"message": err.Error(),
	})
}

// pushAudio enqueues ev without blocking. A full ring drops the event and
// counts it; the next drain reports the loss.
func (r *Runtime[C]) pushAudio(ev audioEvent) {
	ev.seq = r.seq.Add(1)
	if !r.audioEvents.Push(ev) {
		r.droppedPending.Add(1)
		r.stats.eventsDropped.Add(1)
	}
}

// DrainEvents returns every event enqueued since the last drain, in enqueue
// order, followed by data relayed from event-emitting nodes. It returns nil
// when there is nothing to report.
func (r *Runtime[C]) DrainEvents() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	out := r.events
	r.events = nil

	r.audioEvents.Drain(func(a audioEvent) {
		out = append(out, a.toEvent())
	})

	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })

	if dropped := r.droppedPending.Swap(0); dropped > 0 {
		out = append(out, Event{
			Seq:  r.seq.Add(1),
			Type: EventOverflow,
			Data: map[string]any{"dropped": dropped},
		})
	}

	emit := func(ev Event) {
		ev.Seq = r.seq.Add(1)
		if ev.Data == nil {
			ev.Data = map[string]any{}
		}

		out = append(out, ev)
	}

	for _, id := range r.graph.sortedIDs() {
		e := r.graph.entries[id]
		if src, ok := e.node.(EventSource); ok {
			src.ProcessEvents(e.settings, emit)
		}
	}

	if len(out) == 0 {
		return nil
	}

	return out
}
