// Package codec encodes instruction batches and drained event batches for
// transport between the control path and a Runtime.
//
// Both encodings wrap their payload in a versioned envelope:
//
//	{"version":1,"instructions":[[0,1,"root"], ...]}
//	{"version":1,"id":"01J...","events":[{"seq":1,"type":"error","event":{...}}]}
package codec

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cwbudde/algo-elem/engine"
)

// Version is the envelope version written by every codec.
const Version = 1

var (
	// ErrMalformed is returned for payloads that do not decode into an
	// envelope or a tuple array.
	ErrMalformed = errors.New("codec: malformed payload")
	// ErrUnsupportedVersion is returned for envelopes with an unknown version.
	ErrUnsupportedVersion = errors.New("codec: unsupported version")
)

// Codec converts batches to and from bytes.
type Codec interface {
	Name() string
	DecodeInstructions(data []byte) ([]engine.Instruction, error)
	EncodeInstructions(batch []engine.Instruction) ([]byte, error)
	// EncodeEvents encodes as many leading events as fit in limit bytes
	// (limit <= 0 means unlimited) and reports how many were included.
	EncodeEvents(id string, events []engine.Event, limit int) ([]byte, int, error)
	DecodeEvents(data []byte) (EventBatch, error)
}

// EventRecord is the wire form of one engine.Event.
type EventRecord struct {
	Seq   uint64         `json:"seq"   msgpack:"seq"`
	Type  string         `json:"type"  msgpack:"type"`
	Event map[string]any `json:"event" msgpack:"event"`
}

// EventBatch is the wire form of a drained batch.
type EventBatch struct {
	Version int           `json:"version" msgpack:"version"`
	ID      string        `json:"id"      msgpack:"id"`
	Events  []EventRecord `json:"events"  msgpack:"events"`
}

type instructionEnvelope struct {
	Version      int   `json:"version"      msgpack:"version"`
	Instructions []any `json:"instructions" msgpack:"instructions"`
}

// ByName returns the codec registered under name ("json" or "msgpack").
func ByName(name string) (Codec, error) {
	switch name {
	case "", JSON.Name():
		return JSON, nil
	case MsgPack.Name():
		return MsgPack, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}

func toRecords(events []engine.Event) []EventRecord {
	out := make([]EventRecord, len(events))
	for i, ev := range events {
		out[i] = EventRecord{Seq: ev.Seq, Type: ev.Type, Event: ev.Data}
	}

	return out
}

func tuples(batch []engine.Instruction) []any {
	out := make([]any, len(batch))
	for i, in := range batch {
		out[i] = in.Tuple()
	}

	return out
}

// instructionsFrom accepts either an envelope map or a bare tuple array.
func instructionsFrom(raw any) ([]engine.Instruction, error) {
	switch v := raw.(type) {
	case []any:
		return parse(v)
	case map[string]any:
		version, ok := v["version"].(float64)
		if !ok {
			return nil, fmt.Errorf("%w: missing version", ErrMalformed)
		}

		if version != Version {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedVersion, version)
		}

		list, ok := v["instructions"].([]any)
		if !ok {
			return nil, fmt.Errorf("%w: instructions must be an array", ErrMalformed)
		}

		return parse(list)
	default:
		return nil, fmt.Errorf("%w: unexpected %T", ErrMalformed, raw)
	}
}

func parse(list []any) ([]engine.Instruction, error) {
	batch, err := engine.ParseBatch(list)
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}

	return batch, nil
}

// encodeLimited finds the longest prefix of events whose encoding fits in
// limit bytes.
func encodeLimited(
	encode func(batch EventBatch) ([]byte, error),
	id string,
	events []engine.Event,
	limit int,
) ([]byte, int, error) {
	records := toRecords(events)
	batch := EventBatch{Version: Version, ID: id, Events: records}

	data, err := encode(batch)
	if err != nil || limit <= 0 || len(data) <= limit {
		return data, len(records), err
	}

	var encErr error

	n := sort.Search(len(records)+1, func(n int) bool {
		batch.Events = records[:n]

		b, err := encode(batch)
		if err != nil {
			encErr = err
			return true
		}

		return len(b) > limit
	}) - 1

	if encErr != nil {
		return nil, 0, encErr
	}

	if n < 0 {
		n = 0
	}

	batch.Events = records[:n]

	data, err = encode(batch)

	return data, n, err
}
