package codec

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/cwbudde/algo-elem/engine"
)

type msgpackCodec struct{}

// MsgPack is a compact binary codec. Decoded integers of any width are
// normalized to float64 so both codecs hand the engine identical values.
var MsgPack Codec = msgpackCodec{}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) DecodeInstructions(data []byte) ([]engine.Instruction, error) {
	var raw any
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: msgpack: %w", ErrMalformed, err)
	}

	return instructionsFrom(normalize(raw))
}

func (msgpackCodec) EncodeInstructions(batch []engine.Instruction) ([]byte, error) {
	data, err := msgpack.Marshal(instructionEnvelope{Version: Version, Instructions: tuples(batch)})
	if err != nil {
		return nil, fmt.Errorf("codec: msgpack: %w", err)
	}

	return data, nil
}

func (msgpackCodec) EncodeEvents(id string, events []engine.Event, limit int) ([]byte, int, error) {
	data, n, err := encodeLimited(func(b EventBatch) ([]byte, error) {
		return msgpack.Marshal(b)
	}, id, events, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("codec: msgpack: %w", err)
	}

	return data, n, nil
}

func (msgpackCodec) DecodeEvents(data []byte) (EventBatch, error) {
	var batch EventBatch
	if err := msgpack.Unmarshal(data, &batch); err != nil {
		return EventBatch{}, fmt.Errorf("%w: msgpack: %w", ErrMalformed, err)
	}

	if batch.Version != Version {
		return EventBatch{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, batch.Version)
	}

	for i := range batch.Events {
		if m, ok := normalize(batch.Events[i].Event).(map[string]any); ok {
			batch.Events[i].Event = m
		}
	}

	return batch, nil
}

//nolint:cyclop
func normalize(v any) any {
	switch t := v.(type) {
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case int:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case uint:
		return float64(t)
	case float32:
		return float64(t)
	case []any:
		for i := range t {
			t[i] = normalize(t[i])
		}

		return t
	case map[string]any:
		for k, item := range t {
			t[k] = normalize(item)
		}

		return t
	default:
		return v
	}
}
