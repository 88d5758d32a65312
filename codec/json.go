package codec

import (
	"fmt"
	"math"

	"github.com/bytedance/sonic"

	"github.com/cwbudde/algo-elem/engine"
)

var jsonConfig = sonic.ConfigStd

type jsonCodec struct{}

// JSON is the default codec. Non-finite numbers in event payloads are
// written as null since JSON cannot represent them.
var JSON Codec = jsonCodec{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) DecodeInstructions(data []byte) ([]engine.Instruction, error) {
	var raw any
	if err := jsonConfig.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: json: %w", ErrMalformed, err)
	}

	return instructionsFrom(raw)
}

func (jsonCodec) EncodeInstructions(batch []engine.Instruction) ([]byte, error) {
	data, err := jsonConfig.Marshal(instructionEnvelope{Version: Version, Instructions: tuples(batch)})
	if err != nil {
		return nil, fmt.Errorf("codec: json: %w", err)
	}

	return data, nil
}

func (jsonCodec) EncodeEvents(id string, events []engine.Event, limit int) ([]byte, int, error) {
	safe := make([]engine.Event, len(events))
	for i, ev := range events {
		safe[i] = engine.Event{Seq: ev.Seq, Type: ev.Type, Data: finiteMap(ev.Data)}
	}

	data, n, err := encodeLimited(func(b EventBatch) ([]byte, error) {
		return jsonConfig.Marshal(b)
	}, id, safe, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("codec: json: %w", err)
	}

	return data, n, nil
}

func (jsonCodec) DecodeEvents(data []byte) (EventBatch, error) {
	var batch EventBatch
	if err := jsonConfig.Unmarshal(data, &batch); err != nil {
		return EventBatch{}, fmt.Errorf("%w: json: %w", ErrMalformed, err)
	}

	if batch.Version != Version {
		return EventBatch{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, batch.Version)
	}

	return batch, nil
}

func finiteMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = finite(v)
	}

	return out
}

func finite(v any) any {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}

		return t
	case []float64:
		if allFinite(t) {
			return t
		}

		out := make([]any, len(t))
		for i, f := range t {
			out[i] = finite(f)
		}

		return out
	case map[string]any:
		return finiteMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = finite(item)
		}

		return out
	default:
		return v
	}
}

func allFinite(s []float64) bool {
	for _, f := range s {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}

	return true
}
