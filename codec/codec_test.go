package codec

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/cwbudde/algo-elem/engine"
)

func sampleBatch() []engine.Instruction {
	return []engine.Instruction{
		engine.Create(1, engine.KindRoot),
		engine.Create(2, engine.KindConst),
		engine.Set(2, "value", 0.5),
		engine.Set(2, "label", "dc"),
		engine.Append(1, 2, 0),
		engine.Activate(1),
		engine.Commit(),
	}
}

func TestCodecsCarryInstructions(t *testing.T) {
	t.Parallel()

	for _, c := range []Codec{JSON, MsgPack} {
		t.Run(c.Name(), func(t *testing.T) {
			t.Parallel()

			data, err := c.EncodeInstructions(sampleBatch())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got, err := c.DecodeInstructions(data)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !reflect.DeepEqual(got, sampleBatch()) {
				t.Fatalf("got %+v", got)
			}
		})
	}
}

func TestJSONAcceptsBareTupleArray(t *testing.T) {
	t.Parallel()

	got, err := JSON.DecodeInstructions([]byte(`[[0,1,"root"],[0,2,"sin"],[2,1,2,0],[4,[1]],[5]]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []engine.Instruction{
		engine.Create(1, "root"),
		engine.Create(2, "sin"),
		engine.Append(1, 2, 0),
		engine.Activate(1),
		engine.Commit(),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v", got)
	}
}

func TestDecodeInstructionsErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		target  error
	}{
		{name: "not json", payload: `{`, target: ErrMalformed},
		{name: "scalar", payload: `42`, target: ErrMalformed},
		{name: "missing version", payload: `{"instructions":[]}`, target: ErrMalformed},
		{name: "future version", payload: `{"version":2,"instructions":[]}`, target: ErrUnsupportedVersion},
		{name: "instructions not array", payload: `{"version":1,"instructions":{}}`, target: ErrMalformed},
		{name: "bad tuple", payload: `[[0,1]]`, target: engine.ErrInvalidInstructionFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := JSON.DecodeInstructions([]byte(tt.payload))
			if !errors.Is(err, tt.target) {
				t.Fatalf("expected %v, got %v", tt.target, err)
			}
		})
	}

	if _, err := MsgPack.DecodeInstructions([]byte{0xc1}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("msgpack: expected ErrMalformed, got %v", err)
	}
}

func TestEncodeEvents(t *testing.T) {
	t.Parallel()

	events := []engine.Event{
		{Seq: 1, Type: engine.EventError, Data: map[string]any{"code": 2, "message": "node not found"}},
		{Seq: 2, Type: engine.EventMeter, Data: map[string]any{"source": "out", "min": -0.5, "max": 0.5}},
	}

	for _, c := range []Codec{JSON, MsgPack} {
		t.Run(c.Name(), func(t *testing.T) {
			t.Parallel()

			data, n, err := c.EncodeEvents("batch-1", events, 0)
			if err != nil || n != 2 {
				t.Fatalf("EncodeEvents = %d, %v", n, err)
			}

			batch, err := c.DecodeEvents(data)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if batch.Version != Version || batch.ID != "batch-1" || len(batch.Events) != 2 {
				t.Fatalf("unexpected batch: %+v", batch)
			}

			if batch.Events[0].Event["code"] != 2.0 || batch.Events[1].Event["max"] != 0.5 {
				t.Fatalf("unexpected payloads: %+v", batch.Events)
			}
		})
	}
}

func TestEncodeEventsTruncates(t *testing.T) {
	t.Parallel()

	events := make([]engine.Event, 50)
	for i := range events {
		events[i] = engine.Event{Seq: uint64(i + 1), Type: engine.EventError, Data: map[string]any{"message": "xxxxxxxxxxxxxxxx"}}
	}

	for _, c := range []Codec{JSON, MsgPack} {
		t.Run(c.Name(), func(t *testing.T) {
			t.Parallel()

			full, _, err := c.EncodeEvents("id", events, 0)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			limit := len(full) / 2

			data, n, err := c.EncodeEvents("id", events, limit)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if n <= 0 || n >= len(events) || len(data) > limit {
				t.Fatalf("n = %d, len = %d, limit = %d", n, len(data), limit)
			}

			more, _, _ := c.EncodeEvents("id", events[:n+1], 0)
			if len(more) <= limit {
				t.Fatalf("one more event would still fit: %d <= %d", len(more), limit)
			}

			batch, err := c.DecodeEvents(data)
			if err != nil || len(batch.Events) != n || batch.Events[n-1].Seq != uint64(n) {
				t.Fatalf("decoded %+v, %v", batch, err)
			}
		})
	}
}

func TestJSONWritesNonFiniteAsNull(t *testing.T) {
	t.Parallel()

	events := []engine.Event{{Seq: 1, Type: engine.EventMeter, Data: map[string]any{
		"min":  math.Inf(-1),
		"max":  1.0,
		"bins": []float64{1, math.NaN()},
	}}}

	data, _, err := JSON.EncodeEvents("id", events, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	batch, err := JSON.DecodeEvents(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev := batch.Events[0].Event
	if ev["min"] != nil || ev["max"] != 1.0 {
		t.Fatalf("unexpected payload: %+v", ev)
	}

	if bins := ev["bins"].([]any); bins[0] != 1.0 || bins[1] != nil {
		t.Fatalf("unexpected bins: %+v", bins)
	}
}

func TestByName(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]Codec{"": JSON, "json": JSON, "msgpack": MsgPack} {
		got, err := ByName(name)
		if err != nil || got != want {
			t.Fatalf("ByName(%q) = %v, %v", name, got, err)
		}
	}

	if _, err := ByName("xml"); err == nil {
		t.Fatal("expected error for unknown codec")
	}
}
