package engine

import (
	"testing"
)

const (
	testSampleRate = 48000.0
	testBlockSize  = 512
)

// panicNode panics on every block once armed through its "armed" property.
type panicNode struct{}

type panicSettings struct {
	Mono
	armed bool
}

func (panicNode) Configure(_ Env, props Props) (Settings, error) {
	armed, err := props.Number("armed", 0)
	if err != nil {
		return nil, err
	}

	return panicSettings{armed: armed != 0}, nil
}

func (panicNode) Process(bc *BlockContext, s Settings) {
	if s.(panicSettings).armed {
		panic("boom")
	}

	for i := range bc.Outputs[0] {
		bc.Outputs[0][i] = 1
	}
}

// stubNode records how often it was configured and processed.
type stubNode struct {
	configureCalls int
	processCalls   int
	lastProps      Props
}

func (s *stubNode) Configure(_ Env, props Props) (Settings, error) {
	s.configureCalls++
	s.lastProps = props

	return Mono{}, nil
}

func (s *stubNode) Process(*BlockContext, Settings) {
	s.processCalls++
}

// ctxNode writes the caller's context value into its output.
type ctxNode struct{}

func (ctxNode) Configure(Env, Props) (Settings, error) { return Mono{}, nil }

func (ctxNode) Process(*BlockContext, Settings) {}

func (ctxNode) ProcessContext(bc *BlockContext, _ Settings, gain float64) {
	for i := range bc.Outputs[0] {
		bc.Outputs[0][i] = gain
	}
}

// testRegistry is the built-in registry plus the test node kinds.
func testRegistry() *Registry {
	r := DefaultRegistry()

	r.MustRegister("panic", func(Env) (Node, error) { return panicNode{}, nil })
	r.MustRegister("stub", func(Env) (Node, error) { return &stubNode{}, nil })
	r.MustRegister("ctx", func(Env) (Node, error) { return ctxNode{}, nil })

	return r
}

func newTestRuntime(t *testing.T, opts ...Option) *Runtime[float64] {
	t.Helper()

	opts = append([]Option{WithRegistry(testRegistry())}, opts...)

	r, err := New[float64](testSampleRate, testBlockSize, opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Cleanup(r.Close)

	return r
}

func mustApply(t *testing.T, r *Runtime[float64], batch ...Instruction) {
	t.Helper()

	if err := r.ApplyInstructions(batch); err != nil {
		t.Fatalf("ApplyInstructions: %v", err)
	}
}

// constRoot builds root(const(value)) with root id and const id+1.
func constRoot(id int32, value float64) []Instruction {
	return []Instruction{
		Create(id, KindRoot),
		Create(id+1, KindConst),
		Set(id+1, "value", value),
		Append(id, id+1, 0),
	}
}

func eventsOfType(events []Event, typ string) []Event {
	var out []Event

	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}

	return out
}
