package engine

import (
	"errors"
	"slices"
	"testing"
)

func dummyFactory(Env) (Node, error) {
	return &stubNode{}, nil
}

func TestRegistryRegister(t *testing.T) {
	t.Parallel()

	t.Run("registers and looks up factory", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()

		err := r.Register("osc", dummyFactory)
		if err != nil {
			t.Fatalf("Register returned unexpected error: %v", err)
		}

		if r.Lookup("osc") == nil {
			t.Fatal("Lookup returned nil for registered kind")
		}
	})

	t.Run("rejects empty kind", func(t *testing.T) {
		t.Parallel()

		if err := NewRegistry().Register("", dummyFactory); err == nil {
			t.Fatal("expected error for empty kind")
		}
	})

	t.Run("rejects nil factory", func(t *testing.T) {
		t.Parallel()

		if err := NewRegistry().Register("osc", nil); err == nil {
			t.Fatal("expected error for nil factory")
		}
	})

	t.Run("rejects duplicate registration", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		_ = r.Register("osc", dummyFactory)

		err := r.Register("osc", dummyFactory)
		if !errors.Is(err, ErrNodeTypeAlreadyExists) {
			t.Errorf("expected ErrNodeTypeAlreadyExists, got: %v", err)
		}
	})
}

func TestRegistryMustRegisterPanicsOnDuplicate(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.MustRegister("osc", dummyFactory)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate MustRegister")
		}
	}()

	r.MustRegister("osc", dummyFactory)
}

func TestRegistryCloneIsIndependent(t *testing.T) {
	t.Parallel()

	base := NewRegistry()
	base.MustRegister("a", dummyFactory)

	clone := base.Clone()
	clone.MustRegister("b", dummyFactory)

	if base.Lookup("b") != nil {
		t.Fatal("registering on a clone leaked into the original")
	}

	if !slices.Equal(clone.Kinds(), []string{"a", "b"}) {
		t.Fatalf("Kinds() = %v", clone.Kinds())
	}
}

func TestDefaultRegistryHasBuiltins(t *testing.T) {
	t.Parallel()

	r := DefaultRegistry()

	for _, kind := range []string{
		KindRoot, KindConst, KindIn, KindSR, KindTime,
		KindAdd, KindSub, KindMul, KindDiv,
		KindSin, KindCos, KindTanh, KindLe, KindGe,
		KindPhasor, KindTable, KindSample, KindMeter, KindFFT, KindCapture,
		KindBiquad, KindLowpass, KindHighpass, KindBandpass, KindNotch, KindAllpass,
		KindZ, KindSDelay, KindDelay,
	} {
		f := r.Lookup(kind)
		if f == nil {
			t.Fatalf("missing built-in %q", kind)
		}

		node, err := f(Env{SampleRate: 48000, BlockSize: 64})
		if err != nil || node == nil {
			t.Fatalf("factory %q: %v", kind, err)
		}

		if _, err := node.Configure(Env{SampleRate: 48000, BlockSize: 64}, Props{}); err != nil {
			t.Fatalf("configure %q with empty props: %v", kind, err)
		}
	}
}
