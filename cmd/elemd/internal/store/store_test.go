package store

import (
	"context"
	"reflect"
	"testing"
)

func openMemory(t *testing.T) *Store {
	t.Helper()

	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestResources(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openMemory(t)

	kick := Resource{Name: "kick", Channels: 1, Frames: 3, SampleRate: 44100, Data: []float64{1, 0.5, 0}}
	pad := Resource{Name: "pad", Channels: 2, Frames: 1, SampleRate: 48000, Data: []float64{0.1, 0.2}}

	for _, r := range []Resource{pad, kick} {
		if err := s.PutResource(ctx, r); err != nil {
			t.Fatalf("put %s: %v", r.Name, err)
		}
	}

	all, err := s.Resources(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if !reflect.DeepEqual(all, []Resource{kick, pad}) {
		t.Fatalf("Resources = %+v", all)
	}

	if err := s.DeleteResource(ctx, "kick"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if err := s.DeleteResource(ctx, "kick"); err != nil {
		t.Fatalf("second delete: %v", err)
	}

	if all, err := s.Resources(ctx); err != nil || len(all) != 1 || all[0].Name != "pad" {
		t.Fatalf("Resources after delete = %+v, %v", all, err)
	}
}

func TestBatchJournal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := openMemory(t)

	batches := []string{`[[0,1,"root"]]`, `[[0,2,"const"],[2,1,2,0]]`, `[[4,[1]]]`}
	for _, b := range batches {
		if err := s.AppendBatch(ctx, []byte(b)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.Batches(ctx)
	if err != nil || len(got) != len(batches) {
		t.Fatalf("Batches = %q, %v", got, err)
	}

	for i, b := range batches {
		if string(got[i]) != b {
			t.Fatalf("batch %d = %s, want %s", i, got[i], b)
		}
	}

	// Resources live under their own prefix.
	if all, err := s.Resources(ctx); err != nil || len(all) != 0 {
		t.Fatalf("Resources = %+v, %v", all, err)
	}

	if err := s.ClearBatches(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	if got, err := s.Batches(ctx); err != nil || len(got) != 0 {
		t.Fatalf("Batches after clear = %q, %v", got, err)
	}
}

func TestOnDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := s.PutResource(ctx, Resource{Name: "a", Channels: 1, Frames: 1, Data: []float64{1}}); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if all, err := s.Resources(ctx); err != nil || len(all) != 1 || all[0].Data[0] != 1 {
		t.Fatalf("Resources = %+v, %v", all, err)
	}
}

func TestOpenRequiresDir(t *testing.T) {
	t.Parallel()

	if _, err := Open(Options{}); err == nil {
		t.Fatal("expected error without Dir")
	}
}
