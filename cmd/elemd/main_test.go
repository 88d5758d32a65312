package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/cwbudde/algo-elem/bridge"
	"github.com/cwbudde/algo-elem/cmd/elemd/internal/store"
	"github.com/cwbudde/algo-elem/engine"
	"github.com/cwbudde/algo-elem/internal/testutil"
)

const stereoConst = `[[0,1,"root"],[0,2,"root"],[3,2,"channel",1],[0,3,"const"],[3,3,"value",0.25],` +
	`[0,4,"const"],[3,4,"value",-0.5],[2,1,3,0],[2,2,4,0],[4,[1,2]],[5]]`

func runCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer

	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return stdout.String(), stderr.String(), err
}

// writeFiles creates a config and a batch file and returns their paths.
func writeFiles(t *testing.T, channels int, batch string) (string, string) {
	t.Helper()

	dir := t.TempDir()
	cfg := filepath.Join(dir, "elemd.yaml")
	batchPath := filepath.Join(dir, "batch.json")

	yaml := "sample_rate: 1000\nblock_size: 16\nlog_level: error\nchannels: " + strconv.Itoa(channels) + "\n"
	if err := os.WriteFile(cfg, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(batchPath, []byte(batch), 0o600); err != nil {
		t.Fatal(err)
	}

	return cfg, batchPath
}

func TestVersion(t *testing.T) {
	t.Parallel()

	stdout, _, err := runCmd(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}

	if !strings.HasPrefix(stdout, "elemd ") {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestRenderText(t *testing.T) {
	t.Parallel()

	cfg, batch := writeFiles(t, 2, stereoConst)

	stdout, _, err := runCmd(t, "render", "-c", cfg, "--env-file", "", "--format", "text", "-n", "20", batch)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 20 {
		t.Fatalf("got %d lines, want 20", len(lines))
	}

	for i, l := range lines {
		if l != "0.25 -0.5" {
			t.Fatalf("line %d = %q", i, l)
		}
	}
}

func TestRenderF32(t *testing.T) {
	t.Parallel()

	cfg, batch := writeFiles(t, 2, stereoConst)
	out := filepath.Join(t.TempDir(), "out.raw")

	if _, _, err := runCmd(t, "render", "-c", cfg, "--env-file", "", "-n", "40", "-o", out, batch); err != nil {
		t.Fatalf("render: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}

	if len(data) != 40*2*4 {
		t.Fatalf("wrote %d bytes, want %d", len(data), 40*2*4)
	}

	samples := make([]float64, len(data)/4)
	for i := range samples {
		samples[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	}

	testutil.RequireSliceNearlyEqual(t, samples[:4], []float64{0.25, -0.5, 0.25, -0.5}, 0)
	testutil.RequireSliceNearlyEqual(t, samples[len(samples)-2:], []float64{0.25, -0.5}, 0)
}

func TestRenderErrors(t *testing.T) {
	t.Parallel()

	cfg, bad := writeFiles(t, 1, `[[1,42]]`)
	_, okBatch := writeFiles(t, 1, stereoConst)

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"rejected batch", []string{bad}, "code 2"},
		{"unknown format", []string{"--format", "wav", okBatch}, "unknown output format"},
		{"missing file", []string{filepath.Join(t.TempDir(), "nope.json")}, "no such file"},
	}

	for _, tc := range cases {
		args := append([]string{"render", "-c", cfg, "--env-file", ""}, tc.args...)

		_, _, err := runCmd(t, args...)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: err = %v, want %q", tc.name, err, tc.want)
		}
	}
}

func TestRenderEvents(t *testing.T) {
	t.Parallel()

	// The meter reports once per block.
	batch := `[[0,1,"root"],[0,2,"meter"],[3,2,"name","m"],[0,3,"const"],[3,3,"value",1],` +
		`[2,2,3,0],[2,1,2,0],[4,[1]],[5]]`
	cfg, path := writeFiles(t, 1, batch)

	_, stderr, err := runCmd(t, "render", "-c", cfg, "--env-file", "", "--events", "-n", "32", "--format", "text", path)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	if !strings.Contains(stderr, `"meter"`) {
		t.Fatalf("stderr = %q", stderr)
	}
}

func TestRestore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	st, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	for _, r := range []store.Resource{
		{Name: "buf", Channels: 1, Frames: 2, SampleRate: 8000, Data: []float64{3, 3}},
		{Name: "torn", Channels: 2, Frames: 2, SampleRate: 8000, Data: []float64{1}},
	} {
		if err := st.PutResource(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	journal := []string{
		`[[0,1,"root"],[0,2,"table"],[3,2,"path","buf"],[0,3,"const"],[2,2,3,0],[2,1,2,0],[4,[1]],[5]]`,
		`[[1,42]]`,
		`[[3,3,"value",0.5],[5]]`,
	}
	for _, b := range journal {
		if err := st.AppendBatch(ctx, []byte(b)); err != nil {
			t.Fatal(err)
		}
	}

	sess := bridge.NewSession(8000, 32)
	defer sess.Close()

	applied, err := restore(ctx, sess, st, engine.NopLogger())
	if err != nil || applied != 2 {
		t.Fatalf("restore = %d, %v", applied, err)
	}

	if data := sess.ProcessQueuedEvents(); len(data) != 0 {
		t.Fatalf("replay left events: %s", data)
	}

	out := testutil.Planar(1, 8)
	sess.Process(testutil.Planar(1, 8), out, 1, 8)
	testutil.RequireSliceNearlyEqual(t, out[0], testutil.Filled(1, 8, 3)[0], 1e-12)

	left, err := st.Resources(ctx)
	if err != nil || len(left) != 1 || left[0].Name != "buf" {
		t.Fatalf("stored resources after restore = %+v, %v", left, err)
	}
}

func TestRestorePerInstruction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	st, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	// The table refers to a resource that is no longer stored.
	journal := []string{
		`[[0,1,"root"],[0,2,"const"],[3,2,"value",0.25],[2,1,2,0],[0,3,"table"],[3,3,"path","gone"],[4,[1]],[5]]`,
	}
	for _, b := range journal {
		if err := st.AppendBatch(ctx, []byte(b)); err != nil {
			t.Fatal(err)
		}
	}

	sess := bridge.NewSession(8000, 32,
		bridge.WithEngineOptions(engine.WithBatchPolicy(engine.BatchPerInstruction)))
	defer sess.Close()

	applied, err := restore(ctx, sess, st, engine.NopLogger())
	if err != nil || applied != 1 {
		t.Fatalf("restore = %d, %v", applied, err)
	}

	out := testutil.Planar(1, 8)
	sess.Process(testutil.Planar(1, 8), out, 1, 8)
	testutil.RequireSliceNearlyEqual(t, out[0], testutil.Filled(1, 8, 0.25)[0], 1e-12)
}

func TestPlayTone(t *testing.T) {
	t.Parallel()

	sess := bridge.NewSession(1000, 64)
	defer sess.Close()

	if code := playTone(context.Background(), sess, 2, nil); code != 0 {
		t.Fatalf("playTone = %d", code)
	}

	out := testutil.Planar(2, 64)
	sess.Process(testutil.Planar(2, 64), out, 2, 64)

	testutil.RequireFinite(t, out)
	testutil.RequireSliceNearlyEqual(t, out[1], out[0], 0)

	peak := 0.0
	for _, v := range out[0] {
		peak = max(peak, math.Abs(v))
	}

	if peak < 0.05 || peak > 0.1+1e-9 {
		t.Fatalf("peak = %v, want about 0.1", peak)
	}
}
