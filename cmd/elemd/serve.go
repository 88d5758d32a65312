package main

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-elem/bridge"
	"github.com/cwbudde/algo-elem/cmd/elemd/internal/config"
	"github.com/cwbudde/algo-elem/cmd/elemd/internal/loader"
	"github.com/cwbudde/algo-elem/cmd/elemd/internal/server"
	"github.com/cwbudde/algo-elem/cmd/elemd/internal/store"
	"github.com/cwbudde/algo-elem/engine"
	"github.com/cwbudde/algo-elem/metrics"
	"github.com/cwbudde/algo-elem/reconcile"
)

const defaultToneHz = 110

type serveFlags struct {
	listen      string
	printEvents bool
	reset       bool
}

func newServeCmd(root *rootFlags) *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a session and serve websocket clients",
		Long: `Run a session paced by a null clock and accept control clients on a
websocket. With store_path set, registered resources and applied batches are
persisted and replayed on the next start. A fresh session plays a quiet
110 Hz tone on every channel.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}

			if flags.listen != "" {
				cfg.Listen = flags.listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, flags)
		},
	}

	cmd.Flags().StringVar(&flags.listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&flags.printEvents, "print-events", false, "write drained event batches to stdout")
	cmd.Flags().BoolVar(&flags.reset, "reset", false, "discard the stored batch journal before starting")

	return cmd
}

func serve(ctx context.Context, cfg config.Config, flags *serveFlags) error {
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	sess := bridge.NewSession(cfg.SampleRate, cfg.BlockSize, cfg.BridgeOptions(log)...)
	if sess == nil {
		return fmt.Errorf("invalid session parameters: sample rate %v, block size %d", cfg.SampleRate, cfg.BlockSize)
	}
	defer sess.Close()

	opts := server.Options{Logger: log, PollInterval: cfg.PollInterval}

	var st *store.Store

	if cfg.StorePath != "" {
		st, err = store.Open(store.Options{Dir: cfg.StorePath, Logger: log})
		if err != nil {
			return err
		}
		defer st.Close()

		if flags.reset {
			if err := st.ClearBatches(ctx); err != nil {
				return err
			}
		}

		opts.Journal = st
	}

	if err := loadSamples(sess, cfg.Samples, log); err != nil {
		return err
	}

	replayed := 0

	if st != nil {
		if replayed, err = restore(ctx, sess, st, log); err != nil {
			return err
		}
	}

	if replayed == 0 {
		if code := playTone(ctx, sess, cfg.Channels, opts.Journal); code != 0 {
			log.Warn("elemd: default graph rejected", "code", code)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		metrics.NewCollector(sess, prometheus.Labels{"session": "main"}),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts.Gatherer = reg

	if flags.printEvents {
		opts.OnEvents = func(batch []byte) {
			fmt.Fprintf(os.Stdout, "%s\n", batch)
		}
	}

	go server.NullClock{Session: sess, Channels: cfg.Channels}.Run(ctx)

	return server.New(sess, opts).Serve(ctx, cfg.Listen)
}

// resourceSource is the part of the store restore reads.
type resourceSource interface {
	Resources(ctx context.Context) ([]store.Resource, error)
	DeleteResource(ctx context.Context, name string) error
	Batches(ctx context.Context) ([][]byte, error)
}

// restore registers stored resources, removing any the session refuses, and
// replays the batch journal. It returns the number of batches that took
// effect.
func restore(ctx context.Context, sess *bridge.Session, src resourceSource, log *slog.Logger) (int, error) {
	resources, err := src.Resources(ctx)
	if err != nil {
		return 0, err
	}

	rate := sess.Runtime().SampleRate()

	for _, r := range resources {
		if r.SampleRate != 0 && r.SampleRate != rate {
			log.Warn("elemd: stored resource sample rate differs from session",
				"name", r.Name, "resource", r.SampleRate, "session", rate)
		}

		code := sess.AddSharedResource(r.Name, r.Channels, r.Frames, r.Data)
		if code == 0 {
			continue
		}

		log.Warn("elemd: stored resource rejected, removing", "name", r.Name, "code", code)

		if err := src.DeleteResource(ctx, r.Name); err != nil {
			log.Warn("elemd: remove stored resource", "name", r.Name, "err", err)
		}
	}

	batches, err := src.Batches(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0

	for i, b := range batches {
		code, retained := sess.ApplyRetained(b)
		if code != 0 {
			log.Warn("elemd: journaled batch rejected", "index", i, "code", code)
		}

		if len(retained) > 0 {
			applied++
		}
	}

	// Replay errors were logged; the events would only confuse clients.
	_ = sess.ProcessQueuedEvents()

	log.Info("elemd: session restored", "resources", len(resources), "batches", applied)

	return applied, nil
}

// loadSamples decodes each configured file and registers it under its name.
func loadSamples(sess *bridge.Session, samples map[string]string, log *slog.Logger) error {
	rate := sess.Runtime().SampleRate()

	for _, name := range slices.Sorted(maps.Keys(samples)) {
		path := samples[name]

		s, err := loader.File(path)
		if err != nil {
			return err
		}

		if s.SampleRate != rate {
			log.Warn("elemd: sample rate differs from session",
				"name", name, "sample", s.SampleRate, "session", rate)
		}

		if code := sess.AddSharedResource(name, s.Channels, s.Frames, s.Data); code != 0 {
			return fmt.Errorf("register sample %q: code %d", name, code)
		}

		log.Info("elemd: sample loaded", "name", name, "path", path, "frames", s.Frames)
	}

	return nil
}

// playTone mounts a 110 Hz cycle at -20 dB on every channel.
func playTone(ctx context.Context, sess *bridge.Session, channels int, journal server.Journal) int {
	tone := reconcile.Mul(reconcile.Const(0.1), reconcile.Cycle(reconcile.Const(defaultToneHz)))

	roots := make([]*reconcile.Node, max(channels, 1))
	for ch := range roots {
		roots[ch] = reconcile.RootOn(ch, tone)
	}

	batch, err := sess.Codec().EncodeInstructions(reconcile.NewReconciler().Render(roots...))
	if err != nil {
		return int(engine.InvalidInstructionFormat)
	}

	code := sess.ApplyInstructions(batch)
	if code == 0 && journal != nil {
		_ = journal.AppendBatch(ctx, batch)
	}

	return code
}
