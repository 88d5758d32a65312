package main

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-elem/bridge"
	"github.com/cwbudde/algo-elem/cmd/elemd/internal/config"
)

var errUnknownFormat = errors.New("unknown output format")

type renderFlags struct {
	frames int
	out    string
	format string
	events bool
}

func newRenderCmd(root *rootFlags) *cobra.Command {
	flags := &renderFlags{}

	cmd := &cobra.Command{
		Use:   "render <batch-file>",
		Short: "Apply an instruction batch and write the rendered audio",
		Long: `Apply an instruction batch, encoded in the configured codec, to a fresh
session and render it without a clock. Configured samples are registered
first. Output is interleaved, as raw little-endian float32 ("f32le") or one
frame per line ("text").`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}

			batch, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()

			if flags.out != "" && flags.out != "-" {
				f, err := os.Create(flags.out)
				if err != nil {
					return err
				}
				defer f.Close()

				w = f
			}

			return render(cfg, batch, flags, w, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().IntVarP(&flags.frames, "frames", "n", 0, "frames to render (default: one second)")
	cmd.Flags().StringVarP(&flags.out, "out", "o", "-", "output file")
	cmd.Flags().StringVar(&flags.format, "format", "f32le", "output format: f32le or text")
	cmd.Flags().BoolVar(&flags.events, "events", false, "write drained events to stderr")

	return cmd
}

func render(cfg config.Config, batch []byte, flags *renderFlags, w, events io.Writer) error {
	if flags.format != "f32le" && flags.format != "text" {
		return fmt.Errorf("%w: %q", errUnknownFormat, flags.format)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	sess := bridge.NewSession(cfg.SampleRate, cfg.BlockSize, cfg.BridgeOptions(log)...)
	if sess == nil {
		return fmt.Errorf("invalid session parameters: sample rate %v, block size %d", cfg.SampleRate, cfg.BlockSize)
	}
	defer sess.Close()

	if err := loadSamples(sess, cfg.Samples, log); err != nil {
		return err
	}

	code := sess.ApplyInstructions(batch)

	if flags.events {
		if data := sess.ProcessQueuedEvents(); len(data) > 0 {
			fmt.Fprintf(events, "%s\n", data)
		}
	}

	if code != 0 {
		return fmt.Errorf("batch rejected: code %d", code)
	}

	frames := flags.frames
	if frames <= 0 {
		frames = int(cfg.SampleRate)
	}

	channels := cfg.Channels
	bw := bufio.NewWriter(w)

	in := make([]float64, cfg.BlockSize*channels)
	out := make([]float64, cfg.BlockSize*channels)

	for done := 0; done < frames; {
		n := min(cfg.BlockSize, frames-done)

		sess.ProcessInterleaved(in[:n*channels], out[:n*channels], channels, n)

		if err := writeFrames(bw, out[:n*channels], channels, flags.format); err != nil {
			return err
		}

		done += n
	}

	if flags.events {
		if data := sess.ProcessQueuedEvents(); len(data) > 0 {
			fmt.Fprintf(events, "%s\n", data)
		}
	}

	return bw.Flush()
}

func writeFrames(w *bufio.Writer, samples []float64, channels int, format string) error {
	if format == "f32le" {
		var buf [4]byte

		for _, v := range samples {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(float32(v)))

			if _, err := w.Write(buf[:]); err != nil {
				return err
			}
		}

		return nil
	}

	var line []byte

	for i := 0; i < len(samples); i += channels {
		line = line[:0]

		for c := range channels {
			if c > 0 {
				line = append(line, ' ')
			}

			line = strconv.AppendFloat(line, samples[i+c], 'g', -1, 64)
		}

		line = append(line, '\n')

		if _, err := w.Write(line); err != nil {
			return err
		}
	}

	return nil
}
