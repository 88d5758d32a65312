package server

import (
	"context"
	"time"

	"github.com/cwbudde/algo-elem/bridge"
)

// NullClock renders a session at real-time pace with no audio device
// attached. Output is discarded unless OnBlock is set.
type NullClock struct {
	Session  *bridge.Session
	Channels int
	// OnBlock sees each rendered block. The slices are reused.
	OnBlock func(out [][]float64)
}

// Period is the wall-clock duration of one block.
func (c NullClock) Period() time.Duration {
	if c.Session == nil {
		return 0
	}

	rt := c.Session.Runtime()
	if rt == nil || rt.SampleRate() <= 0 {
		return 0
	}

	return time.Duration(float64(time.Second) * float64(rt.BlockSize()) / rt.SampleRate())
}

// Run processes one block per Period until ctx is done.
func (c NullClock) Run(ctx context.Context) {
	period := c.Period()
	if period <= 0 {
		return
	}

	channels := max(c.Channels, 1)
	frames := c.Session.Runtime().BlockSize()

	in := make([][]float64, channels)
	out := make([][]float64, channels)

	for i := range channels {
		in[i] = make([]float64, frames)
		out[i] = make([]float64, frames)
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		c.Session.Process(in, out, channels, frames)

		if c.OnBlock != nil {
			c.OnBlock(out)
		}
	}
}
