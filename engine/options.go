package engine

import "log/slog"

// BatchPolicy selects what happens to the valid instructions of a batch that
// also contains rejected ones.
type BatchPolicy int

const (
	// BatchAtomic discards the whole batch when any instruction is rejected.
	BatchAtomic BatchPolicy = iota
	// BatchPerInstruction commits every instruction that validated and drops
	// only the rejected ones.
	BatchPerInstruction
)

func (p BatchPolicy) String() string {
	if p == BatchPerInstruction {
		return "per-instruction"
	}

	return "atomic"
}

// Config holds the runtime settings that are not fixed by the host.
type Config struct {
	BatchPolicy    BatchPolicy
	Registry       *Registry
	Logger         *slog.Logger
	MaxChannels    int
	EventQueueSize int
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns the settings used when no options are given.
func DefaultConfig() Config {
	return Config{
		BatchPolicy:    BatchAtomic,
		MaxChannels:    32,
		EventQueueSize: 1024,
	}
}

// WithBatchPolicy sets how partially rejected batches are handled.
func WithBatchPolicy(p BatchPolicy) Option {
	return func(cfg *Config) {
		if p == BatchAtomic || p == BatchPerInstruction {
			cfg.BatchPolicy = p
		}
	}
}

// WithRegistry replaces the built-in node registry. The runtime works on a
// copy, so later RegisterNodeType calls do not leak into r.
func WithRegistry(r *Registry) Option {
	return func(cfg *Config) {
		if r != nil {
			cfg.Registry = r
		}
	}
}

// WithLogger sets the logger for control-side diagnostics. The audio path
// never logs.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

// WithMaxChannels sets the number of host channels the runtime preallocates
// views for. Channels beyond it are ignored.
func WithMaxChannels(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxChannels = n
		}
	}
}

// WithEventQueueSize sets the capacity of the audio-to-control event ring.
func WithEventQueueSize(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.EventQueueSize = n
		}
	}
}

// ApplyOptions applies zero or more options to the default config.
func ApplyOptions(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if cfg.Registry == nil {
		cfg.Registry = DefaultRegistry()
	}

	if cfg.Logger == nil {
		cfg.Logger = NopLogger()
	}

	return cfg
}
