package bridge

import (
	"log/slog"

	"github.com/cwbudde/algo-elem/codec"
	"github.com/cwbudde/algo-elem/engine"
)

// DefaultMaxEventBatchBytes bounds one encoded event batch.
const DefaultMaxEventBatchBytes = 1 << 20

// Config holds the bridge settings.
type Config struct {
	Codec              codec.Codec
	MaxEventBatchBytes int
	Logger             *slog.Logger
	Engine             []engine.Option
}

// Option mutates a Config.
type Option func(*Config)

// WithCodec sets the encoding of instruction and event batches.
func WithCodec(c codec.Codec) Option {
	return func(cfg *Config) {
		if c != nil {
			cfg.Codec = c
		}
	}
}

// WithMaxEventBatchBytes bounds the size of one drained event batch. Events
// that do not fit are carried over to the next drain.
func WithMaxEventBatchBytes(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxEventBatchBytes = n
		}
	}
}

// WithLogger sets the logger of the bridge and of its runtime.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *Config) {
		if l != nil {
			cfg.Logger = l
		}
	}
}

// WithEngineOptions forwards options to the runtime.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(cfg *Config) {
		cfg.Engine = append(cfg.Engine, opts...)
	}
}

func applyOptions(opts []Option) Config {
	cfg := Config{
		Codec:              codec.JSON,
		MaxEventBatchBytes: DefaultMaxEventBatchBytes,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if cfg.Logger == nil {
		cfg.Logger = engine.NopLogger()
	}

	return cfg
}
