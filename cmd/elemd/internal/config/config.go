// Package config loads elemd settings from a YAML file, a .env file and
// ELEMD_* environment variables, in increasing order of precedence. Command
// line flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/cwbudde/algo-elem/bridge"
	"github.com/cwbudde/algo-elem/codec"
	"github.com/cwbudde/algo-elem/engine"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ELEMD_"

// Config is the elemd configuration.
type Config struct {
	Listen             string            `yaml:"listen"`
	SampleRate         float64           `yaml:"sample_rate"`
	BlockSize          int               `yaml:"block_size"`
	Channels           int               `yaml:"channels"`
	Codec              string            `yaml:"codec"`
	BatchPolicy        string            `yaml:"batch_policy"`
	EventQueueSize     int               `yaml:"event_queue_size"`
	MaxEventBatchBytes int               `yaml:"max_event_batch_bytes"`
	PollInterval       time.Duration     `yaml:"poll_interval"`
	StorePath          string            `yaml:"store_path"`
	LogLevel           string            `yaml:"log_level"`
	Samples            map[string]string `yaml:"samples"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Listen:             "127.0.0.1:8080",
		SampleRate:         44100,
		BlockSize:          512,
		Channels:           2,
		Codec:              codec.JSON.Name(),
		BatchPolicy:        engine.BatchAtomic.String(),
		EventQueueSize:     1024,
		MaxEventBatchBytes: bridge.DefaultMaxEventBatchBytes,
		PollInterval:       time.Second / 30,
		LogLevel:           "info",
	}
}

// Load reads path (optional) and envFile (optional) on top of Default and
// applies ELEMD_* variables from the process environment. Variables already
// set in the environment win over the .env file. Missing files named
// explicitly are an error, except envFile ".env".
func Load(path, envFile string) (Config, error) {
	return load(path, envFile, os.LookupEnv)
}

func load(path, envFile string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	dotenv := map[string]string{}

	if envFile != "" {
		m, err := godotenv.Read(envFile)

		switch {
		case err == nil:
			dotenv = m
		case errors.Is(err, fs.ErrNotExist) && envFile == ".env":
		default:
			return Config{}, fmt.Errorf("config: read %s: %w", envFile, err)
		}
	}

	get := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}

		v, ok := dotenv[key]

		return v, ok
	}

	if err := cfg.applyEnv(get); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

//nolint:cyclop
func (c *Config) applyEnv(get func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := get(EnvPrefix + name); ok {
			*dst = v
		}
	}

	num := func(name string, dst *int) error {
		v, ok := get(EnvPrefix + name)
		if !ok {
			return nil
		}

		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err)
		}

		*dst = n

		return nil
	}

	str("LISTEN", &c.Listen)
	str("CODEC", &c.Codec)
	str("BATCH_POLICY", &c.BatchPolicy)
	str("STORE_PATH", &c.StorePath)
	str("LOG_LEVEL", &c.LogLevel)

	if v, ok := get(EnvPrefix + "SAMPLE_RATE"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("config: %sSAMPLE_RATE: %w", EnvPrefix, err)
		}

		c.SampleRate = f
	}

	if v, ok := get(EnvPrefix + "POLL_INTERVAL"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %sPOLL_INTERVAL: %w", EnvPrefix, err)
		}

		c.PollInterval = d
	}

	for name, dst := range map[string]*int{
		"BLOCK_SIZE":            &c.BlockSize,
		"CHANNELS":              &c.Channels,
		"EVENT_QUEUE_SIZE":      &c.EventQueueSize,
		"MAX_EVENT_BATCH_BYTES": &c.MaxEventBatchBytes,
	} {
		if err := num(name, dst); err != nil {
			return err
		}
	}

	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0 || math.IsNaN(c.SampleRate) || math.IsInf(c.SampleRate, 0):
		return fmt.Errorf("config: sample_rate must be positive, got %v", c.SampleRate)
	case c.BlockSize <= 0:
		return fmt.Errorf("config: block_size must be positive, got %d", c.BlockSize)
	case c.Channels <= 0:
		return fmt.Errorf("config: channels must be positive, got %d", c.Channels)
	case c.PollInterval <= 0:
		return fmt.Errorf("config: poll_interval must be positive, got %s", c.PollInterval)
	}

	if _, err := codec.ByName(c.Codec); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	if _, err := c.Policy(); err != nil {
		return err
	}

	if _, err := c.Level(); err != nil {
		return err
	}

	return nil
}

// Policy returns the configured batch policy.
func (c Config) Policy() (engine.BatchPolicy, error) {
	switch c.BatchPolicy {
	case "", engine.BatchAtomic.String():
		return engine.BatchAtomic, nil
	case engine.BatchPerInstruction.String():
		return engine.BatchPerInstruction, nil
	default:
		return 0, fmt.Errorf("config: unknown batch_policy %q", c.BatchPolicy)
	}
}

// Level returns the configured log level.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log_level: %w", err)
	}

	return l, nil
}

// BridgeOptions converts the settings into session options.
func (c Config) BridgeOptions(log *slog.Logger) []bridge.Option {
	policy, _ := c.Policy()
	cdc, _ := codec.ByName(c.Codec)

	return []bridge.Option{
		bridge.WithCodec(cdc),
		bridge.WithLogger(log),
		bridge.WithMaxEventBatchBytes(c.MaxEventBatchBytes),
		bridge.WithEngineOptions(
			engine.WithBatchPolicy(policy),
			engine.WithEventQueueSize(c.EventQueueSize),
			engine.WithMaxChannels(c.Channels),
		),
	}
}
