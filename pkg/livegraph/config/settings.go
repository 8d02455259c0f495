package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// ErrInvalid marks a setting that decoded but is out of range.
var ErrInvalid = errors.New("invalid setting")

// MetricsBackend selects where engine metrics are recorded.
type MetricsBackend string

// Supported metrics backends.
const (
	MetricsNone       MetricsBackend = "none"
	MetricsOTel       MetricsBackend = "otel"
	MetricsPrometheus MetricsBackend = "prometheus"
)

// MemoryStore is the ResultStore value that keeps results in process.
const MemoryStore = "memory"

// Settings are the engine and demo-program knobs read from a config file.
type Settings struct {
	// RequestQueueCapacity bounds each connection's request queue.
	RequestQueueCapacity int
	// StreamCapacity is the ring size of streamed responses.
	StreamCapacity int
	// Workers bounds the CPU pool shared by node tasks.
	Workers  int
	LogLevel slog.Level
	Metrics  MetricsBackend
	Tracing  bool
	// HTTPAddr is where the debug server listens. Empty disables it.
	HTTPAddr string
	// ResultStore is MemoryStore, a redis:// URL, or a sqlite database path.
	ResultStore string
	// Tick is the interval between graph reconciliations.
	Tick time.Duration
}

// DefaultSettings returns the settings used for keys a file leaves out.
func DefaultSettings() Settings {
	return Settings{
		RequestQueueCapacity: 3,
		StreamCapacity:       100,
		Workers:              runtime.GOMAXPROCS(0),
		LogLevel:             slog.LevelInfo,
		Metrics:              MetricsNone,
		ResultStore:          MemoryStore,
		Tick:                 16 * time.Millisecond,
	}
}

// Decode reads Settings from c, falling back to DefaultSettings per key.
func Decode(c Config) (Settings, error) {
	s := DefaultSettings()

	s.RequestQueueCapacity = c.Int("request_queue_capacity", s.RequestQueueCapacity)
	s.StreamCapacity = c.Int("stream_capacity", s.StreamCapacity)
	s.Workers = c.Int("workers", s.Workers)
	s.Metrics = MetricsBackend(c.String("metrics", string(s.Metrics)))
	s.Tracing = c.Bool("tracing", s.Tracing)
	s.HTTPAddr = c.String("http_addr", s.HTTPAddr)
	s.ResultStore = c.String("result_store", s.ResultStore)
	s.Tick = c.Duration("tick", s.Tick)

	if lvl := c.String("log_level", ""); lvl != "" {
		if err := s.LogLevel.UnmarshalText([]byte(lvl)); err != nil {
			return Settings{}, fmt.Errorf("%w: log_level %q", ErrInvalid, lvl)
		}
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Load decodes Settings from the file at path, overridden by EnvPrefix
// environment variables. An empty path reads the environment only.
func Load(path string) (Settings, error) {
	c := New(nil)
	if path != "" {
		var err error
		if c, err = FromFile(path); err != nil {
			return Settings{}, err
		}
	}
	return Decode(c.Merge(FromEnv(EnvPrefix, os.Environ())))
}

// Validate checks ranges and enumerations.
func (s Settings) Validate() error {
	switch {
	case s.RequestQueueCapacity < 1:
		return fmt.Errorf("%w: request_queue_capacity must be positive, got %d", ErrInvalid, s.RequestQueueCapacity)
	case s.StreamCapacity < 1:
		return fmt.Errorf("%w: stream_capacity must be positive, got %d", ErrInvalid, s.StreamCapacity)
	case s.Workers < 1:
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalid, s.Workers)
	case s.Tick <= 0:
		return fmt.Errorf("%w: tick must be positive, got %s", ErrInvalid, s.Tick)
	case s.ResultStore == "":
		return fmt.Errorf("%w: result_store is empty", ErrInvalid)
	}

	switch s.Metrics {
	case MetricsNone, MetricsOTel, MetricsPrometheus:
	default:
		return fmt.Errorf("%w: metrics backend %q", ErrInvalid, s.Metrics)
	}
	return nil
}

// NewLogger builds a JSON slog logger writing to w at s.LogLevel.
func (s Settings) NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: s.LogLevel}))
}
