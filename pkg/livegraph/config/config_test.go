package config_test

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/livegraph/pkg/livegraph/config"
)

func TestConfig_Accessors(t *testing.T) {
	cfg := config.New(map[string]any{
		"name":    "pipeline",
		"workers": 4,
		"ratio":   0.5,
		"whole":   float64(7),
		"frac":    7.5,
		"tracing": true,
		"tick":    "20ms",
		"delay":   250,
		"tags":    []any{"a", "b"},
		"mixed":   []any{"a", 1},
		"debug": map[string]any{
			"http_addr": ":9090",
			"inner":     map[string]any{"depth": 3},
		},
	})

	assert.Equal(t, "pipeline", cfg.String("name", "x"))
	assert.Equal(t, "x", cfg.String("workers", "x"), "wrong type gives default")
	assert.Equal(t, 4, cfg.Int("workers", 1))
	assert.Equal(t, 7, cfg.Int("whole", 1))
	assert.Equal(t, 1, cfg.Int("frac", 1), "fractional float is not an int")
	assert.InDelta(t, 0.5, cfg.Float("ratio", 0), 1e-9)
	assert.InDelta(t, 4.0, cfg.Float("workers", 0), 1e-9)
	assert.True(t, cfg.Bool("tracing", false))
	assert.Equal(t, 20*time.Millisecond, cfg.Duration("tick", time.Second))
	assert.Equal(t, 250*time.Millisecond, cfg.Duration("delay", time.Second))
	assert.Equal(t, time.Second, cfg.Duration("name", time.Second))
	assert.Equal(t, []string{"a", "b"}, cfg.StringSlice("tags", nil))
	assert.Nil(t, cfg.StringSlice("mixed", nil))

	assert.Equal(t, ":9090", cfg.String("debug.http_addr", ""))
	assert.Equal(t, 3, cfg.Int("debug.inner.depth", 0))
	assert.Equal(t, 0, cfg.Int("debug.missing.depth", 0))
	assert.Equal(t, 0, cfg.Int("name.depth", 0), "path through a scalar")
	assert.Equal(t, ":9090", cfg.Section("debug").String("http_addr", ""))
	assert.Empty(t, cfg.Section("name").Raw())

	assert.True(t, cfg.Has("debug.inner"))
	assert.False(t, cfg.Has("nope"))
}

func TestConfig_Merge(t *testing.T) {
	base := config.New(map[string]any{"workers": 2, "tick": "16ms"})
	over := config.New(map[string]any{"workers": 8})

	merged := base.Merge(over)
	assert.Equal(t, 8, merged.Int("workers", 0))
	assert.Equal(t, 16*time.Millisecond, merged.Duration("tick", 0))
	assert.Equal(t, 2, base.Int("workers", 0), "inputs are untouched")
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		wantErr bool
	}{
		{name: "yaml", file: "c.yaml", content: "workers: 6\ndebug:\n  http_addr: \":1\"\n"},
		{name: "yml", file: "c.yml", content: "workers: 6\ndebug:\n  http_addr: \":1\"\n"},
		{name: "json", file: "c.json", content: `{"workers": 6, "debug": {"http_addr": ":1"}}`},
		{name: "bad yaml", file: "bad.yaml", content: "workers: [", wantErr: true},
		{name: "bad json", file: "bad.json", content: "{", wantErr: true},
		{name: "unsupported", file: "c.toml", content: "workers = 6", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			cfg, err := config.FromFile(path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 6, cfg.Int("workers", 0))
			assert.Equal(t, ":1", cfg.String("debug.http_addr", ""))
		})
	}

	_, err := config.FromFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDecode(t *testing.T) {
	def := config.DefaultSettings()
	assert.Equal(t, 3, def.RequestQueueCapacity)
	assert.Equal(t, 100, def.StreamCapacity)
	assert.Equal(t, 16*time.Millisecond, def.Tick)
	assert.Equal(t, config.MetricsNone, def.Metrics)
	assert.Equal(t, config.MemoryStore, def.ResultStore)
	require.NoError(t, def.Validate())

	tests := []struct {
		name    string
		data    map[string]any
		check   func(t *testing.T, s config.Settings)
		wantErr bool
	}{
		{
			name: "empty uses defaults",
			check: func(t *testing.T, s config.Settings) {
				assert.Equal(t, def, s)
			},
		},
		{
			name: "overrides",
			data: map[string]any{
				"request_queue_capacity": 5,
				"stream_capacity":        10,
				"workers":                2,
				"log_level":              "debug",
				"metrics":                "prometheus",
				"tracing":                true,
				"http_addr":              ":9090",
				"result_store":           "results.db",
				"tick":                   "50ms",
			},
			check: func(t *testing.T, s config.Settings) {
				assert.Equal(t, 5, s.RequestQueueCapacity)
				assert.Equal(t, 10, s.StreamCapacity)
				assert.Equal(t, 2, s.Workers)
				assert.Equal(t, slog.LevelDebug, s.LogLevel)
				assert.Equal(t, config.MetricsPrometheus, s.Metrics)
				assert.True(t, s.Tracing)
				assert.Equal(t, ":9090", s.HTTPAddr)
				assert.Equal(t, "results.db", s.ResultStore)
				assert.Equal(t, 50*time.Millisecond, s.Tick)
			},
		},
		{name: "zero queue", data: map[string]any{"request_queue_capacity": 0}, wantErr: true},
		{name: "negative stream", data: map[string]any{"stream_capacity": -1}, wantErr: true},
		{name: "zero workers", data: map[string]any{"workers": 0}, wantErr: true},
		{name: "zero tick", data: map[string]any{"tick": "0s"}, wantErr: true},
		{name: "empty store", data: map[string]any{"result_store": ""}, wantErr: true},
		{name: "unknown metrics", data: map[string]any{"metrics": "statsd"}, wantErr: true},
		{name: "bad log level", data: map[string]any{"log_level": "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := config.Decode(config.New(tt.data))
			if tt.wantErr {
				assert.ErrorIs(t, err, config.ErrInvalid)
				return
			}
			require.NoError(t, err)
			tt.check(t, s)
		})
	}
}

func TestLoad(t *testing.T) {
	s, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultSettings(), s)

	path := filepath.Join(t.TempDir(), "livegraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 3\ntick: 40\n"), 0o600))

	s, err = config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Workers)
	assert.Equal(t, 40*time.Millisecond, s.Tick)

	t.Run("environment overrides the file", func(t *testing.T) {
		t.Setenv("LIVEGRAPH_WORKERS", "7")
		t.Setenv("LIVEGRAPH_HTTP_ADDR", ":9090")

		s, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, 7, s.Workers)
		assert.Equal(t, ":9090", s.HTTPAddr)
		assert.Equal(t, 40*time.Millisecond, s.Tick)
	})

	t.Run("invalid environment value", func(t *testing.T) {
		t.Setenv("LIVEGRAPH_METRICS", "statsd")

		_, err := config.Load("")
		assert.ErrorIs(t, err, config.ErrInvalid)
	})
}

func TestFromEnv(t *testing.T) {
	c := config.FromEnv("LG_", []string{
		"LG_WORKERS=8",
		"LG_TRACING=true",
		"LG_TICK=40ms",
		"LG_RATIO=0.5",
		"LG_LIST=[1, 2]",
		"LG_=ignored",
		"OTHER_WORKERS=1",
		"LG_BROKEN",
	})

	assert.Equal(t, 8, c.Int("workers", 0))
	assert.True(t, c.Bool("tracing", false))
	assert.Equal(t, 40*time.Millisecond, c.Duration("tick", 0))
	assert.InDelta(t, 0.5, c.Float("ratio", 0), 1e-9)
	assert.Equal(t, "[1, 2]", c.String("list", ""))
	assert.Len(t, c.Raw(), 5)
}

func TestSettings_NewLogger(t *testing.T) {
	s := config.DefaultSettings()
	s.LogLevel = slog.LevelWarn

	var buf bytes.Buffer
	logger := s.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
