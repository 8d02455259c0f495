package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler captures log records for testing.
type testHandler struct {
	buf   *bytes.Buffer
	level slog.Level
	attrs []slog.Attr
}

func newTestHandler() *testHandler {
	return &testHandler{
		buf:   &bytes.Buffer{},
		level: slog.LevelDebug,
	}
}

func (h *testHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newH := &testHandler{
		buf:   h.buf,
		level: h.level,
		attrs: make([]slog.Attr, len(h.attrs)+len(attrs)),
	}
	copy(newH.attrs, h.attrs)
	copy(newH.attrs[len(h.attrs):], attrs)
	return newH
}

func (h *testHandler) WithGroup(string) slog.Handler {
	return h
}

func (h *testHandler) lastRecord() map[string]any {
	lines := bytes.Split(h.buf.Bytes(), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if len(lines[i]) > 0 {
			var m map[string]any
			if err := json.Unmarshal(lines[i], &m); err == nil {
				return m
			}
		}
	}
	return nil
}

func TestEnrichLogger(t *testing.T) {
	t.Run("adds executor and node fields", func(t *testing.T) {
		h := newTestHandler()
		enriched := EnrichLogger(slog.New(h), "exec-1", 7, "scale")
		enriched.Info("test message")

		record := h.lastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "exec-1", record["executor_id"])
		assert.Equal(t, float64(7), record["node_id"])
		assert.Equal(t, "scale", record["node_kind"])
	})

	t.Run("nil logger stays nil", func(t *testing.T) {
		assert.Nil(t, EnrichLogger(nil, "exec-1", 7, "scale"))
	})
}

func TestLogHelpers(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name  string
		log   func(*slog.Logger)
		level string
		msg   string
		check func(t *testing.T, record map[string]any)
	}{
		{
			name:  "runner spawned",
			log:   func(l *slog.Logger) { LogRunnerSpawned(l, "exec-1", 3, 2) },
			level: "DEBUG",
			msg:   "runner spawned",
			check: func(t *testing.T, r map[string]any) {
				assert.Equal(t, float64(2), r["outputs"])
			},
		},
		{
			name:  "runner retired",
			log:   func(l *slog.Logger) { LogRunnerRetired(l, "exec-1", 3) },
			level: "DEBUG",
			msg:   "runner retired",
		},
		{
			name:  "connect",
			log:   func(l *slog.Logger) { LogConnect(l, 3, 0, 1, 2) },
			level: "DEBUG",
			msg:   "input connected",
			check: func(t *testing.T, r map[string]any) {
				assert.Equal(t, float64(1), r["from_node"])
				assert.Equal(t, float64(2), r["output_id"])
			},
		},
		{
			name:  "connect dropped",
			log:   func(l *slog.Logger) { LogConnectDropped(l, 3, 0, boom) },
			level: "WARN",
			msg:   "connection dropped",
			check: func(t *testing.T, r map[string]any) {
				assert.Equal(t, "boom", r["error"])
			},
		},
		{
			name:  "disconnect",
			log:   func(l *slog.Logger) { LogDisconnect(l, 3, 0) },
			level: "DEBUG",
			msg:   "input disconnected",
		},
		{
			name:  "sync",
			log:   func(l *slog.Logger) { LogSync(l, 3) },
			level: "DEBUG",
			msg:   "parameters synced",
		},
		{
			name:  "task failed",
			log:   func(l *slog.Logger) { LogTaskFailed(l, 3, boom, 1.5) },
			level: "ERROR",
			msg:   "task failed",
			check: func(t *testing.T, r map[string]any) {
				assert.Equal(t, "boom", r["error"])
				assert.Equal(t, 1.5, r["duration_ms"])
			},
		},
		{
			name:  "task panicked",
			log:   func(l *slog.Logger) { LogTaskPanicked(l, 3, "oops", "goroutine 1") },
			level: "ERROR",
			msg:   "task panicked",
			check: func(t *testing.T, r map[string]any) {
				assert.Equal(t, "oops", r["panic"])
				assert.Equal(t, "goroutine 1", r["stack"])
			},
		},
		{
			name:  "reconcile",
			log:   func(l *slog.Logger) { LogReconcile(l, "exec-1", ReconcileStats{Spawned: 2, Connects: 1}, 0.2) },
			level: "DEBUG",
			msg:   "reconciled",
			check: func(t *testing.T, r map[string]any) {
				assert.Equal(t, float64(2), r["spawned"])
				assert.Equal(t, float64(1), r["connects"])
			},
		},
		{
			name:  "reconcile with drops warns",
			log:   func(l *slog.Logger) { LogReconcile(l, "exec-1", ReconcileStats{Dropped: 1}, 0.2) },
			level: "WARN",
			msg:   "reconciled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler()
			tt.log(slog.New(h))

			record := h.lastRecord()
			require.NotNil(t, record)
			assert.Equal(t, tt.level, record["level"])
			assert.Equal(t, tt.msg, record["msg"])
			if tt.check != nil {
				tt.check(t, record)
			}
		})
	}

	t.Run("nil logger is safe", func(t *testing.T) {
		assert.NotPanics(t, func() {
			LogRunnerSpawned(nil, "", 0, 0)
			LogRunnerRetired(nil, "", 0)
			LogConnect(nil, 0, 0, 0, 0)
			LogConnectDropped(nil, 0, 0, boom)
			LogDisconnect(nil, 0, 0)
			LogSync(nil, 0)
			LogTaskFailed(nil, 0, boom, 0)
			LogTaskPanicked(nil, 0, nil, "")
			LogReconcile(nil, "", ReconcileStats{}, 0)
		})
	})
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, done(), 5.0)
}
