// Package observability provides structured logging, metrics and tracing
// for livegraph executors.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry or Prometheus
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// EnrichLogger adds executor and node context to a logger.
// Returns nil if logger is nil.
//
// Example:
//
//	enriched := EnrichLogger(logger, "3f2a...", 7, "scale")
//	enriched.Info("processing chunk") // includes executor_id, node_id, node_kind
func EnrichLogger(logger *slog.Logger, executorID string, nodeID uint32, kind string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("executor_id", executorID),
		slog.Uint64("node_id", uint64(nodeID)),
		slog.String("node_kind", kind),
	)
}

// LogRunnerSpawned logs the start of a node runner.
func LogRunnerSpawned(logger *slog.Logger, executorID string, nodeID uint32, outputs int) {
	if logger == nil {
		return
	}
	logger.Debug("runner spawned",
		slog.String("executor_id", executorID),
		slog.Uint64("node_id", uint64(nodeID)),
		slog.Int("outputs", outputs),
	)
}

// LogRunnerRetired logs the removal of a node runner.
func LogRunnerRetired(logger *slog.Logger, executorID string, nodeID uint32) {
	if logger == nil {
		return
	}
	logger.Debug("runner retired",
		slog.String("executor_id", executorID),
		slog.Uint64("node_id", uint64(nodeID)),
	)
}

// LogConnect logs a connect message sent to a node.
func LogConnect(logger *slog.Logger, nodeID, inputID, fromNode, outputID uint32) {
	if logger == nil {
		return
	}
	logger.Debug("input connected",
		slog.Uint64("node_id", uint64(nodeID)),
		slog.Uint64("input_id", uint64(inputID)),
		slog.Uint64("from_node", uint64(fromNode)),
		slog.Uint64("output_id", uint64(outputID)),
	)
}

// LogConnectDropped logs a connection attempt that could not be resolved or
// was refused by the task.
func LogConnectDropped(logger *slog.Logger, nodeID, inputID uint32, err error) {
	if logger == nil {
		return
	}
	logger.Warn("connection dropped",
		slog.Uint64("node_id", uint64(nodeID)),
		slog.Uint64("input_id", uint64(inputID)),
		slog.String("error", err.Error()),
	)
}

// LogDisconnect logs a disconnect message sent to a node.
func LogDisconnect(logger *slog.Logger, nodeID, inputID uint32) {
	if logger == nil {
		return
	}
	logger.Debug("input disconnected",
		slog.Uint64("node_id", uint64(nodeID)),
		slog.Uint64("input_id", uint64(inputID)),
	)
}

// LogSync logs a parameter push to a node.
func LogSync(logger *slog.Logger, nodeID uint32) {
	if logger == nil {
		return
	}
	logger.Debug("parameters synced",
		slog.Uint64("node_id", uint64(nodeID)),
	)
}

// LogTaskFailed logs a node body returning an error. The node keeps running.
func LogTaskFailed(logger *slog.Logger, nodeID uint32, err error, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Error("task failed",
		slog.Uint64("node_id", uint64(nodeID)),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogTaskPanicked logs a recovered panic in a node body. The node keeps running.
func LogTaskPanicked(logger *slog.Logger, nodeID uint32, value any, stack string) {
	if logger == nil {
		return
	}
	logger.Error("task panicked",
		slog.Uint64("node_id", uint64(nodeID)),
		slog.Any("panic", value),
		slog.String("stack", stack),
	)
}

// LogReconcile logs the outcome of one reconciliation pass.
func LogReconcile(logger *slog.Logger, executorID string, stats ReconcileStats, durationMs float64) {
	if logger == nil {
		return
	}
	level := slog.LevelDebug
	if stats.Dropped > 0 {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "reconciled",
		slog.String("executor_id", executorID),
		slog.Int("spawned", stats.Spawned),
		slog.Int("retired", stats.Retired),
		slog.Int("connects", stats.Connects),
		slog.Int("disconnects", stats.Disconnects),
		slog.Int("syncs", stats.Syncs),
		slog.Int("dropped", stats.Dropped),
		slog.Float64("duration_ms", durationMs),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
