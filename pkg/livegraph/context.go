package livegraph

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	nodeKey
)

// ContextWithLogger returns a context carrying logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// Logger returns the logger carried by ctx. The context passed to Task.Run
// carries a logger enriched with the executor and node. Never returns nil;
// defaults to slog.Default().
func Logger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

func withNodeID(ctx context.Context, id NodeID) context.Context {
	return context.WithValue(ctx, nodeKey, id)
}

// NodeIDFrom returns the node whose task is running under ctx.
func NodeIDFrom(ctx context.Context) (NodeID, bool) {
	id, ok := ctx.Value(nodeKey).(NodeID)
	return id, ok
}
