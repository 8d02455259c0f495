package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/randalmurphal/livegraph/pkg/livegraph/connection"
	"github.com/randalmurphal/livegraph/pkg/livegraph/stream"
)

// Type tags carried on output refs so editors can match wires.
const (
	TypeScan uint32 = iota + 1
	TypeValue
	TypeSummary
)

// DefaultChunkSize is the number of samples per chunk when a node leaves it unset.
const DefaultChunkSize = 64

// DefaultStreamCapacity is the ring size of streamed scans when a node leaves
// it unset.
const DefaultStreamCapacity = 100

// maxScanAttempts bounds how often a lagged scan is requested again.
const maxScanAttempts = 3

// ErrIncomplete reports a scan stream that ended before its last chunk,
// which happens when the producer was interrupted.
var ErrIncomplete = errors.New("scan ended before its last chunk")

// Chunk is one contiguous slice of a scan.
type Chunk struct {
	// Index is the position of the chunk in the scan.
	Index int
	// Total is the number of chunks in the scan. It is at least 1.
	Total int
	// Start is the sample index of Values[0].
	Start  int
	Values []float64
}

// Last reports whether c ends its scan.
func (c Chunk) Last() bool {
	return c.Index == c.Total-1
}

// Scan is a streamed scan response.
type Scan = stream.Response[Chunk]

// ScanRequest asks for a complete scan. Any stream that can still be
// replayed from its first chunk satisfies it.
type ScanRequest struct{}

// Accepts implements connection.Request.
func (ScanRequest) Accepts(s Scan) bool {
	return !s.IsLagged()
}

// ValueRequest asks for a scalar.
type ValueRequest struct{}

// Accepts implements connection.Request.
func (ValueRequest) Accepts(float64) bool { return true }

type scanInput = connection.Input[ScanRequest, Scan]

func chunkCount(samples, size int) int {
	if samples <= 0 {
		return 1
	}
	return (samples + size - 1) / size
}

// readScan requests a scan on in and calls fn with each chunk in order.
// A stream that lags is requested again and resumed after the last chunk
// fn saw. It reports false without error when no scan is available, which
// is the case for a disconnected input.
func readScan(ctx context.Context, in *scanInput, fn func(Chunk) error) (bool, error) {
	next := 0
	for attempt := 1; ; attempt++ {
		scan, ok := in.Request(ctx, ScanRequest{})
		if !ok {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			return false, nil
		}

		rx, ok := scan.Subscribe()
		if ok {
			err := drain(ctx, rx, &next, fn)
			if err == nil {
				return true, nil
			}
			if !errors.Is(err, stream.ErrLagged) {
				return true, err
			}
		}
		if attempt == maxScanAttempts {
			return true, fmt.Errorf("scan lagged %d times: %w", attempt, stream.ErrLagged)
		}
	}
}

func drain(ctx context.Context, rx *stream.Receiver[Chunk], next *int, fn func(Chunk) error) error {
	for {
		c, err := rx.Recv(ctx)
		if errors.Is(err, stream.ErrClosed) {
			return ErrIncomplete
		}
		if err != nil {
			return err
		}
		if c.Index >= *next {
			if err := fn(c); err != nil {
				return err
			}
			*next = c.Index + 1
		}
		if c.Last() {
			return nil
		}
	}
}

// Collect reads every chunk of a subscribed scan. It fails with
// stream.ErrLagged if the receiver fell behind and with ErrIncomplete if the
// stream closed early.
func Collect(ctx context.Context, rx *stream.Receiver[Chunk]) ([]Chunk, error) {
	var out []Chunk
	next := 0
	err := drain(ctx, rx, &next, func(c Chunk) error {
		out = append(out, c)
		return nil
	})
	return out, err
}

// Samples flattens chunks into one slice.
func Samples(chunks []Chunk) []float64 {
	n := 0
	for _, c := range chunks {
		n += len(c.Values)
	}
	out := make([]float64, 0, n)
	for _, c := range chunks {
		out = append(out, c.Values...)
	}
	return out
}
