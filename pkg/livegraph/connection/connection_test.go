package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// atLeast asks for a value of at least n.
type atLeast int

func (q atLeast) Accepts(resp int) bool { return resp >= int(q) }

// named asks for a string response.
type named string

func (q named) Accepts(resp string) bool { return resp == string(q) }

type result struct {
	value int
	ok    bool
}

func requestAsync(in *Input[atLeast, int], q atLeast) <-chan result {
	ch := make(chan result, 1)
	go func() {
		v, ok := in.Request(context.Background(), q)
		ch <- result{v, ok}
	}()
	return ch
}

func await(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(time.Second):
		t.Fatal("request did not complete")
		return result{}
	}
}

func receive(t *testing.T, out *Output[atLeast, int]) atLeast {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q, err := out.Receive(ctx)
	require.NoError(t, err)
	return q
}

func connected(t *testing.T, opts ...OutputOption) (*Output[atLeast, int], *Input[atLeast, int]) {
	t.Helper()
	out := NewOutput[atLeast, int](opts...)
	in := &Input[atLeast, int]{}
	require.True(t, in.Connect(out.Handle()))
	return out, in
}

func TestRequest_RoundTrip(t *testing.T) {
	out, in := connected(t)

	pending := requestAsync(in, 3)
	assert.Equal(t, atLeast(3), receive(t, out))
	out.Respond(5)

	r := await(t, pending)
	assert.True(t, r.ok)
	assert.Equal(t, 5, r.value)
	assert.False(t, out.Pending())
}

func TestRequest_SatisfiedResponseSkipsQueue(t *testing.T) {
	out, in := connected(t)

	pending := requestAsync(in, 1)
	receive(t, out)
	out.Respond(5)
	await(t, pending)

	v, ok := in.Request(context.Background(), 3)
	require.True(t, ok)
	assert.Equal(t, 5, v)
	assert.Len(t, out.link.requests, 0, "satisfied request must not be queued")

	// A second consumer on the same connection takes the fast path too.
	other := &Input[atLeast, int]{}
	require.True(t, other.Connect(out.Handle()))
	v, ok = other.Request(context.Background(), 5)
	require.True(t, ok)
	assert.Equal(t, 5, v)
	assert.Len(t, out.link.requests, 0)
}

func TestRequest_Disconnected(t *testing.T) {
	tests := []struct {
		name   string
		input  Input[atLeast, int]
		req    atLeast
		want   int
		wantOK bool
	}{
		{name: "no default", input: Input[atLeast, int]{}, req: 0, wantOK: false},
		{name: "default accepted", input: NewInput[atLeast](4), req: 3, want: 4, wantOK: true},
		{name: "default rejected", input: NewInput[atLeast](4), req: 5, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.input
			v, ok := in.Request(context.Background(), tt.req)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestConnect_PreservesDefault(t *testing.T) {
	in := NewInput[atLeast](7)
	first := NewOutput[atLeast, int]()
	second := NewOutput[atLeast, int]()

	require.True(t, in.Connect(first.Handle()))
	in.Disconnect()
	require.True(t, in.Connect(second.Handle()))
	in.Disconnect()

	def, ok := in.Default()
	require.True(t, ok)
	assert.Equal(t, 7, def)

	v, ok := in.Request(context.Background(), 7)
	assert.True(t, ok)
	assert.Equal(t, 7, v)
}

func TestConnect_Replaces(t *testing.T) {
	first := NewOutput[atLeast, int]()
	second := NewOutput[atLeast, int]()
	in := &Input[atLeast, int]{}

	require.True(t, in.Connect(first.Handle()))
	require.True(t, in.Connect(second.Handle()))

	pending := requestAsync(in, 1)
	assert.Equal(t, atLeast(1), receive(t, second))
	second.Respond(1)
	assert.True(t, await(t, pending).ok)

	_, ok := first.TryReceive()
	assert.False(t, ok, "replaced connection gets no requests")
}

func TestConnect_TypeMismatch(t *testing.T) {
	out := NewOutput[atLeast, int]()
	h := out.Handle()

	in := NewInput[named]("fallback")
	assert.False(t, in.Connect(h))
	assert.False(t, h.Connected())
	assert.False(t, in.IsConnected())
	assert.Contains(t, h.String(), "atLeast")

	v, ok := in.Request(context.Background(), "fallback")
	assert.True(t, ok)
	assert.Equal(t, "fallback", v)

	assert.False(t, in.Connect(nil))
}

func TestHandle_ConnectedFlag(t *testing.T) {
	out := NewOutput[atLeast, int]()
	h := out.Handle()
	in := &Input[atLeast, int]{}

	require.True(t, in.Connect(h))
	assert.True(t, h.Connected())

	clone := h.Clone()
	assert.False(t, clone.Connected(), "clone starts unclaimed")
}

func TestReceive_Idempotent(t *testing.T) {
	out, in := connected(t)

	pending := requestAsync(in, 2)
	first := receive(t, out)
	second := receive(t, out)
	assert.Equal(t, first, second)

	q, ok := out.TryReceive()
	assert.True(t, ok)
	assert.Equal(t, first, q)

	out.Respond(2)
	assert.True(t, await(t, pending).ok)
}

func TestReceive_SkipsSatisfied(t *testing.T) {
	out, in := connected(t)

	pending := requestAsync(in, 1)
	receive(t, out)
	out.Respond(5)
	await(t, pending)

	out.link.requests <- 3
	out.link.requests <- 5

	_, ok := out.TryReceive()
	assert.False(t, ok, "requests satisfied by the published response are skipped")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	out.link.requests <- 4
	_, err := out.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	out.link.requests <- 9
	assert.Equal(t, atLeast(9), receive(t, out))
}

func TestRespond_WithoutRequestIsNoop(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	out, in := connected(t, WithLogger(logger))
	pending := requestAsync(in, 1)
	receive(t, out)
	out.Respond(1)
	await(t, pending)

	before := out.link.responses.Version()
	out.Respond(2)
	assert.Equal(t, before, out.link.responses.Version(), "stray respond must not publish")

	v, ok := out.Published()
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "respond without outstanding request", record["msg"])
}

func TestInvalidate(t *testing.T) {
	out, in := connected(t)

	before := out.link.responses.Version()
	out.Invalidate()
	assert.Equal(t, before, out.link.responses.Version(), "nothing published, nothing to clear")

	pending := requestAsync(in, 1)
	receive(t, out)
	out.Respond(1)
	await(t, pending)

	out.Invalidator().Invalidate()
	_, ok := out.Published()
	assert.False(t, ok)

	// The cleared slot forces a fresh round trip.
	pending = requestAsync(in, 1)
	assert.Equal(t, atLeast(1), receive(t, out))
	out.Respond(3)
	assert.Equal(t, 3, await(t, pending).value)
}

func TestInvalidationNotifier(t *testing.T) {
	wait := func(n *InvalidationNotifier) <-chan bool {
		ch := make(chan bool, 1)
		go func() {
			open, err := n.Wait(context.Background())
			if err == nil {
				ch <- open
			}
		}()
		return ch
	}

	t.Run("fires on invalidation only", func(t *testing.T) {
		out, in := connected(t)
		done := wait(out.Handle().Notifier())

		pending := requestAsync(in, 1)
		receive(t, out)
		out.Respond(1)
		await(t, pending)

		select {
		case <-done:
			t.Fatal("publishing a response is not an invalidation")
		case <-time.After(20 * time.Millisecond):
		}

		out.Invalidate()
		select {
		case open := <-done:
			assert.True(t, open)
		case <-time.After(time.Second):
			t.Fatal("notifier not woken by invalidation")
		}
	})

	t.Run("reports closed producer", func(t *testing.T) {
		out := NewOutput[atLeast, int]()
		done := wait(out.Handle().Notifier())

		out.Close()
		select {
		case open := <-done:
			assert.False(t, open)
		case <-time.After(time.Second):
			t.Fatal("notifier not released by close")
		}
	})

	t.Run("context cancel", func(t *testing.T) {
		out := NewOutput[atLeast, int]()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		open, err := out.Handle().Notifier().Wait(ctx)
		assert.False(t, open)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestClose_DisconnectsConsumers(t *testing.T) {
	t.Run("next request", func(t *testing.T) {
		out := NewOutput[atLeast, int]()
		in := NewInput[atLeast](2)
		h := out.Handle()
		require.True(t, in.Connect(h))

		out.Close()
		out.Close()
		assert.True(t, h.Closed())

		_, ok := in.Request(context.Background(), 10)
		assert.False(t, ok)
		assert.False(t, in.IsConnected())

		v, ok := in.Request(context.Background(), 1)
		assert.True(t, ok, "default survives implicit disconnect")
		assert.Equal(t, 2, v)
	})

	t.Run("cached response is cleared", func(t *testing.T) {
		out, in := connected(t)

		pending := requestAsync(in, 1)
		receive(t, out)
		out.Respond(4)
		await(t, pending)

		out.Close()
		_, ok := out.Published()
		assert.False(t, ok)

		_, ok = in.Request(context.Background(), 1)
		assert.False(t, ok, "a closed producer never serves from cache")
		assert.False(t, in.IsConnected())
	})

	t.Run("waiting request", func(t *testing.T) {
		out, in := connected(t)

		pending := requestAsync(in, 1)
		receive(t, out)
		out.Close()

		assert.False(t, await(t, pending).ok)
		assert.False(t, in.IsConnected())
	})
}

func TestRequest_ContextCancelKeepsConnection(t *testing.T) {
	_, in := connected(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, ok := in.Request(ctx, 1)
	assert.False(t, ok)
	assert.True(t, in.IsConnected())
}

func TestRequest_Backpressure(t *testing.T) {
	out := NewOutput[atLeast, int](WithQueueCapacity(1))
	first := &Input[atLeast, int]{}
	second := &Input[atLeast, int]{}
	require.True(t, first.Connect(out.Handle()))
	require.True(t, second.Connect(out.Handle()))

	p1 := requestAsync(first, 1)
	require.Eventually(t, func() bool { return len(out.link.requests) == 1 }, time.Second, time.Millisecond)

	p2 := requestAsync(second, 2)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, out.link.requests, 1, "full queue blocks the second consumer")

	assert.Equal(t, atLeast(1), receive(t, out))
	out.Respond(2)

	assert.Equal(t, 2, await(t, p1).value)
	assert.Equal(t, 2, await(t, p2).value)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := out.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "duplicate demand already satisfied")
}
