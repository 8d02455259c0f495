package stream

// Response carries a streamed result inside a request/response exchange.
// T is the type of one chunk. The response holds a receiver parked at the
// start of the stream; consumers call Subscribe to get their own cursor.
//
// A response whose stream already overwrote its first item can no longer be
// replayed in full. IsLagged reports this and is the natural validity check
// for requests answered with a Response.
type Response[T any] struct {
	rx *Receiver[T]
}

// NewResponse creates a stream of the given capacity and returns the response
// to publish together with the sender used to fill it.
func NewResponse[T any](capacity int) (Response[T], *Sender[T]) {
	tx, rx := New[T](capacity)
	return Response[T]{rx: rx}, tx
}

// Subscribe returns a receiver positioned at the start of the stream, or
// false if the stream is no longer complete.
func (r Response[T]) Subscribe() (*Receiver[T], bool) {
	if r.rx == nil || r.rx.IsLagged() {
		return nil, false
	}
	return r.rx.Clone(), true
}

// IsLagged reports whether items at the start of the stream were dropped.
// A zero Response is reported as lagged.
func (r Response[T]) IsLagged() bool {
	return r.rx == nil || r.rx.IsLagged()
}
