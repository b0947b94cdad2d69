package engine

import (
	"context"
	"io"

	"github.com/dkozel/graphchat/errors"
)

// Stream is a blocking pull iterator over an engine's output fragments. The
// producing goroutine pushes fragments; the consumer drains them strictly in
// arrival order with Next.
type Stream struct {
	ch  chan Fragment
	err error
}

func newStream() *Stream {
	return &Stream{ch: make(chan Fragment, 16)}
}

// Next blocks for the next fragment. It returns io.EOF once the stream is
// exhausted, a stream-classified error if the producer failed, or ctx.Err()
// when the caller is cancelled.
func (s *Stream) Next(ctx context.Context) (Fragment, error) {
	// Cancellation wins over buffered fragments so an interrupted consumer
	// stops promptly instead of draining the backlog.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frag, ok := <-s.ch:
		if !ok {
			if s.err != nil {
				return nil, errors.WithKind(errors.KindStream, s.err)
			}
			return nil, io.EOF
		}
		return frag, nil
	}
}

// push delivers one fragment, giving up if the consumer is gone.
func (s *Stream) push(ctx context.Context, frag Fragment) bool {
	select {
	case <-ctx.Done():
		return false
	case s.ch <- frag:
		return true
	}
}

// finish ends the stream. err, if non-nil, is surfaced by the final Next
// call. The error write happens before the channel close, so consumers
// observe it safely.
func (s *Stream) finish(err error) {
	s.err = err
	close(s.ch)
}

// ScriptedStream returns an already-finished stream that replays the given
// fragments. Used by the mock engine and by tests.
func ScriptedStream(frags ...Fragment) *Stream {
	s := &Stream{ch: make(chan Fragment, len(frags))}
	for _, f := range frags {
		s.ch <- f
	}
	s.finish(nil)
	return s
}

// BrokenStream returns a stream that replays frags and then fails with err.
func BrokenStream(err error, frags ...Fragment) *Stream {
	s := &Stream{ch: make(chan Fragment, len(frags))}
	for _, f := range frags {
		s.ch <- f
	}
	s.finish(err)
	return s
}
