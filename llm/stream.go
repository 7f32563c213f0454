package llm

import (
	"context"
	"io"
	"sync"
)

// eventStream adapts a producer function to the Stream interface. The
// producer runs in its own goroutine and sends through an unbuffered channel;
// closing the stream cancels the producer's context, which tears down any
// provider connection it holds.
type eventStream struct {
	cancel context.CancelFunc
	ch     chan Event
	done   chan struct{}
	err    error

	closeOnce sync.Once
}

func newEventStream(parent context.Context, run func(ctx context.Context, events chan<- Event) error) Stream {
	ctx, cancel := context.WithCancel(parent)
	s := &eventStream{
		cancel: cancel,
		ch:     make(chan Event),
		done:   make(chan struct{}),
	}
	go func() {
		s.err = run(ctx, s.ch)
		if s.err == nil {
			s.err = io.EOF
		}
		close(s.done)
	}()
	return s
}

func (s *eventStream) Recv() (Event, error) {
	select {
	case ev := <-s.ch:
		return ev, nil
	case <-s.done:
		return Event{}, s.err
	}
}

func (s *eventStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

// emit sends one event, giving up if the consumer walked away.
func emit(ctx context.Context, events chan<- Event, ev Event) error {
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ChunkStream is the caller-facing output sequence of a streaming call:
// a lazy, single-pass, non-restartable sequence of chunks terminated by
// io.EOF. Closing it before natural completion cancels the in-flight
// provider request and prevents any further tool rounds.
type ChunkStream struct {
	cancel context.CancelFunc
	ch     chan Chunk
	done   chan struct{}
	err    error

	closeOnce sync.Once
}

func newChunkStream(parent context.Context, run func(ctx context.Context, out chan<- Chunk) error) *ChunkStream {
	ctx, cancel := context.WithCancel(parent)
	s := &ChunkStream{
		cancel: cancel,
		ch:     make(chan Chunk),
		done:   make(chan struct{}),
	}
	go func() {
		s.err = run(ctx, s.ch)
		if s.err == nil {
			s.err = io.EOF
		}
		close(s.done)
	}()
	return s
}

// Recv returns the next chunk, or io.EOF after the terminal chunk. A fatal
// loop error is returned in place of io.EOF and no further chunks follow.
func (s *ChunkStream) Recv() (Chunk, error) {
	select {
	case c := <-s.ch:
		return c, nil
	case <-s.done:
		return Chunk{}, s.err
	}
}

// Close destroys the stream and everything upstream of it. Safe to call more
// than once and after io.EOF.
func (s *ChunkStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

// send forwards one chunk, giving up if the consumer walked away.
func send(ctx context.Context, out chan<- Chunk, c Chunk) error {
	select {
	case out <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
