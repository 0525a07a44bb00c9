package tutorgate

import (
	"context"
	"io"
	"sync"

	"github.com/ventlab/tutorgate/pkg/types"
)

// Stream is a pull-based view over a SendMessage delivery. Events arrive
// in order and exactly one terminal event (end or error) closes the
// stream; Recv returns io.EOF afterwards. Safe for use from multiple
// goroutines, though events are delivered to whichever caller receives
// them first.
type Stream struct {
	events chan types.StreamEvent
	cancel context.CancelFunc

	mu   sync.Mutex
	done bool
}

// OpenStream starts the question in the background and returns a stream
// of its events. Close releases the stream's resources; callers should
// always close it.
func (c *Client) OpenStream(ctx context.Context, params Params) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		events: make(chan types.StreamEvent, 16),
		cancel: cancel,
	}

	go func() {
		defer close(s.events)
		err := c.SendMessage(ctx, params, Callbacks{
			OnToken: func(delta string) {
				s.emit(ctx, types.StreamEvent{Type: EventToken, Delta: delta})
			},
			OnEnd: func(end StreamEnd) {
				s.emit(ctx, types.StreamEvent{Type: EventEnd, End: &end})
			},
			// Failures surface through the returned error below.
			OnError: func(*GatewayError) {},
		})
		if err != nil && !IsCancelled(err) {
			s.emit(ctx, types.StreamEvent{Type: EventError, Err: err})
		}
	}()
	return s
}

func (s *Stream) emit(ctx context.Context, ev types.StreamEvent) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// Recv returns the next event. After the terminal event it returns io.EOF.
func (s *Stream) Recv() (*types.StreamEvent, error) {
	if s.isDone() {
		return nil, io.EOF
	}
	ev, ok := <-s.events
	if !ok {
		s.setDone()
		return nil, io.EOF
	}
	if ev.Terminal() {
		s.setDone()
	}
	return &ev, nil
}

// Close cancels the in-flight request, if any, and drains the stream.
func (s *Stream) Close() {
	s.cancel()
	for range s.events {
	}
	s.setDone()
}

func (s *Stream) isDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Stream) setDone() {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
}
