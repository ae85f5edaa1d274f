package device

import "sync"

// Stream executes enqueued work items one at a time in FIFO order,
// mirroring a driver stream: concurrent dispatches may enqueue through
// the same stream and are serialized by it, not by the callers.
type Stream struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

func newStream() *Stream {
	s := &Stream{done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	go s.loop()
	return s
}

// Enqueue appends fn to the stream. It never blocks the caller. Work
// enqueued after Close is dropped.
func (s *Stream) Enqueue(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, fn)
	s.cond.Signal()
	s.mu.Unlock()
}

// Synchronize blocks until every item enqueued before the call has run.
func (s *Stream) Synchronize() {
	ch := make(chan struct{})
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, func() { close(ch) })
	s.cond.Signal()
	s.mu.Unlock()
	<-ch
}

// Close drains queued work and stops the stream goroutine.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
	<-s.done
}

func (s *Stream) loop() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		fn()
	}
}
