package telegraph

import (
	"sync"
)

// Serializer runs jobs submitted under the same key one at a time, in
// submission order, while jobs under different keys run concurrently. A
// worker goroutine exists only while its key has queued work.
type Serializer struct {
	mu     sync.Mutex
	queues map[string][]func()
	closed bool
	wg     sync.WaitGroup
}

// NewSerializer creates an idle Serializer.
func NewSerializer() *Serializer {
	return &Serializer{queues: make(map[string][]func())}
}

// Submit queues fn under key. It returns false once the serializer is
// closed.
func (s *Serializer) Submit(key string, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	q, running := s.queues[key]
	s.queues[key] = append(q, fn)
	if !running {
		s.wg.Add(1)
		go s.drain(key)
	}
	return true
}

func (s *Serializer) drain(key string) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		q := s.queues[key]
		if len(q) == 0 {
			delete(s.queues, key)
			s.mu.Unlock()
			return
		}
		fn := q[0]
		s.queues[key] = q[1:]
		s.mu.Unlock()

		fn()
	}
}

// Active returns the number of keys with a running worker.
func (s *Serializer) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues)
}

// Close stops accepting work and waits for queued jobs to finish.
func (s *Serializer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}
