// Package signal provides a small broadcast-wakeup primitive for waking a
// waiting goroutine without a result value; the ingestion buffer uses it for
// an explicit flush request.
package signal

import "sync"

// Signal is a broadcast notification: any call to Notify wakes every
// current waiter by closing the channel and replacing it with a fresh one.
type Signal struct {
	mu sync.Mutex
	ch chan struct{}
}

// New creates a ready-to-use Signal.
func New() *Signal { return &Signal{ch: make(chan struct{})} }

// Notify wakes every goroutine currently blocked on C().
func (s *Signal) Notify() {
	s.mu.Lock()
	close(s.ch)
	s.ch = make(chan struct{})
	s.mu.Unlock()
}

// C returns a channel that closes on the next Notify call. Callers must
// re-call C() after each wakeup to wait for the next one.
func (s *Signal) C() <-chan struct{} {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	return ch
}
