package engine

import (
	"sync"
	"time"
)

type timerID uint64

type scheduled struct {
	timer *time.Timer
	fn    func()
	flush bool
}

// timerSet owns every timer the engine schedules. Stop cancels the pending ones,
// runs those marked flush (override restorations) and waits for running callbacks.
type timerSet struct {
	mu      sync.Mutex
	next    timerID
	pending map[timerID]*scheduled
	stopped bool
	running sync.WaitGroup
}

func newTimerSet() *timerSet {
	return &timerSet{pending: make(map[timerID]*scheduled)}
}

// AfterFunc schedules fn after d. It returns false when the set is already stopped.
func (s *timerSet) AfterFunc(d time.Duration, flush bool, fn func()) (timerID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, false
	}
	s.next++
	id := s.next
	entry := &scheduled{fn: fn, flush: flush}
	s.running.Add(1)
	entry.timer = time.AfterFunc(d, func() {
		defer s.running.Done()
		s.mu.Lock()
		_, live := s.pending[id]
		delete(s.pending, id)
		s.mu.Unlock()
		if live {
			fn()
		}
	})
	s.pending[id] = entry
	return id, true
}

// Cancel stops a pending timer without running it.
func (s *timerSet) Cancel(id timerID) bool {
	s.mu.Lock()
	entry, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	if entry.timer.Stop() {
		s.running.Done()
	}
	return true
}

// Len returns the number of timers that have not fired yet.
func (s *timerSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop is idempotent.
func (s *timerSet) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.running.Wait()
		return
	}
	s.stopped = true
	var flush []func()
	for id, entry := range s.pending {
		delete(s.pending, id)
		if entry.timer.Stop() {
			s.running.Done()
		}
		if entry.flush {
			flush = append(flush, entry.fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range flush {
		fn()
	}
	s.running.Wait()
}
