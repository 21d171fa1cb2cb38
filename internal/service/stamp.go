package service

import (
	"sync"
	"time"
)

// stampSource hands out send timestamps that never run backwards, even
// when the wall clock does. Each stamp is strictly after the previous
// one, so every sender's SentAt sequence stays ordered and history
// windows cut by timestamp are unambiguous.
type stampSource struct {
	mu   sync.Mutex
	last time.Time
}

func (s *stampSource) next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if !now.After(s.last) {
		now = s.last.Add(time.Nanosecond)
	}
	s.last = now
	return now
}
