package service

import "time"

// SetClock replaces the engine's notion of today.
func (s *BorrowingService) SetClock(now func() time.Time) {
	s.now = now
}
