package location

import "time"

// SetNow replaces the service clock in tests.
func SetNow(s *Service, now func() time.Time) { s.now = now }

// SampledCouriers returns how many couriers hold a history sampling slot.
func SampledCouriers(s *Service) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lastSampled)
}
