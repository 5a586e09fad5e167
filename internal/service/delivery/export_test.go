package delivery

import "time"

// SetNow replaces the service clock in tests.
func SetNow(s *Service, now func() time.Time) { s.now = now }
