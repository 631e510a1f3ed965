package engine

import "sync/atomic"

// Signal is the application-wide connectivity flag. The engine never probes
// the network itself: the application reports reachability changes and the
// engine reads the flag once at the start of each top-level operation.
type Signal struct {
	online atomic.Bool
}

func NewSignal(online bool) *Signal {
	s := &Signal{}
	s.online.Store(online)
	return s
}

func (s *Signal) Online() bool {
	return s.online.Load()
}

// Set updates the flag and reports whether the value changed, so callers can
// kick a drain on the offline-to-online transition.
func (s *Signal) Set(online bool) bool {
	return s.online.Swap(online) != online
}
