package holidays

// Signal is a single-slot wake-up flag. Notify sets it (repeated calls
// before a wake collapse into one); receiving from C both wakes the waiter
// and clears the flag.
type Signal struct {
	ch chan struct{}
}

func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

func (s *Signal) Notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *Signal) C() <-chan struct{} { return s.ch }

// Pending reports whether a notification is waiting, without consuming it.
func (s *Signal) Pending() bool { return len(s.ch) > 0 }
