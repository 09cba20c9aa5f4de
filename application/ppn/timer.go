package ppn

import "time"

// TimerService is the platform timing primitive. Each started id fires the
// registered expiry handler exactly once, unless cancelled first. Expiries
// are delivered asynchronously; callers serialize them through their own
// event queue.
type TimerService interface {
	StartTimer(id int, duration time.Duration) error
	CancelTimer(id int)
	RegisterExpiryHandler(handler func(id int))
}
