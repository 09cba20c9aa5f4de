// Package timers multiplexes delayed callbacks over a single platform
// TimerService, handing out integer timer ids. Cancellation is by id; an id
// is spent once it fires or is cancelled.
package timers

import (
	"fmt"
	"sync"
	"time"

	"ppn/application/ppn"
)

type Manager struct {
	mu        sync.Mutex
	service   ppn.TimerService
	nextID    int
	callbacks map[int]func()
}

func NewManager(service ppn.TimerService) *Manager {
	m := &Manager{
		service:   service,
		callbacks: make(map[int]func()),
	}
	service.RegisterExpiryHandler(m.timerExpired)
	return m
}

// StartTimer schedules callback to run once after duration and returns the
// timer id to cancel it with. The callback runs on the service's delivery
// goroutine; callers post into their own queue from it.
func (m *Manager) StartTimer(duration time.Duration, callback func()) (int, error) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.callbacks[id] = callback
	m.mu.Unlock()

	if err := m.service.StartTimer(id, duration); err != nil {
		m.mu.Lock()
		delete(m.callbacks, id)
		m.mu.Unlock()
		return 0, fmt.Errorf("start timer %d: %w", id, err)
	}
	return id, nil
}

// CancelTimer stops the timer if it has not fired yet. Cancelling a spent or
// unknown id is a no-op.
func (m *Manager) CancelTimer(id int) {
	m.mu.Lock()
	_, known := m.callbacks[id]
	delete(m.callbacks, id)
	m.mu.Unlock()

	if known {
		m.service.CancelTimer(id)
	}
}

func (m *Manager) timerExpired(id int) {
	m.mu.Lock()
	callback := m.callbacks[id]
	delete(m.callbacks, id)
	m.mu.Unlock()

	// Expiry may race cancellation; the loser sees no callback.
	if callback != nil {
		callback()
	}
}
