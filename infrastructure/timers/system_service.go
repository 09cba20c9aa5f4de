package timers

import (
	"sync"
	"time"

	"ppn/application/ppn"
)

// SystemTimerService implements the platform timer port on time.AfterFunc.
type SystemTimerService struct {
	mu      sync.Mutex
	handler func(id int)
	pending map[int]*time.Timer
}

func NewSystemTimerService() ppn.TimerService {
	return &SystemTimerService{pending: make(map[int]*time.Timer)}
}

func (s *SystemTimerService) RegisterExpiryHandler(handler func(id int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

func (s *SystemTimerService) StartTimer(id int, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[id] = time.AfterFunc(duration, func() { s.fire(id) })
	return nil
}

func (s *SystemTimerService) CancelTimer(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.pending[id]; ok {
		timer.Stop()
		delete(s.pending, id)
	}
}

func (s *SystemTimerService) fire(id int) {
	s.mu.Lock()
	handler := s.handler
	_, live := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()

	if live && handler != nil {
		handler(id)
	}
}
