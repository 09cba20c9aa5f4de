// Package looper provides the single-consumer task queue that serializes
// every session mutation. Collaborators running on arbitrary goroutines post
// callbacks here instead of touching session state directly, which makes the
// state machine single-threaded in effect.
package looper

import "sync"

type Looper struct {
	mu     sync.Mutex
	cond   *sync.Cond
	closed bool
	tasks  []func()
	done   chan struct{}
}

// New starts the worker goroutine. Tasks run strictly in arrival order, one
// at a time.
func New() *Looper {
	l := &Looper{
		done: make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

func (l *Looper) run() {
	defer close(l.done)
	l.mu.Lock()
	for {
		for len(l.tasks) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.tasks) == 0 {
			l.mu.Unlock()
			return
		}
		// Run outside the lock so tasks can post. Tasks posted meanwhile
		// land in a fresh slice and run after this batch, preserving
		// arrival order.
		batch := l.tasks
		l.tasks = nil
		l.mu.Unlock()
		for _, task := range batch {
			task()
		}
		l.mu.Lock()
	}
}

// Post enqueues task and reports whether it was accepted. The queue is
// unbounded, so a running task may post freely without blocking anything.
// Posting after Close drops the task and returns false: a collaborator may
// still be reporting while the session tears down.
func (l *Looper) Post(task func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.tasks = append(l.tasks, task)
	l.cond.Signal()
	return true
}

// Close stops the worker after draining already-posted tasks, then waits for
// it to exit. Safe to call multiple times; must not be called from a posted
// task (the worker would wait on itself).
func (l *Looper) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		l.cond.Signal()
	}
	l.mu.Unlock()
	<-l.done
}
